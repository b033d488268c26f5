package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"notification-engine/internal/alerts"
	"notification-engine/internal/api"
	"notification-engine/internal/config"
	"notification-engine/internal/db"
	"notification-engine/internal/events"
	"notification-engine/internal/gateway"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
	"notification-engine/internal/orchestrator"
	"notification-engine/internal/otp"
	"notification-engine/internal/queue"
	"notification-engine/pkg/email"
	"notification-engine/pkg/telegram"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Redis backs the durable OTP tier.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// RabbitMQ carries the delivery jobs.
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("RabbitMQ connection failed: %v", err)
	}
	defer amqpConn.Close()

	broker, err := queue.NewBroker(amqpConn, cfg.RabbitMQ.QueueName, logger)
	if err != nil {
		log.Fatalf("Queue declaration failed: %v", err)
	}
	defer broker.Close()

	// OTP service over the tiered store
	tiered := otp.NewTieredStore(otp.NewRedisStore(redisClient), otp.NewLocalStore(), logger)
	otpSvc := otp.NewService(tiered, dbConn, logger, cfg.OTP.TTL, cfg.OTP.Length, cfg.OTP.MaxAttempts)

	// Gateway adapter with the configured provider
	adapter := gateway.NewAdapter(buildProvider(cfg, logger), logger, cfg.Gateway.Enabled)
	logger.Infof("Gateway provider: %s (enabled=%t)", adapter.ProviderName(), adapter.Enabled())

	// Optional external senders
	var emailSender *email.Sender
	if cfg.Email.SMTPServer != "" {
		emailSender, err = email.NewSender(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.FromName)
		if err != nil {
			logger.Warnf("Email sender unavailable: %v", err)
		}
	}
	var telegramSender *telegram.Sender
	if cfg.Telegram.BotToken != "" {
		telegramSender, err = telegram.NewSender(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warnf("Telegram sender unavailable: %v", err)
		}
	}

	// Dispatch queue
	dispatcher := queue.NewDispatcher(broker, broker, dbConn, dbConn, logger, queue.Config{
		Workers:         cfg.Queue.Workers,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		BackoffBase:     cfg.Queue.BackoffBase,
		LockDuration:    cfg.Queue.LockDuration,
		RateLimitCount:  cfg.Queue.RateLimitCount,
		RateLimitWindow: cfg.Queue.RateLimitWindow,
		Provider:        adapter.ProviderName(),
	})
	registerHandlers(dispatcher, adapter)
	dispatcher.Start(ctx)

	// Orchestrator and its in-app push manager
	ws := orchestrator.NewWebSocketManager(logger)
	var orchestratorEmail orchestrator.EmailSender
	if emailSender != nil {
		orchestratorEmail = emailSender
	}
	svc := orchestrator.New(dbConn, dispatcher, orchestratorEmail, ws, logger)

	// Alert evaluator
	samplers := alerts.DefaultSamplers(dbConn, cfg.Alerts.ProbeAddr)
	var evaluatorEmail alerts.EmailSender
	if emailSender != nil {
		evaluatorEmail = emailSender
	}
	var evaluatorTelegram alerts.TelegramSender
	if telegramSender != nil {
		evaluatorTelegram = telegramSender
	}
	evaluator := alerts.NewEvaluator(dbConn, samplers, dispatcher, evaluatorEmail, evaluatorTelegram, logger, cfg.Alerts.Interval, time.Duration(cfg.Alerts.DefaultCooldown)*time.Minute)
	go evaluator.Run(ctx)

	// Kafka intake
	if cfg.Kafka.Broker != "" {
		consumer := events.NewConsumer(cfg, svc, logger)
		defer consumer.Close()
		go consumer.Run(ctx)
	} else {
		logger.Warnf("KAFKA_BROKER not set, event intake disabled")
	}

	// API server
	router := api.NewRouter(dbConn, otpSvc, svc, dispatcher, evaluator, logger, cfg)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down, draining workers")

	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Infof("Shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warnf("Shutdown timed out with workers still busy")
	}
}

// buildProvider picks the gateway provider named in configuration. Returning
// nil disables the gateway subsystem.
func buildProvider(cfg config.Config, logger *logging.Logger) gateway.Provider {
	switch cfg.Gateway.Provider {
	case "twilio":
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			logger.Warnf("Twilio credentials missing")
			return nil
		}
		return gateway.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	case "http":
		if cfg.Gateway.Endpoint == "" {
			logger.Warnf("GATEWAY_ENDPOINT missing")
			return nil
		}
		return gateway.NewHTTPProvider(cfg.Gateway.Endpoint, cfg.Gateway.Token, cfg.Gateway.Timeout)
	default:
		logger.Warnf("Unknown gateway provider %q", cfg.Gateway.Provider)
		return nil
	}
}

// registerHandlers binds every job kind to the gateway adapter. All kinds
// share the send path; they differ in target semantics and in how the
// dispatcher records them.
func registerHandlers(d *queue.Dispatcher, adapter *gateway.Adapter) {
	send := func(ctx context.Context, job models.DeliveryJob) error {
		out := adapter.Send(ctx, job.Target, job.Message)
		if out.Err != nil {
			return out.Err
		}
		return nil
	}
	d.Register(models.JobOTPSend, send)
	d.Register(models.JobNotifyUser, send)
	d.Register(models.JobNotifyGroup, func(ctx context.Context, job models.DeliveryJob) error {
		if !gateway.IsGroupTarget(job.Target) {
			return fmt.Errorf("job %s: target %q is not a group", job.ID, job.Target)
		}
		return send(ctx, job)
	})
	d.Register(models.JobBroadcast, send)
}
