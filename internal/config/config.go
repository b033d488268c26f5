package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	RabbitMQ struct {
		URL       string
		QueueName string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Gateway struct {
		Enabled  bool
		Provider string // "http" or "twilio"
		Endpoint string
		Token    string
		Timeout  time.Duration
	}
	Twilio struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Telegram struct {
		BotToken string
	}
	Queue struct {
		Workers         int
		MaxAttempts     int
		BackoffBase     time.Duration
		LockDuration    time.Duration
		RateLimitCount  int
		RateLimitWindow time.Duration
	}
	OTP struct {
		TTL         time.Duration
		Length      int
		MaxAttempts int
	}
	Alerts struct {
		Interval        time.Duration
		DefaultCooldown int // minutes
		ProbeAddr       string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
	cfg.RabbitMQ.QueueName = envStr("RABBITMQ_QUEUE", "delivery_jobs")

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = envStr("KAFKA_TOPIC", "app_events")
	cfg.Kafka.GroupID = envStr("KAFKA_GROUP_ID", "notification-engine")

	cfg.Gateway.Enabled = envBool("GATEWAY_ENABLED", true)
	cfg.Gateway.Provider = envStr("GATEWAY_PROVIDER", "http")
	cfg.Gateway.Endpoint = os.Getenv("GATEWAY_ENDPOINT")
	cfg.Gateway.Token = os.Getenv("GATEWAY_TOKEN")
	cfg.Gateway.Timeout = envDuration("GATEWAY_TIMEOUT", 10*time.Second)

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")

	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = envInt("EMAIL_SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = envStr("EMAIL_FROM_NAME", "ISP Operations")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	cfg.Queue.Workers = envInt("QUEUE_WORKERS", 5)
	cfg.Queue.MaxAttempts = envInt("QUEUE_MAX_ATTEMPTS", 3)
	cfg.Queue.BackoffBase = envDuration("QUEUE_BACKOFF_BASE", 2*time.Second)
	cfg.Queue.LockDuration = envDuration("QUEUE_LOCK_DURATION", 30*time.Second)
	cfg.Queue.RateLimitCount = envInt("QUEUE_RATE_LIMIT", 100)
	cfg.Queue.RateLimitWindow = envDuration("QUEUE_RATE_WINDOW", 60*time.Second)

	cfg.OTP.TTL = envDuration("OTP_TTL", 5*time.Minute)
	cfg.OTP.Length = envInt("OTP_LENGTH", 6)
	cfg.OTP.MaxAttempts = envInt("OTP_MAX_ATTEMPTS", 3)

	cfg.Alerts.Interval = envDuration("ALERT_INTERVAL", 5*time.Minute)
	cfg.Alerts.DefaultCooldown = envInt("ALERT_DEFAULT_COOLDOWN", 60)
	cfg.Alerts.ProbeAddr = envStr("ALERT_PROBE_ADDR", "8.8.8.8:53")

	cfg.API.Port = envStr("API_PORT", ":8080")
	cfg.API.BasePath = envStr("API_BASE_PATH", "/api/v1")

	cfg.Logging.Dir = envStr("LOG_DIR", "logs")
	cfg.Logging.Level = envStr("LOG_LEVEL", "info")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if cfg.RabbitMQ.URL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
