// Package alerts runs the periodic rule evaluator: sample a metric, compare
// against the rule's threshold, and on breach notify every configured staff
// channel, with per-rule cooldown suppression.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/logging"
	"notification-engine/internal/metrics"
	"notification-engine/internal/models"
)

// RuleStore is the persistence the evaluator needs. Rules are read-only
// here; they are edited through the configuration API.
type RuleStore interface {
	GetActiveAlertRules(ctx context.Context) ([]models.AlertRule, error)
	CreateAlertHistory(ctx context.Context, h models.AlertHistory) error
}

// Enqueuer hands gateway deliveries to the dispatch queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.DeliveryJob) (uuid.UUID, error)
}

// EmailSender delivers the email staff channel.
type EmailSender interface {
	Send(to, subject, body string) error
}

// TelegramSender delivers the telegram staff channel.
type TelegramSender interface {
	Send(ctx context.Context, chatID int64, message string) error
}

// TriggerResult summarizes one full evaluation pass.
type TriggerResult struct {
	Evaluated int `json:"evaluated"`
	Fired     int `json:"fired"`
	Skipped   int `json:"skipped"` // inside cooldown or metric unavailable
}

// Evaluator runs the rule set on a fixed interval. Rules are evaluated
// sequentially within one tick, so cooldown state sees no concurrent
// mutation.
type Evaluator struct {
	store           RuleStore
	samplers        map[string]Sampler
	cooldowns       *CooldownTracker
	queue           Enqueuer
	email           EmailSender
	telegram        TelegramSender
	logger          *logging.Logger
	interval        time.Duration
	defaultCooldown time.Duration
}

func NewEvaluator(store RuleStore, samplers map[string]Sampler, queue Enqueuer, email EmailSender, telegram TelegramSender, logger *logging.Logger, interval, defaultCooldown time.Duration) *Evaluator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if defaultCooldown <= 0 {
		defaultCooldown = time.Hour
	}
	return &Evaluator{
		store:           store,
		samplers:        samplers,
		cooldowns:       NewCooldownTracker(),
		queue:           queue,
		email:           email,
		telegram:        telegram,
		logger:          logger,
		interval:        interval,
		defaultCooldown: defaultCooldown,
	}
}

// Run evaluates on every tick until the context ends.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Infof("Alert evaluator started (interval %s)", e.interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Infof("Alert evaluator stopped")
			return
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

// TriggerNow runs the full rule set immediately, bypassing the interval but
// not the cooldown. Used for admin-initiated health checks.
func (e *Evaluator) TriggerNow(ctx context.Context) TriggerResult {
	return e.evaluateAll(ctx)
}

func (e *Evaluator) evaluateAll(ctx context.Context) TriggerResult {
	var result TriggerResult

	rules, err := e.store.GetActiveAlertRules(ctx)
	if err != nil {
		e.logger.Errorf("Failed to load alert rules: %v", err)
		return result
	}

	now := time.Now()
	for _, rule := range rules {
		result.Evaluated++
		fired, skipped := e.evaluateRule(ctx, rule, now)
		if fired {
			result.Fired++
		}
		if skipped {
			result.Skipped++
		}
	}
	e.logger.Debugf("Evaluated %d rules, fired %d", result.Evaluated, result.Fired)
	return result
}

// evaluateRule checks one rule. A panic inside one rule must not prevent
// evaluation of the rest of the tick.
func (e *Evaluator) evaluateRule(ctx context.Context, rule models.AlertRule, now time.Time) (fired, skipped bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Rule %s (%s) panicked: %v", rule.ID, rule.Name, r)
		}
	}()

	// Rules without their own cooldown get the configured default so a
	// breached metric cannot refire on every tick.
	cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
	if rule.CooldownMinutes <= 0 {
		cooldown = e.defaultCooldown
	}
	if !e.cooldowns.Allow(rule.ID, cooldown, now) {
		return false, true
	}

	sampler, ok := e.samplers[rule.Metric]
	if !ok {
		e.logger.Warnf("Rule %s references unknown metric %q", rule.ID, rule.Metric)
		return false, true
	}
	value, err := sampler(ctx)
	if err != nil {
		e.logger.Errorf("Sampling %s for rule %s failed: %v", rule.Metric, rule.ID, err)
		return false, true
	}
	if value == nil {
		// Unavailable metrics never trigger.
		return false, true
	}

	if !evaluateCondition(rule.Condition, *value, rule.Threshold) {
		return false, false
	}

	metrics.AlertsFired.WithLabelValues(rule.Metric).Inc()
	message := formatAlert(rule, *value)
	channelSent := e.dispatch(ctx, rule, message)

	history := models.AlertHistory{
		ID:          uuid.New(),
		RuleID:      rule.ID,
		Metric:      rule.Metric,
		Value:       *value,
		Threshold:   rule.Threshold,
		Severity:    rule.Severity,
		Message:     message,
		ChannelSent: channelSent,
		FiredAt:     now,
	}
	if err := e.store.CreateAlertHistory(ctx, history); err != nil {
		e.logger.Errorf("Failed to persist alert history for rule %s: %v", rule.ID, err)
	}

	// Cooldown updates on the successful trigger evaluation itself, not on
	// delivery outcome.
	e.cooldowns.MarkFired(rule.ID, now)
	e.logger.Infof("Rule %s (%s) fired: %s", rule.ID, rule.Name, message)
	return true, false
}

// dispatch sends the alert to every channel on the rule for every recipient
// and reports per-channel success. One failing channel never blocks the
// others.
func (e *Evaluator) dispatch(ctx context.Context, rule models.AlertRule, message string) map[string]bool {
	sent := make(map[string]bool)
	for _, channel := range rule.Channels {
		switch channel {
		case models.ChannelGateway:
			ok := true
			for _, r := range rule.Recipients {
				if r.Phone == "" {
					continue
				}
				if _, err := e.queue.Enqueue(ctx, models.DeliveryJob{
					Kind:    models.JobNotifyUser,
					Target:  r.Phone,
					Message: message,
					Channel: models.ChannelGateway,
				}); err != nil {
					e.logger.Errorf("Failed to enqueue alert for %s: %v", r.Phone, err)
					ok = false
				}
			}
			sent[channel] = ok
		case models.ChannelEmail:
			ok := true
			for _, r := range rule.Recipients {
				if r.Email == "" {
					continue
				}
				if e.email == nil {
					e.logger.Infof("Email channel unconfigured, skipping alert to %s", r.Email)
					ok = false
					continue
				}
				if err := e.email.Send(r.Email, fmt.Sprintf("[ALERT] %s", rule.Name), message); err != nil {
					e.logger.Errorf("Failed to email alert to %s: %v", r.Email, err)
					ok = false
				}
			}
			sent[channel] = ok
		case models.ChannelTelegram:
			ok := true
			for _, r := range rule.Recipients {
				if r.ChatID == 0 {
					continue
				}
				if e.telegram == nil {
					e.logger.Infof("Telegram channel unconfigured, skipping alert to chat %d", r.ChatID)
					ok = false
					continue
				}
				if err := e.telegram.Send(ctx, r.ChatID, message); err != nil {
					e.logger.Errorf("Failed to send telegram alert to chat %d: %v", r.ChatID, err)
					ok = false
				}
			}
			sent[channel] = ok
		default:
			e.logger.Warnf("Rule %s lists unknown channel %q", rule.ID, channel)
			sent[channel] = false
		}
	}
	return sent
}

func evaluateCondition(cond string, value, threshold float64) bool {
	switch cond {
	case models.CondGreaterThan:
		return value > threshold
	case models.CondLessThan:
		return value < threshold
	case models.CondEquals:
		return value == threshold
	case models.CondNotEquals:
		return value != threshold
	default:
		return false
	}
}

func severityTag(severity int) string {
	switch severity {
	case 1:
		return "INFO"
	case 2:
		return "WARNING"
	case 3:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SEV%d", severity)
	}
}

func formatAlert(rule models.AlertRule, value float64) string {
	return fmt.Sprintf("[%s] %s: %s is %.2f (threshold %s %.2f)",
		severityTag(rule.Severity), rule.Name, rule.Metric, value, rule.Condition, rule.Threshold)
}
