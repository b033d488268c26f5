package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"notification-engine/internal/models"
)

// GetActiveAlertRules returns every rule the evaluator should consider this
// tick. Channels and recipients are stored as JSONB.
func (d *DB) GetActiveAlertRules(ctx context.Context) ([]models.AlertRule, error) {
	query := `
        SELECT id, name, metric, condition, threshold, severity, cooldown_minutes,
               channels, recipients, is_active, created_at
        FROM alert_rules
        WHERE is_active = true
        ORDER BY created_at`
	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var id pgtype.UUID
		var channels, recipients []byte
		err := rows.Scan(&id, &r.Name, &r.Metric, &r.Condition, &r.Threshold, &r.Severity,
			&r.CooldownMinutes, &channels, &recipients, &r.IsActive, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		r.ID = id.Bytes
		if err := json.Unmarshal(channels, &r.Channels); err != nil {
			return nil, fmt.Errorf("invalid channels for rule %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(recipients, &r.Recipients); err != nil {
			return nil, fmt.Errorf("invalid recipients for rule %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// CreateAlertHistory persists one firing of a rule.
func (d *DB) CreateAlertHistory(ctx context.Context, h models.AlertHistory) error {
	channelSent, err := json.Marshal(h.ChannelSent)
	if err != nil {
		return fmt.Errorf("failed to marshal channel_sent: %w", err)
	}
	query := `
        INSERT INTO alert_history (id, rule_id, metric, value, threshold, severity, message, channel_sent, fired_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = d.Pool.Exec(ctx, query,
		h.ID, h.RuleID, h.Metric, h.Value, h.Threshold, h.Severity, h.Message, channelSent, h.FiredAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}
	return nil
}

// Samplers backed by operational tables. A nil return means the metric could
// not be computed this tick and must not trigger any rule.

// SampleErrorRate returns failed deliveries / total deliveries over the last
// hour, as a percentage.
func (d *DB) SampleErrorRate(ctx context.Context) (*float64, error) {
	var total, failed int64
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status IN ('failed', 'abandoned'))
        FROM delivery_records
        WHERE created_at > NOW() - INTERVAL '1 hour'`
	if err := d.Pool.QueryRow(ctx, query).Scan(&total, &failed); err != nil {
		return nil, fmt.Errorf("failed to sample error rate: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	v := float64(failed) / float64(total) * 100
	return &v, nil
}

// PingLatency measures one round trip to the database in milliseconds, a
// cheap stand-in for platform request latency.
func (d *DB) PingLatency(ctx context.Context) (*float64, error) {
	start := time.Now()
	if err := d.Pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to sample latency: %w", err)
	}
	v := float64(time.Since(start).Microseconds()) / 1000
	return &v, nil
}

// SampleSLABreaches counts open tickets past their SLA deadline.
func (d *DB) SampleSLABreaches(ctx context.Context) (*float64, error) {
	var count int64
	query := `
        SELECT COUNT(*)
        FROM tickets
        WHERE status NOT IN ('closed', 'resolved') AND sla_deadline < NOW()`
	if err := d.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to sample sla breaches: %w", err)
	}
	v := float64(count)
	return &v, nil
}

// SampleBackupFresh reports 1 when the newest completed backup is younger
// than 26 hours, 0 otherwise.
func (d *DB) SampleBackupFresh(ctx context.Context) (*float64, error) {
	var fresh bool
	query := `
        SELECT COALESCE(MAX(completed_at) > NOW() - INTERVAL '26 hours', false)
        FROM backups
        WHERE status = 'completed'`
	if err := d.Pool.QueryRow(ctx, query).Scan(&fresh); err != nil {
		return nil, fmt.Errorf("failed to sample backup freshness: %w", err)
	}
	v := 0.0
	if fresh {
		v = 1.0
	}
	return &v, nil
}
