package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"notification-engine/internal/models"
)

// GetActiveRoutingRules returns the active rules for one notification type.
func (d *DB) GetActiveRoutingRules(ctx context.Context, notificationType string) ([]models.RoutingRule, error) {
	query := `
        SELECT id, notification_type, conditions, target_channels, target_groups,
               template_code, is_active, created_at
        FROM routing_rules
        WHERE is_active = true AND notification_type = $1
        ORDER BY created_at`
	rows, err := d.Pool.Query(ctx, query, notificationType)
	if err != nil {
		return nil, fmt.Errorf("failed to get routing rules for type %s: %w", notificationType, err)
	}
	defer rows.Close()

	var rules []models.RoutingRule
	for rows.Next() {
		var r models.RoutingRule
		var id pgtype.UUID
		var conditions, channels, groups []byte
		err := rows.Scan(&id, &r.NotificationType, &conditions, &channels, &groups,
			&r.TemplateCode, &r.IsActive, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		r.ID = id.Bytes
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
				return nil, fmt.Errorf("invalid conditions for rule %s: %w", r.ID, err)
			}
		}
		if err := json.Unmarshal(channels, &r.TargetChannels); err != nil {
			return nil, fmt.Errorf("invalid target_channels for rule %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(groups, &r.TargetGroups); err != nil {
			return nil, fmt.Errorf("invalid target_groups for rule %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
