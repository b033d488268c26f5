package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"notification-engine/internal/models"
)

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) error {
	query := `
        INSERT INTO notifications (id, user_id, type, subject, body, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Type, n.Subject, n.Body, n.Status, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (d *DB) UpdateNotificationStatus(ctx context.Context, id, status string) error {
	query := `
        UPDATE notifications
        SET status = $1,
            sent_at = CASE WHEN $1 = 'sent' THEN $2 ELSE sent_at END
        WHERE id::text = $3`
	result, err := d.Pool.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no notification updated for id %s", id)
	}
	return nil
}

func (d *DB) GetNotificationsByUserID(ctx context.Context, userID, limit, offset int) ([]models.Notification, error) {
	query := `
        SELECT id, user_id, type, subject, body, status, created_at, sent_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := d.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications for user_id %d: %w", userID, err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var id pgtype.UUID
		if err := rows.Scan(&id, &n.UserID, &n.Type, &n.Subject, &n.Body, &n.Status, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ID = id.Bytes
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (d *DB) GetNotificationByID(ctx context.Context, id string) (models.Notification, error) {
	var n models.Notification
	var nid pgtype.UUID
	query := `
        SELECT id, user_id, type, subject, body, status, created_at, sent_at
        FROM notifications
        WHERE id::text = $1`
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&nid, &n.UserID, &n.Type, &n.Subject, &n.Body, &n.Status, &n.CreatedAt, &n.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, ErrNotFound
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	n.ID = nid.Bytes
	return n, nil
}

// GetPreferencesByUserID returns the per-channel opt-in rows for a user.
// An empty result means the user never saved preferences.
func (d *DB) GetPreferencesByUserID(ctx context.Context, userID int) ([]models.Preference, error) {
	query := `
        SELECT user_id, channel, enabled
        FROM notification_preferences
        WHERE user_id = $1`
	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for user_id %d: %w", userID, err)
	}
	defer rows.Close()

	var prefs []models.Preference
	for rows.Next() {
		var p models.Preference
		if err := rows.Scan(&p.UserID, &p.Channel, &p.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}
