package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"notification-engine/internal/models"
)

// UpsertDeliveryRecord writes the final outcome for a job. Terminal states
// may be written more than once when a stalled job completes after a requeue,
// so the last writer wins.
func (d *DB) UpsertDeliveryRecord(ctx context.Context, r models.DeliveryRecord) error {
	query := `
        INSERT INTO delivery_records (job_id, channel, status, provider, attempts, last_error, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (job_id) DO UPDATE
        SET status = EXCLUDED.status,
            provider = EXCLUDED.provider,
            attempts = EXCLUDED.attempts,
            last_error = EXCLUDED.last_error,
            completed_at = EXCLUDED.completed_at`
	_, err := d.Pool.Exec(ctx, query,
		r.JobID, r.Channel, r.Status, r.Provider, r.Attempts, r.LastError, r.CreatedAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert delivery record for job %s: %w", r.JobID, err)
	}
	return nil
}

func (d *DB) GetDeliveryRecord(ctx context.Context, jobID string) (models.DeliveryRecord, error) {
	var r models.DeliveryRecord
	var id pgtype.UUID
	query := `
        SELECT job_id, channel, status, provider, attempts, last_error, created_at, completed_at
        FROM delivery_records
        WHERE job_id::text = $1`
	err := d.Pool.QueryRow(ctx, query, jobID).Scan(
		&id, &r.Channel, &r.Status, &r.Provider, &r.Attempts, &r.LastError, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeliveryRecord{}, ErrNotFound
		}
		return models.DeliveryRecord{}, fmt.Errorf("failed to get delivery record for job %s: %w", jobID, err)
	}
	r.JobID = id.Bytes
	return r, nil
}
