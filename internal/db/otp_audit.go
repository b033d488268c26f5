package db

import (
	"context"
	"fmt"
	"time"
)

// CreateOTPAudit appends one row to the OTP audit trail. Actions are "issued",
// "verified", "mismatch", "expired", "exhausted".
func (d *DB) CreateOTPAudit(ctx context.Context, subjectKey, action string) error {
	query := `
        INSERT INTO otp_audit (subject_key, action, created_at)
        VALUES ($1, $2, $3)`
	_, err := d.Pool.Exec(ctx, query, subjectKey, action, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert otp audit: %w", err)
	}
	return nil
}
