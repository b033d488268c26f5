package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"notification-engine/internal/models"
)

func (d *DB) GetTemplateByCode(ctx context.Context, code string) (models.Template, error) {
	var t models.Template
	var id pgtype.UUID
	query := `
        SELECT id, code, name, body, is_active
        FROM message_templates
        WHERE code = $1 AND is_active = true`
	err := d.Pool.QueryRow(ctx, query, code).Scan(&id, &t.Code, &t.Name, &t.Body, &t.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, ErrNotFound
		}
		return models.Template{}, fmt.Errorf("failed to get template %s: %w", code, err)
	}
	t.ID = id.Bytes
	return t, nil
}

func (d *DB) GetActiveTemplates(ctx context.Context) ([]models.Template, error) {
	query := `
        SELECT id, code, name, body, is_active
        FROM message_templates
        WHERE is_active = true
        ORDER BY code`
	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		var t models.Template
		var id pgtype.UUID
		if err := rows.Scan(&id, &t.Code, &t.Name, &t.Body, &t.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		t.ID = id.Bytes
		templates = append(templates, t)
	}
	return templates, nil
}
