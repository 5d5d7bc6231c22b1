package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

// WeatherCheckRepository appends and lists weather-check audit rows.
type WeatherCheckRepository struct {
	db *sqlx.DB
}

// NewWeatherCheckRepository constructs the repository.
func NewWeatherCheckRepository(db *sqlx.DB) *WeatherCheckRepository {
	return &WeatherCheckRepository{db: db}
}

// Append inserts a log entry. Rows are never updated.
func (r *WeatherCheckRepository) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.WeatherCheckLog) error {
	if entry == nil {
		return fmt.Errorf("weather check payload is nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CheckedAt.IsZero() {
		entry.CheckedAt = time.Now().UTC()
	}
	if len(entry.Snapshot) == 0 {
		entry.Snapshot = types.JSONText(`{}`)
	}
	if len(entry.Violations) == 0 {
		entry.Violations = types.JSONText(`[]`)
	}
	target := exec
	if target == nil {
		target = r.db
	}
	const query = `INSERT INTO weather_checks
	(id, booking_id, source, snapshot, violations, severity_score, probability, risk_level, is_safe, checked_at)
	VALUES (:id, :booking_id, :source, :snapshot, :violations, :severity_score, :probability, :risk_level, :is_safe, :checked_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
		return fmt.Errorf("append weather check: %w", err)
	}
	return nil
}

// ListByBooking returns the most recent checks for a booking, newest first.
func (r *WeatherCheckRepository) ListByBooking(ctx context.Context, bookingID string, limit int) ([]models.WeatherCheckLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, booking_id, source, snapshot, violations, severity_score, probability, risk_level, is_safe, checked_at
FROM weather_checks WHERE booking_id = $1 ORDER BY checked_at DESC LIMIT $2`
	var entries []models.WeatherCheckLog
	if err := r.db.SelectContext(ctx, &entries, query, bookingID, limit); err != nil {
		return nil, fmt.Errorf("list weather checks: %w", err)
	}
	return entries, nil
}
