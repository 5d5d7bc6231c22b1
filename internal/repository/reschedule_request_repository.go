package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

// ErrOpenRequestExists is returned when a booking already has an open reschedule request.
var ErrOpenRequestExists = errors.New("open reschedule request already exists")

const rescheduleColumns = `id, original_booking_id, proposed_date, proposed_duration, ai_reasoning, weather_forecast,
       status, student_confirmed_at, instructor_confirmed_at, rejection_reason, new_booking_id, created_at, updated_at`

type rescheduleRow struct {
	ID                    string             `db:"id"`
	OriginalBookingID     string             `db:"original_booking_id"`
	ProposedDate          time.Time          `db:"proposed_date"`
	ProposedDuration      int                `db:"proposed_duration"`
	AIReasoning           string             `db:"ai_reasoning"`
	WeatherForecast       types.NullJSONText `db:"weather_forecast"`
	Status                string             `db:"status"`
	StudentConfirmedAt    *time.Time         `db:"student_confirmed_at"`
	InstructorConfirmedAt *time.Time         `db:"instructor_confirmed_at"`
	RejectionReason       *string            `db:"rejection_reason"`
	NewBookingID          *string            `db:"new_booking_id"`
	CreatedAt             time.Time          `db:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at"`
}

func (row rescheduleRow) toModel() (*models.RescheduleRequest, error) {
	req := &models.RescheduleRequest{
		ID:                    row.ID,
		OriginalBookingID:     row.OriginalBookingID,
		ProposedDate:          row.ProposedDate.UTC(),
		ProposedDuration:      row.ProposedDuration,
		AIReasoning:           row.AIReasoning,
		Status:                models.RescheduleStatus(row.Status),
		StudentConfirmedAt:    row.StudentConfirmedAt,
		InstructorConfirmedAt: row.InstructorConfirmedAt,
		RejectionReason:       row.RejectionReason,
		NewBookingID:          row.NewBookingID,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
	if row.WeatherForecast.Valid && len(row.WeatherForecast.JSONText) > 0 {
		var snapshot models.WeatherSnapshot
		if err := row.WeatherForecast.Unmarshal(&snapshot); err != nil {
			return nil, fmt.Errorf("decode reschedule forecast: %w", err)
		}
		req.WeatherForecast = &snapshot
	}
	return req, nil
}

// RescheduleRequestRepository persists reschedule negotiations.
type RescheduleRequestRepository struct {
	db *sqlx.DB
}

// NewRescheduleRequestRepository constructs the repository.
func NewRescheduleRequestRepository(db *sqlx.DB) *RescheduleRequestRepository {
	return &RescheduleRequestRepository{db: db}
}

func (r *RescheduleRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateOpen inserts an open request. The partial unique index on open
// requests per booking makes the check-and-create atomic; a lost race yields
// ErrOpenRequestExists.
func (r *RescheduleRequestRepository) CreateOpen(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	if req == nil {
		return fmt.Errorf("reschedule request payload is nil")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RescheduleStatusPendingInstructor
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	var forecast types.NullJSONText
	if req.WeatherForecast != nil {
		payload, err := json.Marshal(req.WeatherForecast)
		if err != nil {
			return fmt.Errorf("encode reschedule forecast: %w", err)
		}
		forecast = types.NullJSONText{JSONText: payload, Valid: true}
	}

	query := fmt.Sprintf(`INSERT INTO reschedule_requests
	(id, original_booking_id, proposed_date, proposed_duration, ai_reasoning, weather_forecast, status, student_confirmed_at, created_at, updated_at)
	VALUES (:id, :original_booking_id, :proposed_date, :proposed_duration, :ai_reasoning, :weather_forecast, :status, :student_confirmed_at, :created_at, :updated_at)
	ON CONFLICT (original_booking_id) WHERE status IN ('%s','%s') DO NOTHING`,
		models.RescheduleStatusPendingStudent, models.RescheduleStatusPendingInstructor)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, rescheduleRow{
		ID:                 req.ID,
		OriginalBookingID:  req.OriginalBookingID,
		ProposedDate:       req.ProposedDate.UTC(),
		ProposedDuration:   req.ProposedDuration,
		AIReasoning:        req.AIReasoning,
		WeatherForecast:    forecast,
		Status:             string(req.Status),
		StudentConfirmedAt: req.StudentConfirmedAt,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("create reschedule request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create reschedule request rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOpenRequestExists
	}
	return nil
}

// FindByID loads a request. It returns sql.ErrNoRows when absent.
func (r *RescheduleRequestRepository) FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM reschedule_requests WHERE id = $1", rescheduleColumns)
	var row rescheduleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// ResolveParams captures the instructor's decision on a request.
type ResolveParams struct {
	ID                    string
	Status                models.RescheduleStatus
	InstructorConfirmedAt time.Time
	RejectionReason       *string
	NewBookingID          *string
}

// Resolve moves a PENDING_INSTRUCTOR request to its terminal state. It
// returns sql.ErrNoRows when the request is no longer pending.
func (r *RescheduleRequestRepository) Resolve(ctx context.Context, exec sqlx.ExtContext, params ResolveParams) error {
	query := fmt.Sprintf(`UPDATE reschedule_requests SET status = :status, instructor_confirmed_at = :instructor_confirmed_at,
rejection_reason = :rejection_reason, new_booking_id = :new_booking_id, updated_at = :updated_at
WHERE id = :id AND status = '%s'`, models.RescheduleStatusPendingInstructor)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":                      params.ID,
		"status":                  string(params.Status),
		"instructor_confirmed_at": params.InstructorConfirmedAt.UTC(),
		"rejection_reason":        params.RejectionReason,
		"new_booking_id":          params.NewBookingID,
		"updated_at":              time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("resolve reschedule request: %w", err)
	}
	return expectAffected(result, "resolve reschedule request")
}
