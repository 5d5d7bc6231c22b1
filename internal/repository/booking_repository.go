package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

const bookingColumns = `id, student_id, instructor_id, training_level, scheduled_date, duration_minutes,
       departure_name, departure_latitude, departure_longitude, departure_icao, departure_runway_heading,
       destination_name, destination_latitude, destination_longitude, destination_icao, destination_runway_heading,
       status, cancellation_probability, risk_level, version, created_at, updated_at`

type bookingRow struct {
	ID                       string    `db:"id"`
	StudentID                string    `db:"student_id"`
	InstructorID             string    `db:"instructor_id"`
	TrainingLevel            string    `db:"training_level"`
	ScheduledDate            time.Time `db:"scheduled_date"`
	DurationMinutes          int       `db:"duration_minutes"`
	DepartureName            string    `db:"departure_name"`
	DepartureLatitude        float64   `db:"departure_latitude"`
	DepartureLongitude       float64   `db:"departure_longitude"`
	DepartureICAO            *string   `db:"departure_icao"`
	DepartureRunwayHeading   *float64  `db:"departure_runway_heading"`
	DestinationName          *string   `db:"destination_name"`
	DestinationLatitude      *float64  `db:"destination_latitude"`
	DestinationLongitude     *float64  `db:"destination_longitude"`
	DestinationICAO          *string   `db:"destination_icao"`
	DestinationRunwayHeading *float64  `db:"destination_runway_heading"`
	Status                   string    `db:"status"`
	CancellationProbability  int       `db:"cancellation_probability"`
	RiskLevel                *string   `db:"risk_level"`
	Version                  int       `db:"version"`
	CreatedAt                time.Time `db:"created_at"`
	UpdatedAt                time.Time `db:"updated_at"`
}

func (row bookingRow) toModel() models.Booking {
	booking := models.Booking{
		ID:              row.ID,
		StudentID:       row.StudentID,
		InstructorID:    row.InstructorID,
		TrainingLevel:   models.TrainingLevel(row.TrainingLevel),
		ScheduledDate:   row.ScheduledDate.UTC(),
		DurationMinutes: row.DurationMinutes,
		Departure: models.Location{
			Name:          row.DepartureName,
			Latitude:      row.DepartureLatitude,
			Longitude:     row.DepartureLongitude,
			ICAOCode:      row.DepartureICAO,
			RunwayHeading: row.DepartureRunwayHeading,
		},
		Status:                  models.BookingStatus(row.Status),
		CancellationProbability: row.CancellationProbability,
		Version:                 row.Version,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}
	if row.DestinationName != nil && row.DestinationLatitude != nil && row.DestinationLongitude != nil {
		booking.Destination = &models.Location{
			Name:          *row.DestinationName,
			Latitude:      *row.DestinationLatitude,
			Longitude:     *row.DestinationLongitude,
			ICAOCode:      row.DestinationICAO,
			RunwayHeading: row.DestinationRunwayHeading,
		}
	}
	if row.RiskLevel != nil {
		level := models.RiskLevel(*row.RiskLevel)
		booking.RiskLevel = &level
	}
	return booking
}

func bookingRowFromModel(b *models.Booking) bookingRow {
	row := bookingRow{
		ID:                      b.ID,
		StudentID:               b.StudentID,
		InstructorID:            b.InstructorID,
		TrainingLevel:           string(b.TrainingLevel),
		ScheduledDate:           b.ScheduledDate.UTC(),
		DurationMinutes:         b.DurationMinutes,
		DepartureName:           b.Departure.Name,
		DepartureLatitude:       b.Departure.Latitude,
		DepartureLongitude:      b.Departure.Longitude,
		DepartureICAO:           b.Departure.ICAOCode,
		DepartureRunwayHeading:  b.Departure.RunwayHeading,
		Status:                  string(b.Status),
		CancellationProbability: b.CancellationProbability,
		Version:                 b.Version,
		CreatedAt:               b.CreatedAt,
		UpdatedAt:               b.UpdatedAt,
	}
	if b.Destination != nil {
		row.DestinationName = &b.Destination.Name
		row.DestinationLatitude = &b.Destination.Latitude
		row.DestinationLongitude = &b.Destination.Longitude
		row.DestinationICAO = b.Destination.ICAOCode
		row.DestinationRunwayHeading = b.Destination.RunwayHeading
	}
	if b.RiskLevel != nil {
		level := string(*b.RiskLevel)
		row.RiskLevel = &level
	}
	return row
}

// BookingRepository persists training flight bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a booking. It returns sql.ErrNoRows when absent.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = $1", bookingColumns)
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	booking := row.toModel()
	return &booking, nil
}

// List returns bookings matching the filter ordered by scheduled date.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	return r.list(ctx, r.db, filter)
}

// ListOverlapping returns active bookings of the instructor intersecting [start, end).
// Passing a transaction keeps the check inside it.
func (r *BookingRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, instructorID string, start, end time.Time, excludeID string) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings
WHERE instructor_id = $1 AND status IN ('%s','%s') AND id <> $2
AND scheduled_date < $3 AND scheduled_date + make_interval(mins => duration_minutes) > $4
ORDER BY scheduled_date ASC`, bookingColumns, models.BookingStatusScheduled, models.BookingStatusAtRisk)
	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, instructorID, excludeID, end.UTC(), start.UTC()); err != nil {
		return nil, fmt.Errorf("list overlapping bookings: %w", err)
	}
	return toBookings(rows), nil
}

func (r *BookingRepository) list(ctx context.Context, exec sqlx.ExtContext, filter models.BookingFilter) ([]models.Booking, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString("SELECT ")
	builder.WriteString(bookingColumns)
	builder.WriteString(" FROM bookings")

	conditions := make([]string, 0, 5)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if filter.ExcludeID != "" {
		args = append(args, filter.ExcludeID)
		conditions = append(conditions, fmt.Sprintf("id <> $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, fmt.Sprintf("scheduled_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, fmt.Sprintf("scheduled_date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY scheduled_date ASC")
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, exec, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return toBookings(rows), nil
}

// Create inserts a booking, assigning id, version and timestamps.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking payload is nil")
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusScheduled
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Version == 0 {
		booking.Version = 1
	}

	const query = `INSERT INTO bookings
	(id, student_id, instructor_id, training_level, scheduled_date, duration_minutes,
	 departure_name, departure_latitude, departure_longitude, departure_icao, departure_runway_heading,
	 destination_name, destination_latitude, destination_longitude, destination_icao, destination_runway_heading,
	 status, cancellation_probability, risk_level, version, created_at, updated_at)
	VALUES (:id, :student_id, :instructor_id, :training_level, :scheduled_date, :duration_minutes,
	 :departure_name, :departure_latitude, :departure_longitude, :departure_icao, :departure_runway_heading,
	 :destination_name, :destination_latitude, :destination_longitude, :destination_icao, :destination_runway_heading,
	 :status, :cancellation_probability, :risk_level, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, bookingRowFromModel(booking)); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// MarkRescheduled moves an active booking to RESCHEDULED. It returns
// sql.ErrNoRows when the booking is no longer active.
func (r *BookingRepository) MarkRescheduled(ctx context.Context, exec sqlx.ExtContext, id string) error {
	query := fmt.Sprintf(`UPDATE bookings SET status = $1, version = version + 1, updated_at = $2
WHERE id = $3 AND status IN ('%s','%s')`, models.BookingStatusScheduled, models.BookingStatusAtRisk)
	result, err := r.exec(exec).ExecContext(ctx, query, string(models.BookingStatusRescheduled), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark booking rescheduled: %w", err)
	}
	return expectAffected(result, "mark booking rescheduled")
}

// UpdateRunwayHeading stores an enriched departure runway heading. The
// booking version is left untouched.
func (r *BookingRepository) UpdateRunwayHeading(ctx context.Context, id string, heading float64) error {
	const query = `UPDATE bookings SET departure_runway_heading = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, heading, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update runway heading: %w", err)
	}
	return expectAffected(result, "update runway heading")
}

// RiskUpdate carries the outcome of a weather check for one booking.
type RiskUpdate struct {
	ID          string
	Version     int
	Status      models.BookingStatus
	Probability int
	RiskLevel   models.RiskLevel
}

// ApplyRiskUpdate persists a risk assessment when the booking still has the
// expected version and is active. It returns sql.ErrNoRows otherwise.
func (r *BookingRepository) ApplyRiskUpdate(ctx context.Context, exec sqlx.ExtContext, update RiskUpdate) error {
	query := fmt.Sprintf(`UPDATE bookings SET status = :status, cancellation_probability = :probability,
risk_level = :risk_level, version = version + 1, updated_at = :updated_at
WHERE id = :id AND version = :version AND status IN ('%s','%s')`, models.BookingStatusScheduled, models.BookingStatusAtRisk)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":          update.ID,
		"version":     update.Version,
		"status":      string(update.Status),
		"probability": update.Probability,
		"risk_level":  string(update.RiskLevel),
		"updated_at":  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("apply risk update: %w", err)
	}
	return expectAffected(result, "apply risk update")
}

func toBookings(rows []bookingRow) []models.Booking {
	bookings := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toModel())
	}
	return bookings
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
