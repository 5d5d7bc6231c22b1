package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

var rescheduleColumnNames = []string{
	"id", "original_booking_id", "proposed_date", "proposed_duration", "ai_reasoning", "weather_forecast",
	"status", "student_confirmed_at", "instructor_confirmed_at", "rejection_reason", "new_booking_id", "created_at", "updated_at",
}

func TestRescheduleRequestRepositoryCreateOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRescheduleRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (original_booking_id) WHERE status IN ('PENDING_STUDENT','PENDING_INSTRUCTOR') DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	confirmed := time.Now().UTC()
	req := &models.RescheduleRequest{
		OriginalBookingID:  "bk-1",
		ProposedDate:       time.Now().Add(48 * time.Hour),
		ProposedDuration:   90,
		AIReasoning:        "calm morning winds",
		WeatherForecast:    &models.WeatherSnapshot{Visibility: 10, Source: "open-meteo"},
		StudentConfirmedAt: &confirmed,
	}
	require.NoError(t, repo.CreateOpen(context.Background(), nil, req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.RescheduleStatusPendingInstructor, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRequestRepositoryCreateOpenDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRescheduleRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reschedule_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateOpen(context.Background(), nil, &models.RescheduleRequest{OriginalBookingID: "bk-1", ProposedDate: time.Now()})
	assert.ErrorIs(t, err, ErrOpenRequestExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRequestRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRescheduleRequestRepository(db)

	proposed := time.Date(2026, 6, 4, 16, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(rescheduleColumnNames).
		AddRow("req-1", "bk-1", proposed, 90, "clear skies", []byte(`{"visibility":10,"windSpeed":4,"source":"open-meteo"}`),
			"PENDING_INSTRUCTOR", time.Now(), nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, original_booking_id, proposed_date")).
		WithArgs("req-1").
		WillReturnRows(rows)

	req, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleStatusPendingInstructor, req.Status)
	assert.Equal(t, proposed, req.ProposedDate)
	require.NotNil(t, req.WeatherForecast)
	assert.Equal(t, 10.0, req.WeatherForecast.Visibility)
	assert.Equal(t, "open-meteo", req.WeatherForecast.Source)
	assert.NotNil(t, req.StudentConfirmedAt)
	assert.Nil(t, req.InstructorConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRequestRepositoryFindByIDWithoutForecast(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRescheduleRequestRepository(db)

	rows := sqlmock.NewRows(rescheduleColumnNames).
		AddRow("req-1", "bk-1", time.Now(), 60, "", nil, "REJECTED", nil, time.Now(), "busy", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM reschedule_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(rows)

	req, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Nil(t, req.WeatherForecast)
	require.NotNil(t, req.RejectionReason)
	assert.Equal(t, "busy", *req.RejectionReason)
}

func TestRescheduleRequestRepositoryResolveGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRescheduleRequestRepository(db)

	newBooking := "bk-2"
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = 'PENDING_INSTRUCTOR'")).
		WithArgs("APPROVED", sqlmock.AnyArg(), nil, &newBooking, sqlmock.AnyArg(), "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = 'PENDING_INSTRUCTOR'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	params := ResolveParams{
		ID:                    "req-1",
		Status:                models.RescheduleStatusApproved,
		InstructorConfirmedAt: time.Now(),
		NewBookingID:          &newBooking,
	}
	require.NoError(t, repo.Resolve(context.Background(), nil, params))
	assert.ErrorIs(t, repo.Resolve(context.Background(), nil, params), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
