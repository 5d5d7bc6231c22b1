package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/dto"
	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/internal/repository"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
	"github.com/noah-isme/flightwx-scheduler/pkg/logger"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type rescheduleBookingStore interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, instructorID string, start, end time.Time, excludeID string) ([]models.Booking, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	MarkRescheduled(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type rescheduleRequestStore interface {
	CreateOpen(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error
	FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error)
	Resolve(ctx context.Context, exec sqlx.ExtContext, params repository.ResolveParams) error
}

type optionGenerator interface {
	GenerateOptions(ctx context.Context, booking *models.Booking) ([]models.RescheduleOption, error)
	CheckSlot(ctx context.Context, booking *models.Booking, start time.Time, durationMinutes int) error
}

type notificationDispatcher interface {
	Notify(ctx context.Context, n models.Notification)
}

// RescheduleService drives the negotiation between student and instructor
// for an at-risk booking.
type RescheduleService struct {
	db        txProvider
	bookings  rescheduleBookingStore
	requests  rescheduleRequestStore
	options   optionGenerator
	weather   weatherFetcher
	notifier  notificationDispatcher
	validator *validator.Validate
	clock     clock.Clock
	logger    *zap.Logger
}

// NewRescheduleService constructs the workflow service. weather may be nil,
// in which case no forecast is captured on acceptance.
func NewRescheduleService(
	db txProvider,
	bookings rescheduleBookingStore,
	requests rescheduleRequestStore,
	options optionGenerator,
	weather weatherFetcher,
	notifier notificationDispatcher,
	validate *validator.Validate,
	clk clock.Clock,
	logger *zap.Logger,
) *RescheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleService{
		db:        db,
		bookings:  bookings,
		requests:  requests,
		options:   options,
		weather:   weather,
		notifier:  notifier,
		validator: validate,
		clock:     clk,
		logger:    logger,
	}
}

// GenerateOptions returns three reschedule options for an at-risk booking.
func (s *RescheduleService) GenerateOptions(ctx context.Context, bookingID string, actor *models.Actor) (*dto.RescheduleOptionsResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != booking.StudentID && actor.UserID != booking.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's student or instructor may request options")
	}
	if booking.Status != models.BookingStatusAtRisk {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "booking is not at risk")
	}

	options, err := s.options.GenerateOptions(ctx, booking)
	if err != nil {
		return nil, err
	}
	return &dto.RescheduleOptionsResponse{BookingID: booking.ID, Options: options}, nil
}

// AcceptOption records the student's choice as a request awaiting the
// instructor. A booking never has more than one open request.
func (s *RescheduleService) AcceptOption(ctx context.Context, req dto.AcceptOptionRequest, actor *models.Actor) (*models.RescheduleRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule option")
	}
	booking, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != booking.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's student may accept an option")
	}
	if booking.Status != models.BookingStatusAtRisk {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "booking is not at risk")
	}

	option := req.Option
	option.SuggestedDate = option.SuggestedDate.UTC()
	if err := s.options.CheckSlot(ctx, booking, option.SuggestedDate, option.SuggestedDuration); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.logger).With(zap.String("booking_id", booking.ID))
	now := s.clock.Now()
	request := &models.RescheduleRequest{
		OriginalBookingID:  booking.ID,
		ProposedDate:       option.SuggestedDate,
		ProposedDuration:   option.SuggestedDuration,
		AIReasoning:        option.Reasoning,
		WeatherForecast:    s.captureForecast(ctx, booking.Departure, option.SuggestedDate, log),
		Status:             models.RescheduleStatusPendingInstructor,
		StudentConfirmedAt: &now,
	}
	if err := s.requests.CreateOpen(ctx, nil, request); err != nil {
		if errors.Is(err, repository.ErrOpenRequestExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "booking already has an open reschedule request")
		}
		return nil, appErrors.Internal(err, "failed to create reschedule request")
	}
	log.Info("reschedule option accepted", zap.String("request_id", request.ID), zap.Time("proposed_date", request.ProposedDate))

	s.notify(ctx, models.Notification{
		Kind:      models.NotificationRescheduleRequest,
		Recipient: booking.InstructorID,
		Payload: map[string]interface{}{
			"requestId":        request.ID,
			"bookingId":        booking.ID,
			"studentId":        booking.StudentID,
			"originalDate":     booking.ScheduledDate,
			"proposedDate":     request.ProposedDate,
			"proposedDuration": request.ProposedDuration,
			"reasoning":        request.AIReasoning,
		},
	})
	return request, nil
}

// RespondToReschedule applies the instructor's decision. Approval replaces
// the original booking with a new one in a single transaction.
func (s *RescheduleService) RespondToReschedule(ctx context.Context, req dto.RespondRescheduleRequest, actor *models.Actor) (*dto.RescheduleDecisionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule response")
	}
	request, err := s.loadRequest(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	booking, err := s.loadBooking(ctx, request.OriginalBookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != booking.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's instructor may respond")
	}
	if request.Status != models.RescheduleStatusPendingInstructor {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reschedule request is no longer pending")
	}

	if req.Approved {
		return s.approve(ctx, request, booking)
	}
	return s.reject(ctx, request, booking, strings.TrimSpace(req.Reason))
}

// GetRequest returns a request to one of its two parties.
func (s *RescheduleService) GetRequest(ctx context.Context, id string, actor *models.Actor) (*models.RescheduleRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return request, nil
	}
	booking, err := s.loadBooking(ctx, request.OriginalBookingID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.StudentID && actor.UserID != booking.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a party to this reschedule request")
	}
	return request, nil
}

func (s *RescheduleService) approve(ctx context.Context, request *models.RescheduleRequest, original *models.Booking) (*dto.RescheduleDecisionResponse, error) {
	now := s.clock.Now()
	start := request.ProposedDate
	end := start.Add(time.Duration(request.ProposedDuration) * time.Minute)
	newBooking := &models.Booking{
		StudentID:       original.StudentID,
		InstructorID:    original.InstructorID,
		TrainingLevel:   original.TrainingLevel,
		ScheduledDate:   start,
		DurationMinutes: request.ProposedDuration,
		Departure:       original.Departure,
		Destination:     original.Destination,
		Status:          models.BookingStatusScheduled,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var clashes []models.Booking
	clashes, err = s.bookings.ListOverlapping(ctx, tx, original.InstructorID, start, end, original.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check instructor availability")
	}
	if len(clashes) > 0 {
		err = appErrors.Clone(appErrors.ErrConflict, "instructor is already booked for the proposed slot")
		return nil, err
	}
	if err = s.bookings.Create(ctx, tx, newBooking); err != nil {
		return nil, appErrors.Internal(err, "failed to create rescheduled booking")
	}
	if err = s.bookings.MarkRescheduled(ctx, tx, original.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrConflict, "original booking is no longer active")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update original booking")
	}
	newID := newBooking.ID
	if err = s.requests.Resolve(ctx, tx, repository.ResolveParams{
		ID:                    request.ID,
		Status:                models.RescheduleStatusApproved,
		InstructorConfirmedAt: now,
		NewBookingID:          &newID,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrConflict, "reschedule request is no longer pending")
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to approve reschedule request")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit reschedule approval")
	}

	request.Status = models.RescheduleStatusApproved
	request.InstructorConfirmedAt = &now
	request.NewBookingID = &newID
	request.UpdatedAt = now

	logger.FromContext(ctx, s.logger).Info("reschedule approved",
		zap.String("request_id", request.ID),
		zap.String("booking_id", original.ID),
		zap.String("new_booking_id", newID),
	)

	s.notify(ctx, models.Notification{
		Kind:      models.NotificationRescheduleConfirmation,
		Recipient: original.StudentID,
		Payload: map[string]interface{}{
			"requestId":    request.ID,
			"approved":     true,
			"bookingId":    original.ID,
			"newBookingId": newID,
			"scheduledAt":  start,
		},
	})
	for _, recipient := range []string{original.StudentID, original.InstructorID} {
		s.notify(ctx, models.Notification{
			Kind:      models.NotificationBookingConfirmation,
			Recipient: recipient,
			Payload: map[string]interface{}{
				"bookingId":       newID,
				"scheduledAt":     start,
				"durationMinutes": request.ProposedDuration,
				"departure":       original.Departure.Name,
			},
		})
	}

	return &dto.RescheduleDecisionResponse{Request: request, NewBooking: newBooking}, nil
}

func (s *RescheduleService) reject(ctx context.Context, request *models.RescheduleRequest, booking *models.Booking, reason string) (*dto.RescheduleDecisionResponse, error) {
	now := s.clock.Now()
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.requests.Resolve(ctx, nil, repository.ResolveParams{
		ID:                    request.ID,
		Status:                models.RescheduleStatusRejected,
		InstructorConfirmedAt: now,
		RejectionReason:       reasonPtr,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "reschedule request is no longer pending")
		}
		return nil, appErrors.Internal(err, "failed to reject reschedule request")
	}

	request.Status = models.RescheduleStatusRejected
	request.InstructorConfirmedAt = &now
	request.RejectionReason = reasonPtr
	request.UpdatedAt = now

	logger.FromContext(ctx, s.logger).Info("reschedule rejected",
		zap.String("request_id", request.ID),
		zap.String("booking_id", booking.ID),
	)

	s.notify(ctx, models.Notification{
		Kind:      models.NotificationRescheduleConfirmation,
		Recipient: booking.StudentID,
		Payload: map[string]interface{}{
			"requestId": request.ID,
			"approved":  false,
			"bookingId": booking.ID,
			"reason":    reason,
		},
	})
	return &dto.RescheduleDecisionResponse{Request: request}, nil
}

// captureForecast is best effort; the request is valid without it.
func (s *RescheduleService) captureForecast(ctx context.Context, location models.Location, target time.Time, log *zap.Logger) *models.WeatherSnapshot {
	if s.weather == nil {
		return nil
	}
	snapshot, _, err := s.weather.Fetch(ctx, location, target)
	if err != nil {
		log.Warn("forecast capture for proposed slot failed", zap.Error(err))
		return nil
	}
	return &snapshot
}

func (s *RescheduleService) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

func (s *RescheduleService) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("booking %s not found", id))
		}
		return nil, appErrors.Internal(err, "failed to load booking")
	}
	return booking, nil
}

func (s *RescheduleService) loadRequest(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("reschedule request %s not found", id))
		}
		return nil, appErrors.Internal(err, "failed to load reschedule request")
	}
	return request, nil
}
