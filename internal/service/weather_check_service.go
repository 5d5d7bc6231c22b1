package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/dto"
	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/internal/repository"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	"github.com/noah-isme/flightwx-scheduler/pkg/database"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
	"github.com/noah-isme/flightwx-scheduler/pkg/logger"
	"github.com/noah-isme/flightwx-scheduler/pkg/middleware/requestid"
)

// Sweep modes reported in metrics and logs.
const (
	SweepModeUpcoming = "upcoming"
	SweepModeAll      = "all"
)

type weatherCheckBookingStore interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	UpdateRunwayHeading(ctx context.Context, id string, heading float64) error
	ApplyRiskUpdate(ctx context.Context, exec sqlx.ExtContext, update repository.RiskUpdate) error
}

type weatherCheckLogStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entry *models.WeatherCheckLog) error
}

// RunwayDirectory resolves the primary runway heading of an airport.
type RunwayDirectory interface {
	RunwayHeading(ctx context.Context, icao string) (*float64, error)
}

// WeatherCheckConfig bounds the sweep.
type WeatherCheckConfig struct {
	Horizon            time.Duration
	InteractiveHorizon time.Duration
	Concurrency        int
	LookupTimeout      time.Duration
}

// WeatherCheckService evaluates bookings against forecast weather and
// persists the resulting risk.
type WeatherCheckService struct {
	db        txProvider
	bookings  weatherCheckBookingStore
	checks    weatherCheckLogStore
	weather   weatherFetcher
	directory RunwayDirectory
	notifier  notificationDispatcher
	metrics   *MetricsService
	clock     clock.Clock
	cfg       WeatherCheckConfig
	logger    *zap.Logger
}

// NewWeatherCheckService wires the sweep. directory and notifier may be nil.
func NewWeatherCheckService(
	db txProvider,
	bookings weatherCheckBookingStore,
	checks weatherCheckLogStore,
	weather weatherFetcher,
	directory RunwayDirectory,
	notifier notificationDispatcher,
	metrics *MetricsService,
	clk clock.Clock,
	cfg WeatherCheckConfig,
	logger *zap.Logger,
) *WeatherCheckService {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 48 * time.Hour
	}
	if cfg.InteractiveHorizon <= 0 {
		cfg.InteractiveHorizon = defaultRescheduleHorizon
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultUpstreamTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherCheckService{
		db:        db,
		bookings:  bookings,
		checks:    checks,
		weather:   weather,
		directory: directory,
		notifier:  notifier,
		metrics:   metrics,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// CheckFlightWeather evaluates a single booking. Errors propagate.
func (s *WeatherCheckService) CheckFlightWeather(ctx context.Context, bookingID string) (*dto.FlightWeatherCheck, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("booking %s not found", bookingID))
		}
		return nil, appErrors.Internal(err, "failed to load booking")
	}
	if !booking.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "booking is not active")
	}
	return s.checkBooking(ctx, booking)
}

// CheckUpcomingFlights is the automated sweep over the near horizon.
func (s *WeatherCheckService) CheckUpcomingFlights(ctx context.Context) (*dto.SweepSummary, error) {
	return s.sweep(ctx, SweepModeUpcoming, s.cfg.Horizon)
}

// CheckAllFlights is the interactive sweep over the full reschedule horizon.
func (s *WeatherCheckService) CheckAllFlights(ctx context.Context) (*dto.SweepSummary, error) {
	return s.sweep(ctx, SweepModeAll, s.cfg.InteractiveHorizon)
}

func (s *WeatherCheckService) sweep(ctx context.Context, mode string, horizon time.Duration) (*dto.SweepSummary, error) {
	runID := requestid.NewID()
	ctx = requestid.WithContext(ctx, runID)
	log := logger.FromContext(ctx, s.logger).With(zap.String("sweep_mode", mode))
	started := s.clock.Now()

	bookings, err := s.bookings.List(ctx, models.BookingFilter{
		Statuses: []models.BookingStatus{models.BookingStatusScheduled, models.BookingStatusAtRisk},
		From:     started,
		To:       started.Add(horizon),
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bookings for sweep")
	}
	log.Info("weather sweep started", zap.Int("bookings", len(bookings)), zap.Duration("horizon", horizon))

	summary := &dto.SweepSummary{RunID: runID, Errors: []dto.SweepError{}}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Concurrency)
	)
	for i := range bookings {
		booking := bookings[i]
		if ctx.Err() != nil {
			mu.Lock()
			summary.Errors = append(summary.Errors, dto.SweepError{BookingID: booking.ID, Error: ctx.Err().Error()})
			mu.Unlock()
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.checkBooking(ctx, &booking)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("weather check failed", zap.String("booking_id", booking.ID), zap.Error(err))
				summary.Errors = append(summary.Errors, dto.SweepError{BookingID: booking.ID, Error: err.Error()})
				return
			}
			summary.Checked++
			if result.Status == models.BookingStatusAtRisk {
				summary.AtRisk++
			}
		}()
	}
	wg.Wait()

	elapsed := s.clock.Since(started)
	s.metrics.ObserveSweep(mode, summary.Checked, summary.AtRisk, len(summary.Errors), elapsed)
	log.Info("weather sweep finished",
		zap.Int("checked", summary.Checked),
		zap.Int("at_risk", summary.AtRisk),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("elapsed", elapsed),
	)
	return summary, nil
}

func (s *WeatherCheckService) checkBooking(ctx context.Context, booking *models.Booking) (*dto.FlightWeatherCheck, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("booking_id", booking.ID))

	s.enrichRunway(ctx, booking, log)

	snapshot, source, err := s.weather.Fetch(ctx, booking.Departure, booking.ScheduledDate)
	if err != nil {
		return nil, err
	}
	evaluation := EvaluateWeather(snapshot, MinimumsFor(booking.TrainingLevel), booking.Departure.RunwayHeading)
	assessment := ScoreCancellationRisk(evaluation, booking.TrainingLevel)
	status := BookingStatusFor(assessment.Probability)

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode weather snapshot")
	}
	violations := evaluation.Violations
	if violations == nil {
		violations = []string{}
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode violations")
	}
	entry := &models.WeatherCheckLog{
		BookingID:     booking.ID,
		Source:        source,
		Snapshot:      snapshotJSON,
		Violations:    violationsJSON,
		SeverityScore: evaluation.SeverityScore,
		Probability:   assessment.Probability,
		RiskLevel:     assessment.RiskLevel,
		IsSafe:        evaluation.IsSafe,
		CheckedAt:     s.clock.Now(),
	}

	err = database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.bookings.ApplyRiskUpdate(ctx, tx, repository.RiskUpdate{
			ID:          booking.ID,
			Version:     booking.Version,
			Status:      status,
			Probability: assessment.Probability,
			RiskLevel:   assessment.RiskLevel,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "booking changed during weather check")
			}
			return err
		}
		return s.checks.Append(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrConflict) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to persist weather check")
	}
	s.metrics.RecordRiskAssessment(assessment.RiskLevel)

	newlyAtRisk := booking.Status != models.BookingStatusAtRisk && status == models.BookingStatusAtRisk
	log.Info("weather check completed",
		zap.String("source", source),
		zap.Int("probability", assessment.Probability),
		zap.String("risk_level", string(assessment.RiskLevel)),
		zap.Bool("newly_at_risk", newlyAtRisk),
	)
	if newlyAtRisk {
		s.notifyConflict(ctx, booking, assessment)
	}

	return &dto.FlightWeatherCheck{
		BookingID:   booking.ID,
		Source:      source,
		Weather:     snapshot,
		Evaluation:  evaluation,
		Assessment:  assessment,
		Status:      status,
		NewlyAtRisk: newlyAtRisk,
	}, nil
}

// enrichRunway fills a missing departure runway heading. Failures only warn.
func (s *WeatherCheckService) enrichRunway(ctx context.Context, booking *models.Booking, log *zap.Logger) {
	if s.directory == nil || booking.Departure.RunwayHeading != nil || booking.Departure.ICAOCode == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	heading, err := s.directory.RunwayHeading(lookupCtx, *booking.Departure.ICAOCode)
	cancel()
	if err != nil {
		log.Warn("runway lookup failed", zap.String("icao", *booking.Departure.ICAOCode), zap.Error(err))
		return
	}
	if heading == nil {
		return
	}
	booking.Departure.RunwayHeading = heading
	if err := s.bookings.UpdateRunwayHeading(ctx, booking.ID, *heading); err != nil {
		log.Warn("failed to persist runway heading", zap.Error(err))
	}
}

func (s *WeatherCheckService) notifyConflict(ctx context.Context, booking *models.Booking, assessment models.CancellationAssessment) {
	if s.notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"bookingId":   booking.ID,
		"scheduledAt": booking.ScheduledDate,
		"departure":   booking.Departure.Name,
		"probability": assessment.Probability,
		"riskLevel":   assessment.RiskLevel,
		"reasons":     assessment.Reasons,
	}
	for _, recipient := range []string{booking.StudentID, booking.InstructorID} {
		s.notifier.Notify(ctx, models.Notification{
			Kind:      models.NotificationWeatherConflict,
			Recipient: recipient,
			Payload:   payload,
		})
	}
}
