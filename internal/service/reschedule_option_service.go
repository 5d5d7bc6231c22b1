package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
	"github.com/noah-isme/flightwx-scheduler/pkg/logger"
)

// Assistant returns JSON text for a prompt.
type Assistant interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type weatherFetcher interface {
	Fetch(ctx context.Context, location models.Location, target time.Time) (models.WeatherSnapshot, string, error)
}

type bookingLister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}

const (
	requiredRescheduleOptions = 3
	defaultMaxCandidates      = 5
	defaultRescheduleHorizon  = 7 * 24 * time.Hour
)

// RescheduleOptionConfig tunes candidate enumeration.
type RescheduleOptionConfig struct {
	MaxCandidates int
	Horizon       time.Duration
	Timeout       time.Duration
}

// RescheduleOptionService asks the assistant for alternative slots and keeps
// only those that pass local validation.
type RescheduleOptionService struct {
	weather   weatherFetcher
	assistant Assistant
	bookings  bookingLister
	validator *validator.Validate
	clock     clock.Clock
	cfg       RescheduleOptionConfig
	logger    *zap.Logger
}

// NewRescheduleOptionService wires the generator.
func NewRescheduleOptionService(weather weatherFetcher, assistant Assistant, bookings bookingLister, validate *validator.Validate, clk clock.Clock, cfg RescheduleOptionConfig, logger *zap.Logger) *RescheduleOptionService {
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = defaultRescheduleHorizon
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUpstreamTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleOptionService{
		weather:   weather,
		assistant: assistant,
		bookings:  bookings,
		validator: validate,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

type candidateSlot struct {
	Start      time.Time                     `json:"start"`
	Source     string                        `json:"source"`
	Forecast   models.WeatherSnapshot        `json:"forecast"`
	Evaluation models.EvaluationResult       `json:"evaluation"`
	Risk       models.CancellationAssessment `json:"risk"`
}

// GenerateOptions returns exactly three validated slots for booking ordered
// by descending confidence. It performs no writes.
func (s *RescheduleOptionService) GenerateOptions(ctx context.Context, booking *models.Booking) ([]models.RescheduleOption, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("booking_id", booking.ID))
	now := s.clock.Now()

	dates := s.candidateDates(booking.ScheduledDate, now)
	if len(dates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficientOptions, "no candidate dates inside the reschedule horizon")
	}

	minimums := MinimumsFor(booking.TrainingLevel)
	candidates := make([]candidateSlot, 0, len(dates))
	var lastErr error
	for _, date := range dates {
		snapshot, source, err := s.weather.Fetch(ctx, booking.Departure, date)
		if err != nil {
			log.Warn("skipping candidate without forecast", zap.Time("candidate", date), zap.Error(err))
			lastErr = err
			continue
		}
		evaluation := EvaluateWeather(snapshot, minimums, booking.Departure.RunwayHeading)
		candidates = append(candidates, candidateSlot{
			Start:      date,
			Source:     source,
			Forecast:   snapshot,
			Evaluation: evaluation,
			Risk:       ScoreCancellationRisk(evaluation, booking.TrainingLevel),
		})
	}
	if len(candidates) == 0 {
		return nil, appErrors.Upstream(lastErr, "weather unavailable for every candidate slot")
	}

	prompt, err := buildReschedulePrompt(booking, minimums, candidates, s.cfg.Horizon)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to build reschedule prompt")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	raw, err := s.assistant.Complete(callCtx, prompt)
	cancel()
	if err != nil {
		return nil, appErrors.Upstream(err, "reschedule assistant unavailable")
	}

	proposed, err := s.decodeOptions(raw, log)
	if err != nil {
		return nil, err
	}

	busy, err := s.instructorBookings(ctx, booking, now)
	if err != nil {
		return nil, err
	}

	valid := make([]models.RescheduleOption, 0, len(proposed))
	seen := make(map[time.Time]int, len(proposed))
	for _, option := range proposed {
		if reason := s.slotProblem(option.SuggestedDate, option.SuggestedDuration, now, busy); reason != "" {
			log.Debug("discarding assistant option", zap.Time("suggested", option.SuggestedDate), zap.String("reason", reason))
			continue
		}
		// One option per start time; the more confident duplicate wins.
		if i, dup := seen[option.SuggestedDate]; dup {
			log.Debug("discarding duplicate assistant option", zap.Time("suggested", option.SuggestedDate))
			if option.ConfidenceScore > valid[i].ConfidenceScore {
				valid[i] = option
			}
			continue
		}
		seen[option.SuggestedDate] = len(valid)
		valid = append(valid, option)
	}
	if len(valid) < requiredRescheduleOptions {
		return nil, appErrors.Clone(appErrors.ErrInsufficientOptions,
			fmt.Sprintf("only %d of %d required reschedule options passed validation", len(valid), requiredRescheduleOptions))
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].ConfidenceScore > valid[j].ConfidenceScore
	})
	return valid[:requiredRescheduleOptions], nil
}

// CheckSlot re-validates a chosen slot: strictly future, inside the horizon
// and free of the instructor's other active bookings.
func (s *RescheduleOptionService) CheckSlot(ctx context.Context, booking *models.Booking, start time.Time, durationMinutes int) error {
	now := s.clock.Now()
	if !start.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "proposed slot is in the past")
	}
	if start.After(now.Add(s.cfg.Horizon)) {
		return appErrors.Clone(appErrors.ErrValidation, "proposed slot is beyond the reschedule horizon")
	}
	busy, err := s.instructorBookings(ctx, booking, now)
	if err != nil {
		return err
	}
	if reason := s.slotProblem(start, durationMinutes, now, busy); reason != "" {
		return appErrors.Clone(appErrors.ErrConflict, reason)
	}
	return nil
}

// candidateDates keeps the original time of day, offsets 1..7 days, and
// drops anything past or beyond the horizon.
func (s *RescheduleOptionService) candidateDates(original, now time.Time) []time.Time {
	limit := now.Add(s.cfg.Horizon)
	dates := make([]time.Time, 0, s.cfg.MaxCandidates)
	for offset := 1; offset <= 7 && len(dates) < s.cfg.MaxCandidates; offset++ {
		candidate := original.AddDate(0, 0, offset)
		if !candidate.After(now) || candidate.After(limit) {
			continue
		}
		dates = append(dates, candidate)
	}
	return dates
}

func (s *RescheduleOptionService) decodeOptions(raw string, log *zap.Logger) ([]models.RescheduleOption, error) {
	var envelope struct {
		Options []json.RawMessage `json:"options"`
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&envelope); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "assistant returned malformed options")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assistant returned trailing data after options")
	}
	if envelope.Options == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assistant response has no options")
	}

	options := make([]models.RescheduleOption, 0, len(envelope.Options))
	for i, item := range envelope.Options {
		var option models.RescheduleOption
		itemDec := json.NewDecoder(bytes.NewReader(item))
		itemDec.DisallowUnknownFields()
		if err := itemDec.Decode(&option); err != nil {
			log.Debug("discarding undecodable option", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := s.validator.Struct(option); err != nil {
			log.Debug("discarding invalid option", zap.Int("index", i), zap.Error(err))
			continue
		}
		option.SuggestedDate = option.SuggestedDate.UTC()
		options = append(options, option)
	}
	return options, nil
}

func (s *RescheduleOptionService) instructorBookings(ctx context.Context, booking *models.Booking, now time.Time) ([]models.Booking, error) {
	// Start a day early so bookings that began before now but still run are seen.
	busy, err := s.bookings.List(ctx, models.BookingFilter{
		Statuses:     []models.BookingStatus{models.BookingStatusScheduled, models.BookingStatusAtRisk},
		InstructorID: booking.InstructorID,
		ExcludeID:    booking.ID,
		From:         now.Add(-24 * time.Hour),
		To:           now.Add(s.cfg.Horizon + 24*time.Hour),
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load instructor schedule")
	}
	return busy, nil
}

func (s *RescheduleOptionService) slotProblem(start time.Time, durationMinutes int, now time.Time, busy []models.Booking) string {
	if !start.After(now) {
		return "in the past"
	}
	if start.After(now.Add(s.cfg.Horizon)) {
		return "beyond horizon"
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for i := range busy {
		if overlaps(start, end, busy[i].ScheduledDate, busy[i].EndsAt()) {
			return "instructor already booked"
		}
	}
	return ""
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func buildReschedulePrompt(booking *models.Booking, minimums models.TrainingLevelMinimums, candidates []candidateSlot, horizon time.Duration) (string, error) {
	type promptBooking struct {
		ID              string               `json:"id"`
		TrainingLevel   models.TrainingLevel `json:"trainingLevel"`
		ScheduledDate   time.Time            `json:"scheduledDate"`
		DurationMinutes int                  `json:"durationMinutes"`
		Departure       models.Location      `json:"departure"`
		Destination     *models.Location     `json:"destination,omitempty"`
	}
	payload := map[string]interface{}{
		"task": fmt.Sprintf("Pick exactly %d reschedule slots from candidates, preferring slots that meet the minimums. "+
			"Keep durationMinutes unless weather argues for shorter. Slots must start within %d days. "+
			`Respond as {"options":[{"suggestedDate","suggestedDuration","weatherSummary","reasoning","confidenceScore"}]}.`,
			requiredRescheduleOptions, int(horizon.Hours()/24)),
		"booking": promptBooking{
			ID:              booking.ID,
			TrainingLevel:   booking.TrainingLevel,
			ScheduledDate:   booking.ScheduledDate,
			DurationMinutes: booking.DurationMinutes,
			Departure:       booking.Departure,
			Destination:     booking.Destination,
		},
		"minimums":   minimums,
		"candidates": candidates,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
