package dto

import "github.com/noah-isme/flightwx-scheduler/internal/models"

// FlightWeatherCheck is the outcome of evaluating a single booking.
type FlightWeatherCheck struct {
	BookingID   string                        `json:"bookingId"`
	Source      string                        `json:"source"`
	Weather     models.WeatherSnapshot        `json:"weather"`
	Evaluation  models.EvaluationResult       `json:"evaluation"`
	Assessment  models.CancellationAssessment `json:"assessment"`
	Status      models.BookingStatus          `json:"status"`
	NewlyAtRisk bool                          `json:"newlyAtRisk"`
}

// SweepError records a single booking failure within a sweep.
type SweepError struct {
	BookingID string `json:"bookingId"`
	Error     string `json:"error"`
}

// SweepSummary aggregates a sweep run.
type SweepSummary struct {
	RunID   string       `json:"runId"`
	Checked int          `json:"checked"`
	AtRisk  int          `json:"atRisk"`
	Errors  []SweepError `json:"errors"`
}
