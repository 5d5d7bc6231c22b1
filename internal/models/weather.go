package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// WeatherSnapshot is a single point forecast or observation. Snapshots are
// never mutated after a provider returns them.
type WeatherSnapshot struct {
	Temperature            float64   `json:"temperature"`
	WindSpeed              float64   `json:"windSpeed"`
	WindDirection          *float64  `json:"windDirection,omitempty"`
	WindGust               *float64  `json:"windGust,omitempty"`
	Visibility             float64   `json:"visibility"`
	CloudCover             float64   `json:"cloudCover"`
	Ceiling                *float64  `json:"ceiling,omitempty"`
	PrecipitationType      string    `json:"precipitationType,omitempty"`
	PrecipitationIntensity float64   `json:"precipitationIntensity"`
	Conditions             string    `json:"conditions"`
	Timestamp              time.Time `json:"timestamp"`
	Source                 string    `json:"source"`
}

// TrainingLevelMinimums are the weather limits a training level may fly in.
type TrainingLevelMinimums struct {
	Visibility   float64  `json:"visibility"`
	Ceiling      *float64 `json:"ceiling,omitempty"`
	MaxWindSpeed float64  `json:"maxWindSpeed"`
	MaxCrosswind float64  `json:"maxCrosswind"`
	MaxTailwind  float64  `json:"maxTailwind"`
	IMCAllowed   bool     `json:"imcAllowed"`
}

// ViolationCategory groups violations for risk weighting.
type ViolationCategory string

const (
	ViolationWind       ViolationCategory = "WIND"
	ViolationVisibility ViolationCategory = "VISIBILITY"
	ViolationCeiling    ViolationCategory = "CEILING"
	ViolationSevere     ViolationCategory = "SEVERE"
	ViolationIMC        ViolationCategory = "IMC"
)

// WindComponents is the runway-relative decomposition of the surface wind.
type WindComponents struct {
	Crosswind float64 `json:"crosswind"`
	Headwind  float64 `json:"headwind"`
	Tailwind  float64 `json:"tailwind"`
	// Estimated is set when the runway heading was unknown and the worst case
	// was assumed.
	Estimated bool `json:"estimated"`
}

// EvaluationResult is the outcome of comparing a snapshot with minimums.
type EvaluationResult struct {
	IsSafe        bool                `json:"isSafe"`
	Violations    []string            `json:"violations"`
	Categories    []ViolationCategory `json:"categories"`
	SeverityScore float64             `json:"severityScore"`
	Wind          *WindComponents     `json:"wind,omitempty"`
}

// RiskLevel buckets a cancellation probability.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelModerate RiskLevel = "MODERATE"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelExtreme  RiskLevel = "EXTREME"
)

// CancellationAssessment is the scored outcome of an evaluation.
type CancellationAssessment struct {
	Probability int       `json:"probability"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Reasons     []string  `json:"reasons"`
}

// WeatherCheckLog is an append-only record of one booking evaluation.
type WeatherCheckLog struct {
	ID            string         `db:"id" json:"id"`
	BookingID     string         `db:"booking_id" json:"bookingId"`
	Source        string         `db:"source" json:"source"`
	Snapshot      types.JSONText `db:"snapshot" json:"snapshot"`
	Violations    types.JSONText `db:"violations" json:"violations"`
	SeverityScore float64        `db:"severity_score" json:"severityScore"`
	Probability   int            `db:"probability" json:"probability"`
	RiskLevel     RiskLevel      `db:"risk_level" json:"riskLevel"`
	IsSafe        bool           `db:"is_safe" json:"isSafe"`
	CheckedAt     time.Time      `db:"checked_at" json:"checkedAt"`
}
