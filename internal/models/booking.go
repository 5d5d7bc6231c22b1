package models

import "time"

// BookingStatus captures the lifecycle of a training flight.
type BookingStatus string

const (
	BookingStatusScheduled   BookingStatus = "SCHEDULED"
	BookingStatusAtRisk      BookingStatus = "AT_RISK"
	BookingStatusCancelled   BookingStatus = "CANCELLED"
	BookingStatusRescheduled BookingStatus = "RESCHEDULED"
	BookingStatusCompleted   BookingStatus = "COMPLETED"
)

// Active reports whether the booking still occupies its instructor's time.
func (s BookingStatus) Active() bool {
	return s == BookingStatusScheduled || s == BookingStatusAtRisk
}

// TrainingLevel is the pilot certification stage the minimums are chosen for.
type TrainingLevel string

const (
	TrainingLevelStudent    TrainingLevel = "STUDENT"
	TrainingLevelPrivate    TrainingLevel = "PRIVATE"
	TrainingLevelInstrument TrainingLevel = "INSTRUMENT"
	TrainingLevelCommercial TrainingLevel = "COMMERCIAL"
)

// Location is an airport or field used as departure or destination.
type Location struct {
	Name          string   `json:"name"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	ICAOCode      *string  `json:"icaoCode,omitempty"`
	RunwayHeading *float64 `json:"runwayHeading,omitempty"`
}

// Booking is a scheduled training flight.
type Booking struct {
	ID                      string        `json:"id"`
	StudentID               string        `json:"studentId"`
	InstructorID            string        `json:"instructorId"`
	TrainingLevel           TrainingLevel `json:"trainingLevel"`
	ScheduledDate           time.Time     `json:"scheduledDate"`
	DurationMinutes         int           `json:"durationMinutes"`
	Departure               Location      `json:"departure"`
	Destination             *Location     `json:"destination,omitempty"`
	Status                  BookingStatus `json:"status"`
	CancellationProbability int           `json:"cancellationProbability"`
	RiskLevel               *RiskLevel    `json:"riskLevel,omitempty"`
	Version                 int           `json:"version"`
	CreatedAt               time.Time     `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
}

// Duration returns the booked block time.
func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// EndsAt returns the end of the booked block.
func (b *Booking) EndsAt() time.Time {
	return b.ScheduledDate.Add(b.Duration())
}

// BookingFilter constrains booking listing queries.
type BookingFilter struct {
	Statuses     []BookingStatus
	InstructorID string
	ExcludeID    string
	From         time.Time
	To           time.Time
	Limit        int
}
