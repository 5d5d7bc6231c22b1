package models

import "time"

// RescheduleStatus captures workflow states for reschedule requests.
type RescheduleStatus string

const (
	// RescheduleStatusPendingStudent is reserved; no transition reaches it.
	RescheduleStatusPendingStudent    RescheduleStatus = "PENDING_STUDENT"
	RescheduleStatusPendingInstructor RescheduleStatus = "PENDING_INSTRUCTOR"
	RescheduleStatusApproved          RescheduleStatus = "APPROVED"
	RescheduleStatusRejected          RescheduleStatus = "REJECTED"
)

// Open reports whether the request still awaits a party.
func (s RescheduleStatus) Open() bool {
	return s == RescheduleStatusPendingStudent || s == RescheduleStatusPendingInstructor
}

// RescheduleOption is one candidate slot offered to the student.
type RescheduleOption struct {
	SuggestedDate     time.Time `json:"suggestedDate" validate:"required"`
	SuggestedDuration int       `json:"suggestedDuration" validate:"required,gt=0,lte=720"`
	WeatherSummary    string    `json:"weatherSummary" validate:"required,max=500"`
	Reasoning         string    `json:"reasoning" validate:"required,max=2000"`
	ConfidenceScore   int       `json:"confidenceScore" validate:"gte=0,lte=100"`
}

// RescheduleRequest is a student-accepted option awaiting instructor review.
type RescheduleRequest struct {
	ID                    string           `json:"id"`
	OriginalBookingID     string           `json:"originalBookingId"`
	ProposedDate          time.Time        `json:"proposedDate"`
	ProposedDuration      int              `json:"proposedDuration"`
	AIReasoning           string           `json:"aiReasoning"`
	WeatherForecast       *WeatherSnapshot `json:"weatherForecast,omitempty"`
	Status                RescheduleStatus `json:"status"`
	StudentConfirmedAt    *time.Time       `json:"studentConfirmedAt,omitempty"`
	InstructorConfirmedAt *time.Time       `json:"instructorConfirmedAt,omitempty"`
	RejectionReason       *string          `json:"rejectionReason,omitempty"`
	NewBookingID          *string          `json:"newBookingId,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}
