package dto

import "github.com/noah-isme/flightwx-scheduler/internal/models"

// RescheduleOptionsResponse carries the validated candidate slots for a booking.
type RescheduleOptionsResponse struct {
	BookingID string                    `json:"bookingId"`
	Options   []models.RescheduleOption `json:"options"`
}

// AcceptOptionRequest is the student's choice among offered options.
type AcceptOptionRequest struct {
	BookingID string                  `json:"bookingId" validate:"required"`
	Option    models.RescheduleOption `json:"option"`
}

// RespondRescheduleRequest captures the instructor decision.
type RespondRescheduleRequest struct {
	RequestID string `json:"requestId" validate:"required"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// RescheduleDecisionResponse reports the outcome of an instructor response.
type RescheduleDecisionResponse struct {
	Request    *models.RescheduleRequest `json:"request"`
	NewBooking *models.Booking           `json:"newBooking,omitempty"`
}
