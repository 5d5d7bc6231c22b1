package models

// NotificationKind enumerates outbound notification templates.
type NotificationKind string

const (
	NotificationBookingConfirmation    NotificationKind = "BookingConfirmation"
	NotificationWeatherConflict        NotificationKind = "WeatherConflict"
	NotificationRescheduleRequest      NotificationKind = "RescheduleRequest"
	NotificationRescheduleConfirmation NotificationKind = "RescheduleConfirmation"
)

// Notification is a single message addressed to one user.
type Notification struct {
	Kind      NotificationKind       `json:"kind"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload"`
}

// NotificationResult is the notifier's delivery receipt.
type NotificationResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}
