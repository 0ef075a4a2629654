package dto

import "time"

// CreateAppointmentRequest defines the payload for booking an appointment.
type CreateAppointmentRequest struct {
	PatientID       string    `json:"patientId" validate:"required"`
	ProviderID      string    `json:"providerId" validate:"required"`
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=1"`
	IsUrgent        bool      `json:"isUrgent"`
	ReminderChannel string    `json:"reminderChannel" validate:"omitempty,oneof=email sms push"`
}

// UpdateAppointmentRequest patches an existing appointment. Nil fields are left
// untouched; a changed time or duration triggers a conflict re-check.
type UpdateAppointmentRequest struct {
	ScheduledAt     *time.Time `json:"scheduledAt"`
	DurationMinutes *int       `json:"durationMinutes" validate:"omitempty,min=1"`
	IsUrgent        *bool      `json:"isUrgent"`
	ReminderChannel *string    `json:"reminderChannel" validate:"omitempty,oneof=email sms push"`
}

// CancelAppointmentRequest carries the mandatory cancellation reason.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}
