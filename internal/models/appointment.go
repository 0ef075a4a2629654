package models

import "time"

// AppointmentStatus enumerates the appointment lifecycle states.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusCheckedIn  AppointmentStatus = "CHECKED_IN"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusNoShow     AppointmentStatus = "NO_SHOW"
)

// ActiveStatuses are the states that still occupy a provider's calendar.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress}

// IsActive reports whether the status still blocks the provider's calendar.
func (s AppointmentStatus) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether the value is a known status.
func (s AppointmentStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Appointment is a booked visit on a provider's calendar. Records are never
// deleted; terminal statuses mark the end of the lifecycle.
type Appointment struct {
	ID                 string            `db:"id" json:"id"`
	PatientID          string            `db:"patient_id" json:"patient_id"`
	ProviderID         string            `db:"provider_id" json:"provider_id"`
	ScheduledAt        time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes    int               `db:"duration_minutes" json:"duration_minutes"`
	Status             AppointmentStatus `db:"status" json:"status"`
	IsUrgent           bool              `db:"is_urgent" json:"is_urgent"`
	ReminderChannel    string            `db:"reminder_channel" json:"reminder_channel"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CheckedInAt        *time.Time        `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// EndTime returns the exclusive end of the booked interval.
func (a *Appointment) EndTime() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// StatusStamp carries the timestamp fields persisted together with a status
// change.
type StatusStamp struct {
	CheckedInAt        *time.Time
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	CancellationReason *string
}

// AppointmentFilter describes query params for listing appointments.
type AppointmentFilter struct {
	ProviderID string
	PatientID  string
	Status     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// AppointmentConflict names the existing booking that collides with a candidate
// interval, so callers can offer alternative slots.
type AppointmentConflict struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
}

// AppointmentConflictError is returned when a booking collides with an existing one.
type AppointmentConflictError struct {
	Message  string              `json:"message"`
	Conflict AppointmentConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *AppointmentConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
