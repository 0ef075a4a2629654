package models

import "time"

// AppointmentEventType names the booking lifecycle events fanned out to
// collaborators after the core transaction commits.
type AppointmentEventType string

const (
	EventAppointmentCreated     AppointmentEventType = "appointment.created"
	EventAppointmentRescheduled AppointmentEventType = "appointment.rescheduled"
	EventAppointmentCancelled   AppointmentEventType = "appointment.cancelled"
	EventAppointmentCheckedIn   AppointmentEventType = "appointment.checked_in"
	EventAppointmentCompleted   AppointmentEventType = "appointment.completed"
	EventAppointmentNoShow      AppointmentEventType = "appointment.no_show"
)

// AppointmentEvent carries an appointment snapshot to calendar and notification
// collaborators. Delivery is best-effort and never affects the booking outcome.
type AppointmentEvent struct {
	Type        AppointmentEventType `json:"type"`
	Appointment Appointment          `json:"appointment"`
	OccurredAt  time.Time            `json:"occurred_at"`
}
