package models

import "time"

// ReminderStatus tracks a reminder job through dispatch.
type ReminderStatus string

const (
	ReminderPending     ReminderStatus = "pending"
	ReminderDispatching ReminderStatus = "dispatching"
	ReminderDispatched  ReminderStatus = "dispatched"
	ReminderCancelled   ReminderStatus = "cancelled"
	ReminderFailed      ReminderStatus = "failed"
)

// ReminderJob is a pending notification for an appointment at a configured lead
// time. Pending jobs are cancelled whenever the owning appointment leaves the
// active set before fire_at.
type ReminderJob struct {
	ID            string         `db:"id" json:"id"`
	AppointmentID string         `db:"appointment_id" json:"appointment_id"`
	OffsetLabel   string         `db:"offset_label" json:"offset_label"`
	Channel       string         `db:"channel" json:"channel"`
	FireAt        time.Time      `db:"fire_at" json:"fire_at"`
	Status        ReminderStatus `db:"status" json:"status"`
	GatewayJobID  *string        `db:"gateway_job_id" json:"gateway_job_id,omitempty"`
	Attempts      int            `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time      `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     *string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// DueReminder is a claimed reminder joined with the booking details the
// notification needs.
type DueReminder struct {
	ReminderJob
	PatientID   string            `db:"patient_id" json:"patient_id"`
	ProviderID  string            `db:"provider_id" json:"provider_id"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduled_at"`
	ApptStatus  AppointmentStatus `db:"appt_status" json:"appt_status"`
}
