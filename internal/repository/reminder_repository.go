package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clinicore/scheduling-api/internal/models"
)

// ReminderRepository persists reminder jobs and hands batches to the
// dispatcher. Due-job claiming is a single UPDATE over a FOR UPDATE SKIP
// LOCKED subquery, so multiple dispatcher instances never double-claim a job
// and no row lock outlives the claiming statement.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository creates a new reminder repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// InsertBatch stores freshly computed reminder jobs.
func (r *ReminderRepository) InsertBatch(ctx context.Context, jobs []models.ReminderJob) error {
	now := time.Now().UTC()
	const query = `INSERT INTO appointment_reminders (id, appointment_id, offset_label, channel, fire_at, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES (:id, :appointment_id, :offset_label, :channel, :fire_at, :status, :attempts, :next_attempt_at, :created_at, :updated_at)
		ON CONFLICT (appointment_id, offset_label) WHERE status = 'pending' DO NOTHING`
	for i := range jobs {
		job := jobs[i]
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if job.Status == "" {
			job.Status = models.ReminderPending
		}
		if job.NextAttemptAt.IsZero() {
			job.NextAttemptAt = job.FireAt
		}
		job.CreatedAt = now
		job.UpdatedAt = now
		if _, err := r.db.NamedExecContext(ctx, query, &job); err != nil {
			return fmt.Errorf("insert reminder job: %w", err)
		}
		jobs[i] = job
	}
	return nil
}

// CancelPending retracts every job for the appointment that has not fired yet
// and returns the gateway ids of jobs already handed to the notification
// collaborator, so the caller can retract them there too.
func (r *ReminderRepository) CancelPending(ctx context.Context, appointmentID string) ([]string, error) {
	const query = `UPDATE appointment_reminders
		SET status = 'cancelled', updated_at = $2
		WHERE appointment_id = $1
		  AND (status IN ('pending', 'dispatching') OR (status = 'dispatched' AND fire_at > $2))
		RETURNING gateway_job_id`
	rows, err := r.db.QueryContext(ctx, query, appointmentID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cancel pending reminders: %w", err)
	}
	defer rows.Close()

	var gatewayIDs []string
	for rows.Next() {
		var gatewayID *string
		if err := rows.Scan(&gatewayID); err != nil {
			return nil, fmt.Errorf("scan cancelled reminder: %w", err)
		}
		if gatewayID != nil && *gatewayID != "" {
			gatewayIDs = append(gatewayIDs, *gatewayID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cancel pending reminders: %w", err)
	}
	return gatewayIDs, nil
}

// ListByAppointment returns the reminder jobs for one appointment.
func (r *ReminderRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]models.ReminderJob, error) {
	const query = `SELECT id, appointment_id, offset_label, channel, fire_at, status, gateway_job_id, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM appointment_reminders WHERE appointment_id = $1 ORDER BY fire_at ASC`
	var jobs []models.ReminderJob
	if err := r.db.SelectContext(ctx, &jobs, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return jobs, nil
}

// ClaimDue marks due pending jobs as dispatching and returns them joined with
// their booking details. The claim is one auto-committed statement; row locks
// from the SKIP LOCKED subquery are released before the caller talks to any
// collaborator. Jobs stuck in dispatching since before staleBefore are
// reclaimed, the gateway idempotency key makes a repeated handoff harmless.
func (r *ReminderRepository) ClaimDue(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]models.DueReminder, error) {
	statuses := make([]string, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		statuses[i] = string(s)
	}

	now := time.Now().UTC()
	const query = `UPDATE appointment_reminders r
		SET status = 'dispatching', updated_at = $5
		FROM (
			SELECT c.id
			FROM appointment_reminders c
			JOIN appointments ca ON ca.id = c.appointment_id
			WHERE ((c.status = 'pending' AND c.next_attempt_at <= $5) OR (c.status = 'dispatching' AND c.updated_at < $2))
			  AND c.fire_at <= $1
			  AND ca.status = ANY($3)
			ORDER BY c.fire_at ASC
			LIMIT $4
			FOR UPDATE OF c SKIP LOCKED
		) claimed, appointments a
		WHERE r.id = claimed.id AND a.id = r.appointment_id
		RETURNING r.id, r.appointment_id, r.offset_label, r.channel, r.fire_at, r.status, r.gateway_job_id, r.attempts, r.next_attempt_at, r.last_error, r.created_at, r.updated_at,
			a.patient_id, a.provider_id, a.scheduled_at, a.status AS appt_status`
	var due []models.DueReminder
	if err := r.db.SelectContext(ctx, &due, query, horizon, staleBefore, pq.Array(statuses), limit, now); err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	return due, nil
}

// MarkDispatched records the gateway handoff for a claimed job. It reports
// false when the claim was lost in the meantime, typically to a cancellation,
// so the caller can retract the delivery it just scheduled.
func (r *ReminderRepository) MarkDispatched(ctx context.Context, id, gatewayJobID string) (bool, error) {
	const query = `UPDATE appointment_reminders
		SET status = 'dispatched', gateway_job_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'dispatching'`
	res, err := r.db.ExecContext(ctx, query, id, gatewayJobID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark reminder dispatched: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reminder dispatched: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed bumps the attempt counter and either schedules a retry or gives
// the job up once maxAttempts is reached.
func (r *ReminderRepository) MarkFailed(ctx context.Context, id string, attempts, maxAttempts int, backoff time.Duration, lastError string) error {
	status := models.ReminderPending
	if attempts >= maxAttempts {
		status = models.ReminderFailed
	}
	const query = `UPDATE appointment_reminders
		SET attempts = $2, status = $3, next_attempt_at = $4, last_error = $5, updated_at = $6
		WHERE id = $1 AND status = 'dispatching'`
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, id, attempts, status, now.Add(backoff), lastError, now); err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}
	return nil
}
