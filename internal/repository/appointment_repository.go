package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clinicore/scheduling-api/internal/models"
)

// ErrBookingRaced is returned when the database aborts a booking transaction
// because a concurrent writer touched the same provider interval. Callers
// treat it as a conflict.
var ErrBookingRaced = errors.New("booking raced with a concurrent write")

// AppointmentRepository provides persistence for appointments. The overlap
// check and the write always happen inside one serializable transaction, so a
// slot reported free can never be double-booked by a concurrent request.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, patient_id, provider_id, scheduled_at, duration_minutes, status, is_urgent, reminder_channel, cancellation_reason, checked_in_at, cancelled_at, completed_at, created_at, updated_at`

func activeStatusArray() interface{} {
	statuses := make([]string, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		statuses[i] = string(s)
	}
	return pq.Array(statuses)
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ProviderID != "" {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)+1))
		args = append(args, filter.ProviderID)
	}
	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", len(args)+1))
		args = append(args, filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"scheduled_at": true,
		"created_at":   true,
		"status":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "scheduled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", appointmentColumns, base, sortBy, order, size, offset)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appts, total, nil
}

// ListActiveInRange returns active-set appointments for a provider whose
// booked interval intersects [from, to), ordered chronologically.
func (r *AppointmentRepository) ListActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2)
		  AND scheduled_at < $4
		  AND scheduled_at + make_interval(mins => duration_minutes) > $3
		ORDER BY scheduled_at ASC`, appointmentColumns)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, providerID, activeStatusArray(), from, to); err != nil {
		return nil, fmt.Errorf("list active appointments in range: %w", err)
	}
	return appts, nil
}

// FindOverlapping returns active-set appointments whose interval overlaps
// [start, end) for the provider, excluding excludeID when set. Read-only
// variant used for advisory checks; booking paths re-check inside their own
// transaction.
func (r *AppointmentRepository) FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Appointment, error) {
	return r.findOverlapping(ctx, r.db, providerID, start, end, excludeID, false)
}

func (r *AppointmentRepository) findOverlapping(ctx context.Context, q sqlx.QueryerContext, providerID string, start, end time.Time, excludeID string, lock bool) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2)
		  AND scheduled_at < $4
		  AND scheduled_at + make_interval(mins => duration_minutes) > $3
		  AND ($5 = '' OR id <> $5)
		ORDER BY scheduled_at ASC`, appointmentColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var appts []models.Appointment
	if err := sqlx.SelectContext(ctx, q, &appts, query, providerID, activeStatusArray(), start, end, excludeID); err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	return appts, nil
}

// InsertIfAvailable books the appointment unless the interval overlaps an
// existing active booking. Check and insert share one serializable
// transaction; the returned slice holds the colliding appointments when the
// booking was refused.
func (r *AppointmentRepository) InsertIfAvailable(ctx context.Context, appt *models.Appointment) ([]models.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	overlapping, err := r.findOverlapping(ctx, tx, appt.ProviderID, appt.ScheduledAt, appt.EndTime(), "", true)
	if err != nil {
		return nil, translateTxError(err)
	}
	if len(overlapping) > 0 {
		return overlapping, nil
	}

	const insert = `INSERT INTO appointments (id, patient_id, provider_id, scheduled_at, duration_minutes, status, is_urgent, reminder_channel, created_at, updated_at)
		VALUES (:id, :patient_id, :provider_id, :scheduled_at, :duration_minutes, :status, :is_urgent, :reminder_channel, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, appt); err != nil {
		return nil, translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return nil, nil
}

// RescheduleIfAvailable moves an appointment to a new interval unless it
// overlaps another active booking. The appointment's own interval is excluded,
// so rescheduling onto its current time succeeds.
func (r *AppointmentRepository) RescheduleIfAvailable(ctx context.Context, id string, scheduledAt time.Time, durationMinutes int) ([]models.Appointment, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var providerID string
	if err := tx.GetContext(ctx, &providerID, `SELECT provider_id FROM appointments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}

	end := scheduledAt.Add(time.Duration(durationMinutes) * time.Minute)
	overlapping, err := r.findOverlapping(ctx, tx, providerID, scheduledAt, end, id, true)
	if err != nil {
		return nil, translateTxError(err)
	}
	if len(overlapping) > 0 {
		return overlapping, nil
	}

	const update = `UPDATE appointments SET scheduled_at = $2, duration_minutes = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, scheduledAt, durationMinutes, time.Now().UTC()); err != nil {
		return nil, translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return nil, nil
}

// UpdateStatus persists the new status and its matching timestamp atomically.
// Nil stamp fields leave the stored value untouched.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus, stamp models.StatusStamp) error {
	const query = `UPDATE appointments
		SET status = $2,
		    checked_in_at = COALESCE($3, checked_in_at),
		    cancelled_at = COALESCE($4, cancelled_at),
		    completed_at = COALESCE($5, completed_at),
		    cancellation_reason = COALESCE($6, cancellation_reason),
		    updated_at = $7
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, stamp.CheckedInAt, stamp.CancelledAt, stamp.CompletedAt, stamp.CancellationReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateDetails patches the non-interval fields of an appointment.
func (r *AppointmentRepository) UpdateDetails(ctx context.Context, id string, isUrgent *bool, reminderChannel *string) error {
	const query = `UPDATE appointments
		SET is_urgent = COALESCE($2, is_urgent),
		    reminder_channel = COALESCE($3, reminder_channel),
		    updated_at = $4
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, isUrgent, reminderChannel, time.Now().UTC()); err != nil {
		return fmt.Errorf("update appointment details: %w", err)
	}
	return nil
}

// translateTxError maps serialization failures and exclusion-constraint
// violations onto ErrBookingRaced so callers surface them as conflicts
// instead of internal errors.
func translateTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "23P01", "23505":
			return ErrBookingRaced
		}
	}
	return err
}
