package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
)

func TestReminderRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	fireAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	jobs := []models.ReminderJob{
		{AppointmentID: "appt-1", OffsetLabel: "24h", Channel: "sms", FireAt: fireAt},
		{AppointmentID: "appt-1", OffsetLabel: "2h", Channel: "sms", FireAt: fireAt.Add(22 * time.Hour)},
	}

	mock.ExpectExec(`INSERT INTO appointment_reminders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO appointment_reminders`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.InsertBatch(context.Background(), jobs))
	assert.NotEmpty(t, jobs[0].ID)
	assert.Equal(t, models.ReminderPending, jobs[0].Status)
	assert.Equal(t, jobs[0].FireAt, jobs[0].NextAttemptAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryCancelPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	gwID := "gw-1"
	rows := sqlmock.NewRows([]string{"gateway_job_id"}).
		AddRow(&gwID).
		AddRow(nil)
	mock.ExpectQuery(`(?s)UPDATE appointment_reminders.+RETURNING gateway_job_id`).
		WillReturnRows(rows)

	gatewayIDs, err := repo.CancelPending(context.Background(), "appt-1")
	require.NoError(t, err)
	// Only jobs already handed to the gateway come back.
	assert.Equal(t, []string{"gw-1"}, gatewayIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryClaimDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "appointment_id", "offset_label", "channel", "fire_at", "status",
		"gateway_job_id", "attempts", "next_attempt_at", "last_error", "created_at", "updated_at",
		"patient_id", "provider_id", "scheduled_at", "appt_status",
	}).AddRow(
		"rem-1", "appt-1", "2h", "sms", now, models.ReminderDispatching,
		nil, 0, now, nil, now, now,
		"pat-1", "prov-1", now.Add(2*time.Hour), models.StatusConfirmed,
	)

	// The claim is a single statement: no transaction open around it, so no
	// row lock survives into the gateway handoff.
	mock.ExpectQuery(`(?s)UPDATE appointment_reminders r.+SET status = 'dispatching'.+FOR UPDATE OF c SKIP LOCKED.+RETURNING r\.id`).
		WillReturnRows(rows)

	due, err := repo.ClaimDue(context.Background(), now.Add(time.Minute), now.Add(-5*time.Minute), 100)
	require.NoError(t, err)

	require.Len(t, due, 1)
	assert.Equal(t, "rem-1", due[0].ID)
	assert.Equal(t, models.ReminderDispatching, due[0].Status)
	assert.Equal(t, "pat-1", due[0].PatientID)
	assert.Equal(t, models.StatusConfirmed, due[0].ApptStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryMarkDispatched(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	mock.ExpectExec(`(?s)UPDATE appointment_reminders.+SET status = 'dispatched'.+status = 'dispatching'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stillClaimed, err := repo.MarkDispatched(context.Background(), "rem-1", "gw-1")
	require.NoError(t, err)
	assert.True(t, stillClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryMarkDispatchedLostClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	// A racing cancellation moved the row out of dispatching.
	mock.ExpectExec(`(?s)UPDATE appointment_reminders.+SET status = 'dispatched'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	stillClaimed, err := repo.MarkDispatched(context.Background(), "rem-1", "gw-1")
	require.NoError(t, err)
	assert.False(t, stillClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryMarkFailed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	mock.ExpectExec(`(?s)UPDATE appointment_reminders.+SET attempts = \$2, status = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "rem-1", 2, 5, time.Minute, "gateway down"))
	require.NoError(t, mock.ExpectationsWereMet())
}
