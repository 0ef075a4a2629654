package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

func fixedLifecycle(now time.Time) *Lifecycle {
	l := NewLifecycle(time.UTC)
	l.now = func() time.Time { return now }
	return l
}

func TestLifecycleHappyPath(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l := fixedLifecycle(now)
	appt := &models.Appointment{Status: models.StatusScheduled, ScheduledAt: now.Add(2 * time.Hour)}

	for _, next := range []models.AppointmentStatus{
		models.StatusConfirmed,
		models.StatusCheckedIn,
		models.StatusInProgress,
		models.StatusCompleted,
	} {
		require.NoError(t, l.Validate(appt, next, ""), "transition to %s", next)
		appt.Status = next
	}
}

func TestLifecycleRejectsTerminalTransitions(t *testing.T) {
	l := fixedLifecycle(time.Now())
	for _, terminal := range []models.AppointmentStatus{models.StatusCompleted, models.StatusCancelled, models.StatusNoShow} {
		appt := &models.Appointment{Status: terminal, ScheduledAt: time.Now()}
		for _, to := range []models.AppointmentStatus{models.StatusConfirmed, models.StatusCancelled} {
			err := l.Validate(appt, to, "changed plans")
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
			assert.Equal(t, 400, appErrors.FromError(err).Status)
		}
	}
}

func TestLifecycleRejectsSkippedStates(t *testing.T) {
	l := fixedLifecycle(time.Now())
	appt := &models.Appointment{Status: models.StatusScheduled, ScheduledAt: time.Now()}
	err := l.Validate(appt, models.StatusCompleted, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLifecycleCancelRequiresReason(t *testing.T) {
	l := fixedLifecycle(time.Now())
	appt := &models.Appointment{Status: models.StatusConfirmed, ScheduledAt: time.Now().Add(time.Hour)}

	err := l.Validate(appt, models.StatusCancelled, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	assert.NoError(t, l.Validate(appt, models.StatusCancelled, "patient request"))
}

func TestLifecycleCheckInSameDayOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := fixedLifecycle(now)

	today := &models.Appointment{Status: models.StatusConfirmed, ScheduledAt: now.Add(3 * time.Hour)}
	assert.NoError(t, l.Validate(today, models.StatusCheckedIn, ""))

	tomorrow := &models.Appointment{Status: models.StatusConfirmed, ScheduledAt: now.AddDate(0, 0, 1)}
	err := l.Validate(tomorrow, models.StatusCheckedIn, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLifecycleCheckInUsesServiceTimezone(t *testing.T) {
	brisbane := time.FixedZone("UTC+10", 10*60*60)

	// 09:00 and 21:00 local fall on the same local day but different UTC days.
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, brisbane)
	appt := &models.Appointment{
		Status:      models.StatusConfirmed,
		ScheduledAt: time.Date(2026, 3, 10, 21, 0, 0, 0, brisbane),
	}

	l := NewLifecycle(brisbane)
	l.now = func() time.Time { return now }
	assert.NoError(t, l.Validate(appt, models.StatusCheckedIn, ""))

	utc := NewLifecycle(time.UTC)
	utc.now = func() time.Time { return now }
	require.Error(t, utc.Validate(appt, models.StatusCheckedIn, ""))
}

func TestLifecycleNoShowOnlyAfterIntervalEnds(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := fixedLifecycle(now)

	future := &models.Appointment{Status: models.StatusScheduled, ScheduledAt: now.Add(time.Hour), DurationMinutes: 30}
	err := l.Validate(future, models.StatusNoShow, "")
	require.Error(t, err)

	// Started but not yet over.
	running := &models.Appointment{Status: models.StatusScheduled, ScheduledAt: now.Add(-10 * time.Minute), DurationMinutes: 30}
	err = l.Validate(running, models.StatusNoShow, "")
	require.Error(t, err)

	past := &models.Appointment{Status: models.StatusScheduled, ScheduledAt: now.Add(-time.Hour), DurationMinutes: 30}
	assert.NoError(t, l.Validate(past, models.StatusNoShow, ""))
}

func TestLifecycleStamp(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := fixedLifecycle(now)

	stamp := l.Stamp(models.StatusCheckedIn, "")
	require.NotNil(t, stamp.CheckedInAt)
	assert.Equal(t, now, *stamp.CheckedInAt)

	stamp = l.Stamp(models.StatusCancelled, "weather")
	require.NotNil(t, stamp.CancelledAt)
	require.NotNil(t, stamp.CancellationReason)
	assert.Equal(t, "weather", *stamp.CancellationReason)

	stamp = l.Stamp(models.StatusNoShow, "")
	require.NotNil(t, stamp.CompletedAt)

	stamp = l.Stamp(models.StatusConfirmed, "")
	assert.Nil(t, stamp.CheckedInAt)
	assert.Nil(t, stamp.CancelledAt)
	assert.Nil(t, stamp.CompletedAt)
}
