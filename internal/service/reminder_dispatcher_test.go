package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
)

type stubClaimStore struct {
	due        []models.DueReminder
	claimErr   error
	lostClaims map[string]bool
	dispatched map[string]string
	failed     map[string]int

	horizon     time.Time
	staleBefore time.Time
}

func newStubClaimStore(due []models.DueReminder) *stubClaimStore {
	return &stubClaimStore{
		due:        due,
		lostClaims: map[string]bool{},
		dispatched: map[string]string{},
		failed:     map[string]int{},
	}
}

func (s *stubClaimStore) ClaimDue(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]models.DueReminder, error) {
	s.horizon = horizon
	s.staleBefore = staleBefore
	return s.due, s.claimErr
}

func (s *stubClaimStore) MarkDispatched(ctx context.Context, id, gatewayJobID string) (bool, error) {
	if s.lostClaims[id] {
		return false, nil
	}
	s.dispatched[id] = gatewayJobID
	return true, nil
}

func (s *stubClaimStore) MarkFailed(ctx context.Context, id string, attempts, maxAttempts int, backoff time.Duration, lastError string) error {
	s.failed[id] = attempts
	return nil
}

func dueReminder(id string) models.DueReminder {
	return models.DueReminder{
		ReminderJob: models.ReminderJob{
			ID:            id,
			AppointmentID: "appt-1",
			OffsetLabel:   "2h",
			Channel:       "sms",
			FireAt:        time.Now().Add(30 * time.Second),
		},
		PatientID:   "pat-1",
		ProviderID:  "prov-1",
		ScheduledAt: time.Now().Add(2 * time.Hour),
		ApptStatus:  models.StatusConfirmed,
	}
}

func TestDispatchDueHandsOffBatch(t *testing.T) {
	store := newStubClaimStore([]models.DueReminder{dueReminder("rem-1"), dueReminder("rem-2")})

	notifier := &stubNotifier{jobID: "gw-9"}
	d := NewReminderDispatcher(store, notifier, nil, DispatcherConfig{}, nil)

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "gw-9", store.dispatched["rem-1"])
	assert.Equal(t, "gw-9", store.dispatched["rem-2"])
	require.Len(t, notifier.scheduled, 2)
	assert.Equal(t, "rem-1", notifier.scheduled[0].IdempotencyKey)
	assert.Equal(t, "appointment_reminder_2h", notifier.scheduled[0].Template)
}

func TestDispatchDueMarksFailuresForRetry(t *testing.T) {
	store := newStubClaimStore([]models.DueReminder{dueReminder("rem-1")})

	notifier := &stubNotifier{scheduleErr: errors.New("gateway down")}
	d := NewReminderDispatcher(store, notifier, nil, DispatcherConfig{MaxAttempts: 3}, nil)

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.dispatched)
	assert.Equal(t, 1, store.failed["rem-1"])
}

func TestDispatchDueRetractsWhenClaimLost(t *testing.T) {
	store := newStubClaimStore([]models.DueReminder{dueReminder("rem-1")})
	store.lostClaims["rem-1"] = true

	notifier := &stubNotifier{jobID: "gw-9"}
	d := NewReminderDispatcher(store, notifier, nil, DispatcherConfig{}, nil)

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.dispatched)
	assert.Equal(t, []string{"gw-9"}, notifier.retracted)
}

func TestDispatchDueClaimBounds(t *testing.T) {
	store := newStubClaimStore(nil)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	d := NewReminderDispatcher(store, &stubNotifier{}, nil, DispatcherConfig{Lookahead: time.Minute, StaleClaim: 5 * time.Minute}, nil)
	d.now = func() time.Time { return now }

	n, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, now.Add(time.Minute), store.horizon)
	assert.Equal(t, now.Add(-5*time.Minute), store.staleBefore)
}
