package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/gateway"
	"github.com/clinicore/scheduling-api/internal/models"
)

type stubReminderStore struct {
	inserted   []models.ReminderJob
	insertErr  error
	cancelled  []string
	gatewayIDs []string
	cancelErr  error
	listed     []models.ReminderJob
}

func (s *stubReminderStore) InsertBatch(ctx context.Context, jobs []models.ReminderJob) error {
	s.inserted = append(s.inserted, jobs...)
	return s.insertErr
}

func (s *stubReminderStore) CancelPending(ctx context.Context, appointmentID string) ([]string, error) {
	s.cancelled = append(s.cancelled, appointmentID)
	return s.gatewayIDs, s.cancelErr
}

func (s *stubReminderStore) ListByAppointment(ctx context.Context, appointmentID string) ([]models.ReminderJob, error) {
	return s.listed, nil
}

type stubNotifier struct {
	scheduled   []gateway.ReminderDelivery
	scheduleErr error
	retracted   []string
	retractErr  error
	jobID       string
}

func (s *stubNotifier) ScheduleSend(ctx context.Context, delivery gateway.ReminderDelivery) (string, error) {
	s.scheduled = append(s.scheduled, delivery)
	if s.scheduleErr != nil {
		return "", s.scheduleErr
	}
	if s.jobID != "" {
		return s.jobID, nil
	}
	return delivery.IdempotencyKey, nil
}

func (s *stubNotifier) Retract(ctx context.Context, gatewayJobID string) error {
	s.retracted = append(s.retracted, gatewayJobID)
	return s.retractErr
}

func TestOffsetLabel(t *testing.T) {
	assert.Equal(t, "24h", offsetLabel(24*time.Hour))
	assert.Equal(t, "2h", offsetLabel(2*time.Hour))
	assert.Equal(t, "30m", offsetLabel(30*time.Minute))
	assert.Equal(t, "90m", offsetLabel(90*time.Minute))
}

func TestJobsForSkipsPastOffsets(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := NewReminderService(&stubReminderStore{}, &stubNotifier{}, nil, nil)
	svc.now = func() time.Time { return now }

	// Booked 3 hours out: the 24h lead time is already in the past.
	appt := &models.Appointment{
		ID:              "appt-1",
		ScheduledAt:     now.Add(3 * time.Hour),
		ReminderChannel: "sms",
	}
	jobs := svc.JobsFor(appt)
	require.Len(t, jobs, 2)
	assert.Equal(t, "2h", jobs[0].OffsetLabel)
	assert.Equal(t, "30m", jobs[1].OffsetLabel)
	assert.Equal(t, now.Add(time.Hour), jobs[0].FireAt)
	assert.Equal(t, "sms", jobs[0].Channel)
}

func TestJobsForAllPast(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := NewReminderService(&stubReminderStore{}, &stubNotifier{}, nil, nil)
	svc.now = func() time.Time { return now }

	appt := &models.Appointment{ID: "appt-1", ScheduledAt: now.Add(10 * time.Minute)}
	assert.Empty(t, svc.JobsFor(appt))
}

func TestScheduleStoresJobs(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &stubReminderStore{}
	svc := NewReminderService(store, &stubNotifier{}, nil, nil)
	svc.now = func() time.Time { return now }

	appt := &models.Appointment{ID: "appt-1", ScheduledAt: now.Add(48 * time.Hour), ReminderChannel: "email"}
	require.NoError(t, svc.Schedule(context.Background(), appt))
	assert.Len(t, store.inserted, 3)
}

func TestCancelRetractsDispatchedJobs(t *testing.T) {
	store := &stubReminderStore{gatewayIDs: []string{"gw-1", "gw-2"}}
	notifier := &stubNotifier{}
	svc := NewReminderService(store, notifier, nil, nil)

	require.NoError(t, svc.Cancel(context.Background(), "appt-1"))
	assert.Equal(t, []string{"appt-1"}, store.cancelled)
	assert.Equal(t, []string{"gw-1", "gw-2"}, notifier.retracted)
}

func TestCancelSwallowsRetractFailure(t *testing.T) {
	store := &stubReminderStore{gatewayIDs: []string{"gw-1"}}
	notifier := &stubNotifier{retractErr: errors.New("gateway down")}
	svc := NewReminderService(store, notifier, nil, nil)

	assert.NoError(t, svc.Cancel(context.Background(), "appt-1"))
}

func TestRescheduleReplacesJobs(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &stubReminderStore{}
	svc := NewReminderService(store, &stubNotifier{}, []time.Duration{time.Hour}, nil)
	svc.now = func() time.Time { return now }

	appt := &models.Appointment{ID: "appt-1", ScheduledAt: now.Add(4 * time.Hour)}
	require.NoError(t, svc.Reschedule(context.Background(), appt))
	assert.Equal(t, []string{"appt-1"}, store.cancelled)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, now.Add(3*time.Hour), store.inserted[0].FireAt)
}
