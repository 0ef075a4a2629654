package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/gateway"
	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

type reminderStore interface {
	InsertBatch(ctx context.Context, jobs []models.ReminderJob) error
	CancelPending(ctx context.Context, appointmentID string) ([]string, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]models.ReminderJob, error)
}

type notificationGateway interface {
	ScheduleSend(ctx context.Context, delivery gateway.ReminderDelivery) (string, error)
	Retract(ctx context.Context, gatewayJobID string) error
}

// ReminderService owns reminder jobs for booked appointments. Jobs are
// computed at configured lead times before the visit; lead times already in
// the past are skipped rather than fired immediately.
type ReminderService struct {
	store    reminderStore
	notifier notificationGateway
	offsets  []time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReminderService constructs ReminderService with the configured lead times.
func NewReminderService(store reminderStore, notifier notificationGateway, offsets []time.Duration, logger *zap.Logger) *ReminderService {
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{store: store, notifier: notifier, offsets: offsets, logger: logger, now: time.Now}
}

// offsetLabel renders a lead time the way it appears in configuration.
func offsetLabel(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return d.String()
}

// JobsFor computes the reminder jobs an appointment needs right now. Lead
// times whose fire time has already passed produce no job.
func (s *ReminderService) JobsFor(appt *models.Appointment) []models.ReminderJob {
	now := s.now().UTC()
	jobs := make([]models.ReminderJob, 0, len(s.offsets))
	for _, offset := range s.offsets {
		fireAt := appt.ScheduledAt.Add(-offset)
		if !fireAt.After(now) {
			continue
		}
		jobs = append(jobs, models.ReminderJob{
			AppointmentID: appt.ID,
			OffsetLabel:   offsetLabel(offset),
			Channel:       appt.ReminderChannel,
			FireAt:        fireAt,
			Status:        models.ReminderPending,
		})
	}
	return jobs
}

// Schedule stores the reminder jobs for a freshly booked appointment.
func (s *ReminderService) Schedule(ctx context.Context, appt *models.Appointment) error {
	jobs := s.JobsFor(appt)
	if len(jobs) == 0 {
		return nil
	}
	if err := s.store.InsertBatch(ctx, jobs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule reminders")
	}
	return nil
}

// Reschedule drops the old jobs and computes fresh ones for the new interval.
func (s *ReminderService) Reschedule(ctx context.Context, appt *models.Appointment) error {
	if err := s.Cancel(ctx, appt.ID); err != nil {
		return err
	}
	return s.Schedule(ctx, appt)
}

// Cancel retracts every reminder that has not fired. Jobs already handed to
// the notification collaborator are retracted there as well; a failed retract
// is logged and swallowed because the appointment change must not fail over
// notification plumbing.
func (s *ReminderService) Cancel(ctx context.Context, appointmentID string) error {
	gatewayIDs, err := s.store.CancelPending(ctx, appointmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel reminders")
	}
	for _, gatewayID := range gatewayIDs {
		if err := s.notifier.Retract(ctx, gatewayID); err != nil {
			s.logger.Warn("failed to retract dispatched reminder",
				zap.String("appointment_id", appointmentID),
				zap.String("gateway_job_id", gatewayID),
				zap.Error(err))
		}
	}
	return nil
}

// List returns the reminder jobs for one appointment.
func (s *ReminderService) List(ctx context.Context, appointmentID string) ([]models.ReminderJob, error) {
	jobs, err := s.store.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reminders")
	}
	return jobs, nil
}
