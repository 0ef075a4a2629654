package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/gateway"
	"github.com/clinicore/scheduling-api/internal/models"
	"github.com/clinicore/scheduling-api/pkg/jobs"
)

type calendarGateway interface {
	CreateEvent(ctx context.Context, event gateway.CalendarEvent) error
	UpdateEvent(ctx context.Context, event gateway.CalendarEvent) error
	DeleteEvent(ctx context.Context, appointmentID string) error
}

// EventService fans booking lifecycle events out to the calendar collaborator
// on a background queue. Publication happens after the core transaction
// commits and never affects the booking outcome.
type EventService struct {
	calendar calendarGateway
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewEventService constructs the fan-out service and its worker queue.
func NewEventService(calendar calendarGateway, cfg jobs.QueueConfig, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventService{calendar: calendar, logger: logger}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("appointment-events", s.handle, cfg)
	return s
}

// Start launches the queue workers.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Publish enqueues an event for delivery. Failures are logged and swallowed.
func (s *EventService) Publish(event models.AppointmentEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", event.Type, event.Appointment.ID),
		Type:    string(event.Type),
		Payload: event,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue appointment event",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.Appointment.ID),
			zap.Error(err))
	}
}

func (s *EventService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.AppointmentEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.deliver(ctx, event)
}

func (s *EventService) deliver(ctx context.Context, event models.AppointmentEvent) error {
	appt := &event.Appointment
	calEvent := gateway.CalendarEvent{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		Start:         appt.ScheduledAt,
		End:           appt.EndTime(),
		Status:        string(appt.Status),
	}
	switch event.Type {
	case models.EventAppointmentCreated:
		return s.calendar.CreateEvent(ctx, calEvent)
	case models.EventAppointmentCancelled:
		return s.calendar.DeleteEvent(ctx, appt.ID)
	case models.EventAppointmentRescheduled, models.EventAppointmentCheckedIn,
		models.EventAppointmentCompleted, models.EventAppointmentNoShow:
		return s.calendar.UpdateEvent(ctx, calEvent)
	default:
		s.logger.Warn("unknown appointment event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}
