package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/dto"
	"github.com/clinicore/scheduling-api/internal/models"
	"github.com/clinicore/scheduling-api/internal/repository"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
	"github.com/clinicore/scheduling-api/pkg/export"
)

type appointmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Appointment, error)
	InsertIfAvailable(ctx context.Context, appt *models.Appointment) ([]models.Appointment, error)
	RescheduleIfAvailable(ctx context.Context, id string, scheduledAt time.Time, durationMinutes int) ([]models.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus, stamp models.StatusStamp) error
	UpdateDetails(ctx context.Context, id string, isUrgent *bool, reminderChannel *string) error
}

type directoryGateway interface {
	Exists(ctx context.Context, id string) (bool, error)
	HasAccess(ctx context.Context, id, actorID string) error
}

type reminderPlanner interface {
	Schedule(ctx context.Context, appt *models.Appointment) error
	Reschedule(ctx context.Context, appt *models.Appointment) error
	Cancel(ctx context.Context, appointmentID string) error
}

type eventPublisher interface {
	Publish(event models.AppointmentEvent)
}

// AppointmentService orchestrates the booking workflows. The availability
// check and the write share one database transaction inside the store, so two
// requests racing for the same interval cannot both win; this service layers
// validation, lifecycle rules and collaborator side effects on top.
type AppointmentService struct {
	appointments appointmentStore
	availability availabilityReader
	lifecycle    *Lifecycle
	reminders    reminderPlanner
	events       eventPublisher
	conflicts    *ConflictService
	patients     directoryGateway
	providers    directoryGateway
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	location     *time.Location
	logger       *zap.Logger
	now          func() time.Time
}

// NewAppointmentService constructs AppointmentService.
func NewAppointmentService(
	appointments appointmentStore,
	availability availabilityReader,
	lifecycle *Lifecycle,
	reminders reminderPlanner,
	events eventPublisher,
	patients directoryGateway,
	providers directoryGateway,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	location *time.Location,
	logger *zap.Logger,
) *AppointmentService {
	if location == nil {
		location = time.UTC
	}
	if lifecycle == nil {
		lifecycle = NewLifecycle(location)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{
		appointments: appointments,
		availability: availability,
		conflicts:    NewConflictService(appointments, logger),
		lifecycle:    lifecycle,
		reminders:    reminders,
		events:       events,
		patients:     patients,
		providers:    providers,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		location:     location,
		logger:       logger,
		now:          time.Now,
	}
}

// Create books a new appointment. On a conflict the colliding interval is
// returned to the caller; the booking is never silently moved.
func (s *AppointmentService) Create(ctx context.Context, req dto.CreateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "appointment must be scheduled in the future")
	}
	if err := s.checkDirectory(ctx, s.patients, req.PatientID, "patient"); err != nil {
		return nil, err
	}
	if err := s.checkDirectory(ctx, s.providers, req.ProviderID, "provider"); err != nil {
		return nil, err
	}
	if claims := models.ClaimsFromContext(ctx); claims != nil && claims.Role == models.RolePatient && claims.UserID != req.PatientID {
		if err := s.patients.HasAccess(ctx, req.PatientID, claims.UserID); err != nil {
			return nil, appErrors.FromError(err)
		}
	}
	if err := s.checkWithinAvailability(ctx, req.ProviderID, req.ScheduledAt, req.DurationMinutes); err != nil {
		return nil, err
	}

	channel := req.ReminderChannel
	if channel == "" {
		channel = "email"
	}
	appt := &models.Appointment{
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          models.StatusScheduled,
		IsUrgent:        req.IsUrgent,
		ReminderChannel: channel,
	}

	conflicts, err := s.appointments.InsertIfAvailable(ctx, appt)
	if err != nil {
		return nil, s.translateBookingError(ctx, err, req.ProviderID, appt.ScheduledAt, appt.EndTime(), "")
	}
	if len(conflicts) > 0 {
		return nil, s.conflictError(conflicts)
	}

	s.metrics.RecordBooking("created")
	s.afterBookingChange(ctx, appt.ProviderID)
	if err := s.reminders.Schedule(ctx, appt); err != nil {
		s.logger.Warn("failed to schedule reminders", zap.String("appointment_id", appt.ID), zap.Error(err))
	}
	s.events.Publish(models.AppointmentEvent{Type: models.EventAppointmentCreated, Appointment: *appt})
	return appt, nil
}

// Update patches an appointment. A changed time or duration re-runs the
// conflict check, excluding the appointment's own interval so rescheduling
// onto its current time succeeds.
func (s *AppointmentService) Update(ctx context.Context, id string, req dto.UpdateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("appointment already %s", appt.Status))
	}

	reschedule := req.ScheduledAt != nil || req.DurationMinutes != nil
	newStart := appt.ScheduledAt
	if req.ScheduledAt != nil {
		newStart = req.ScheduledAt.UTC()
	}
	newDuration := appt.DurationMinutes
	if req.DurationMinutes != nil {
		newDuration = *req.DurationMinutes
	}

	// Validate the whole patch before persisting any of it, so a bad
	// reschedule half does not leave the detail fields applied on their own.
	if reschedule {
		if !newStart.After(s.now()) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "appointment must be scheduled in the future")
		}
		if err := s.checkWithinAvailability(ctx, appt.ProviderID, newStart, newDuration); err != nil {
			return nil, err
		}
	}

	if req.IsUrgent != nil || req.ReminderChannel != nil {
		if err := s.appointments.UpdateDetails(ctx, id, req.IsUrgent, req.ReminderChannel); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment details")
		}
	}

	if !reschedule {
		return s.load(ctx, id)
	}

	conflicts, err := s.appointments.RescheduleIfAvailable(ctx, id, newStart, newDuration)
	if err != nil {
		end := newStart.Add(time.Duration(newDuration) * time.Minute)
		return nil, s.translateBookingError(ctx, err, appt.ProviderID, newStart, end, id)
	}
	if len(conflicts) > 0 {
		return nil, s.conflictError(conflicts)
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBooking("rescheduled")
	s.afterBookingChange(ctx, appt.ProviderID)
	if err := s.reminders.Reschedule(ctx, updated); err != nil {
		s.logger.Warn("failed to reschedule reminders", zap.String("appointment_id", id), zap.Error(err))
	}
	s.events.Publish(models.AppointmentEvent{Type: models.EventAppointmentRescheduled, Appointment: *updated})
	return updated, nil
}

// Cancel moves the appointment to CANCELLED and retracts its reminders.
func (s *AppointmentService) Cancel(ctx context.Context, id string, req dto.CancelAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cancellation requires a reason")
	}
	appt, err := s.transition(ctx, id, models.StatusCancelled, req.Reason, models.EventAppointmentCancelled)
	if err != nil {
		return nil, err
	}
	if err := s.reminders.Cancel(ctx, id); err != nil {
		s.logger.Warn("failed to cancel reminders", zap.String("appointment_id", id), zap.Error(err))
	}
	return appt, nil
}

// Confirm marks the patient's confirmation of a scheduled appointment.
func (s *AppointmentService) Confirm(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusConfirmed, "", "")
}

// CheckIn records the patient's arrival. Allowed on the appointment day only.
func (s *AppointmentService) CheckIn(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusCheckedIn, "", models.EventAppointmentCheckedIn)
}

// Start moves a checked-in appointment into the consultation.
func (s *AppointmentService) Start(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusInProgress, "", "")
}

// Complete closes out an in-progress appointment.
func (s *AppointmentService) Complete(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusCompleted, "", models.EventAppointmentCompleted)
}

// MarkNoShow records that the patient never arrived. The reminders are
// retracted like a cancellation.
func (s *AppointmentService) MarkNoShow(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.transition(ctx, id, models.StatusNoShow, "", models.EventAppointmentNoShow)
	if err != nil {
		return nil, err
	}
	if err := s.reminders.Cancel(ctx, id); err != nil {
		s.logger.Warn("failed to cancel reminders", zap.String("appointment_id", id), zap.Error(err))
	}
	return appt, nil
}

// Get loads one appointment.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.load(ctx, id)
}

// List returns appointments with pagination metadata.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	appointments, total, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return appointments, pagination, nil
}

// ExportCSV renders a filtered listing as a CSV dataset.
func (s *AppointmentService) ExportCSV(ctx context.Context, filter models.AppointmentFilter) (export.Dataset, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 1000
	}
	appointments, _, err := s.appointments.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export appointments")
	}
	dataset := export.Dataset{
		Headers: []string{"id", "patient_id", "provider_id", "scheduled_at", "duration_minutes", "status", "is_urgent"},
		Rows:    make([]map[string]string, 0, len(appointments)),
	}
	for i := range appointments {
		appt := &appointments[i]
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":               appt.ID,
			"patient_id":       appt.PatientID,
			"provider_id":      appt.ProviderID,
			"scheduled_at":     appt.ScheduledAt.UTC().Format(time.RFC3339),
			"duration_minutes": fmt.Sprintf("%d", appt.DurationMinutes),
			"status":           string(appt.Status),
			"is_urgent":        fmt.Sprintf("%t", appt.IsUrgent),
		})
	}
	return dataset, nil
}

func (s *AppointmentService) transition(ctx context.Context, id string, to models.AppointmentStatus, reason string, eventType models.AppointmentEventType) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Validate(appt, to, reason); err != nil {
		return nil, err
	}
	stamp := s.lifecycle.Stamp(to, reason)
	if err := s.appointments.UpdateStatus(ctx, id, to, stamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}

	appt.Status = to
	if stamp.CheckedInAt != nil {
		appt.CheckedInAt = stamp.CheckedInAt
	}
	if stamp.CancelledAt != nil {
		appt.CancelledAt = stamp.CancelledAt
	}
	if stamp.CompletedAt != nil {
		appt.CompletedAt = stamp.CompletedAt
	}
	if stamp.CancellationReason != nil {
		appt.CancellationReason = stamp.CancellationReason
	}

	if !to.IsActive() {
		s.afterBookingChange(ctx, appt.ProviderID)
	}
	if eventType != "" {
		s.events.Publish(models.AppointmentEvent{Type: eventType, Appointment: *appt})
	}
	return appt, nil
}

func (s *AppointmentService) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

func (s *AppointmentService) checkDirectory(ctx context.Context, dir directoryGateway, id, kind string) error {
	exists, err := dir.Exists(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify "+kind)
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, kind+" not found")
	}
	return nil
}

// checkWithinAvailability requires the interval to sit inside a single one of
// the provider's windows on that weekday.
func (s *AppointmentService) checkWithinAvailability(ctx context.Context, providerID string, start time.Time, durationMinutes int) error {
	local := start.In(s.location)
	windows, err := s.availability.WindowsFor(ctx, providerID, int(local.Weekday()))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability windows")
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for i := range windows {
		wStart, wEnd, err := windows[i].Bounds(local, s.location)
		if err != nil {
			s.logger.Warn("skipping malformed availability window",
				zap.String("window_id", windows[i].ID),
				zap.Error(err))
			continue
		}
		if !start.Before(wStart) && !end.After(wEnd) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, "requested time is outside the provider's availability")
}

func (s *AppointmentService) conflictError(conflicts []models.Appointment) error {
	s.metrics.RecordBooking("conflict")
	first := &conflicts[0]
	conflictErr := &models.AppointmentConflictError{
		Message: "the requested time overlaps an existing appointment",
		Conflict: models.AppointmentConflict{
			AppointmentID: first.ID,
			ProviderID:    first.ProviderID,
			Start:         first.ScheduledAt,
			End:           first.EndTime(),
			Status:        string(first.Status),
		},
	}
	return appErrors.Wrap(conflictErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflictErr.Message)
}

// translateBookingError maps a raced booking onto a conflict response. The
// database aborted the transaction, so the winning appointment is looked up
// after the fact to include in the error.
func (s *AppointmentService) translateBookingError(ctx context.Context, err error, providerID string, start, end time.Time, excludeID string) error {
	if !errors.Is(err, repository.ErrBookingRaced) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book appointment")
	}
	winners, lookupErr := s.conflicts.FindConflicts(ctx, providerID, start, int(end.Sub(start).Minutes()), excludeID)
	if lookupErr == nil && len(winners) > 0 {
		s.metrics.RecordBooking("conflict")
		conflictErr := &models.AppointmentConflictError{
			Message:  "the requested time overlaps an existing appointment",
			Conflict: winners[0],
		}
		return appErrors.Wrap(conflictErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflictErr.Message)
	}
	s.metrics.RecordBooking("conflict")
	return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "the requested time was just booked")
}

func (s *AppointmentService) afterBookingChange(ctx context.Context, providerID string) {
	if err := s.cache.InvalidateProviderSlots(ctx, providerID); err != nil {
		s.logger.Warn("failed to invalidate slot cache", zap.String("provider_id", providerID), zap.Error(err))
	}
}
