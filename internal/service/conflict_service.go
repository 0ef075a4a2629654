package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

type overlapReader interface {
	FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Appointment, error)
}

// ConflictService answers advisory double-booking questions. Booking paths do
// their own transactional re-check; this service serves read endpoints and
// pre-flight validation.
type ConflictService struct {
	appointments overlapReader
	logger       *zap.Logger
}

// NewConflictService constructs ConflictService.
func NewConflictService(appointments overlapReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{appointments: appointments, logger: logger}
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// appointments share a boundary instant and do not conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FindConflicts returns the active appointments colliding with the candidate
// interval, excluding excludeID when rescheduling.
func (s *ConflictService) FindConflicts(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeID string) ([]models.AppointmentConflict, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	overlapping, err := s.appointments.FindOverlapping(ctx, providerID, start, end, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query overlapping appointments")
	}
	conflicts := make([]models.AppointmentConflict, 0, len(overlapping))
	for _, appt := range overlapping {
		conflicts = append(conflicts, models.AppointmentConflict{
			AppointmentID: appt.ID,
			ProviderID:    appt.ProviderID,
			Start:         appt.ScheduledAt,
			End:           appt.EndTime(),
			Status:        string(appt.Status),
		})
	}
	return conflicts, nil
}

// HasConflict reports whether booking the interval would double-book the
// provider.
func (s *ConflictService) HasConflict(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeID string) (bool, error) {
	conflicts, err := s.FindConflicts(ctx, providerID, start, durationMinutes, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
