package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
	"github.com/clinicore/scheduling-api/pkg/export"
)

const dateLayout = "2006-01-02"

type availabilityReader interface {
	ListByProvider(ctx context.Context, providerID string) ([]models.AvailabilityWindow, error)
	WindowsFor(ctx context.Context, providerID string, dayOfWeek int) ([]models.AvailabilityWindow, error)
}

type activeRangeReader interface {
	ListActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]models.Appointment, error)
}

// SlotService generates bookable slots from availability windows minus booked
// intervals. Results are advisory; booking re-validates inside its own
// transaction.
type SlotService struct {
	availability availabilityReader
	appointments activeRangeReader
	cache        *CacheService
	location     *time.Location
	slotTTL      time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewSlotService constructs SlotService. The location fixes which wall-clock
// day a date string names.
func NewSlotService(availability availabilityReader, appointments activeRangeReader, cache *CacheService, location *time.Location, slotTTL time.Duration, logger *zap.Logger) *SlotService {
	if location == nil {
		location = time.UTC
	}
	if slotTTL <= 0 {
		slotTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		availability: availability,
		appointments: appointments,
		cache:        cache,
		location:     location,
		slotTTL:      slotTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// ListWindows returns the provider's weekly availability windows.
func (s *SlotService) ListWindows(ctx context.Context, providerID string) ([]models.AvailabilityWindow, error) {
	windows, err := s.availability.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability windows")
	}
	return windows, nil
}

// GenerateSlots returns the open slots for a provider on a date. Slots step
// through each availability window at the requested duration; intervals that
// collide with an active booking or have already started are dropped.
func (s *SlotService) GenerateSlots(ctx context.Context, providerID, date string, durationMinutes int) ([]models.Slot, error) {
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	day, err := time.ParseInLocation(dateLayout, date, s.location)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	cacheKey := SlotCacheKey(providerID, date, durationMinutes)
	var cached []models.Slot
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	windows, err := s.availability.WindowsFor(ctx, providerID, int(day.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability windows")
	}
	if len(windows) == 0 {
		return []models.Slot{}, nil
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)
	booked, err := s.appointments.ListActiveInRange(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked appointments")
	}

	now := s.now()
	duration := time.Duration(durationMinutes) * time.Minute
	slots := make([]models.Slot, 0, 16)
	for i := range windows {
		start, end, err := windows[i].Bounds(day, s.location)
		if err != nil {
			s.logger.Warn("skipping malformed availability window",
				zap.String("window_id", windows[i].ID),
				zap.Error(err))
			continue
		}
		for cursor := start; !cursor.Add(duration).After(end); cursor = cursor.Add(duration) {
			slotEnd := cursor.Add(duration)
			if cursor.Before(now) {
				continue
			}
			if slotTaken(cursor, slotEnd, booked) {
				continue
			}
			slots = append(slots, models.Slot{Start: cursor, End: slotEnd})
		}
	}

	if err := s.cache.Set(ctx, cacheKey, slots, s.slotTTL); err != nil {
		s.logger.Warn("failed to cache slots", zap.String("key", cacheKey), zap.Error(err))
	}
	return slots, nil
}

func slotTaken(start, end time.Time, booked []models.Appointment) bool {
	for i := range booked {
		if Overlaps(start, end, booked[i].ScheduledAt, booked[i].EndTime()) {
			return true
		}
	}
	return false
}

// DaySheet assembles a provider's printable schedule for one date.
func (s *SlotService) DaySheet(ctx context.Context, providerID, date string) (*export.DaySheet, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.location)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}
	booked, err := s.appointments.ListActiveInRange(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day appointments")
	}

	sheet := &export.DaySheet{
		ProviderID: providerID,
		Date:       date,
		Timezone:   s.location.String(),
		Entries:    make([]export.DaySheetEntry, 0, len(booked)),
	}
	for i := range booked {
		appt := &booked[i]
		sheet.Entries = append(sheet.Entries, export.DaySheetEntry{
			Start:     appt.ScheduledAt.In(s.location).Format("15:04"),
			End:       appt.EndTime().In(s.location).Format("15:04"),
			PatientID: appt.PatientID,
			Status:    string(appt.Status),
			Urgent:    appt.IsUrgent,
		})
	}
	return sheet, nil
}
