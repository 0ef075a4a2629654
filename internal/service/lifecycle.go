package service

import (
	"fmt"
	"time"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

// lifecycleTransitions maps each status to the statuses it may move to.
var lifecycleTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.StatusScheduled:  {models.StatusConfirmed, models.StatusCheckedIn, models.StatusCancelled, models.StatusNoShow},
	models.StatusConfirmed:  {models.StatusCheckedIn, models.StatusCancelled, models.StatusNoShow},
	models.StatusCheckedIn:  {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted},
	models.StatusCompleted:  nil,
	models.StatusCancelled:  nil,
	models.StatusNoShow:     nil,
}

// Lifecycle enforces the appointment state machine. It owns the transition
// table and the guards that depend on wall-clock time; persistence belongs to
// the caller.
type Lifecycle struct {
	location *time.Location
	now      func() time.Time
}

// NewLifecycle constructs a Lifecycle using the real clock. Day-boundary
// guards are evaluated in the given location.
func NewLifecycle(location *time.Location) *Lifecycle {
	if location == nil {
		location = time.UTC
	}
	return &Lifecycle{location: location, now: time.Now}
}

// CanTransition reports whether the bare status change is allowed, ignoring
// time-based guards.
func (l *Lifecycle) CanTransition(from, to models.AppointmentStatus) bool {
	for _, allowed := range lifecycleTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Validate checks a requested transition against the table and the guards
// that depend on the appointment itself.
func (l *Lifecycle) Validate(appt *models.Appointment, to models.AppointmentStatus, reason string) error {
	if !to.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", to))
	}
	if appt.Status.IsTerminal() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("appointment already %s", appt.Status))
	}
	if !l.CanTransition(appt.Status, to) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move appointment from %s to %s", appt.Status, to))
	}

	now := l.now().UTC()
	switch to {
	case models.StatusCancelled:
		if reason == "" {
			return appErrors.Clone(appErrors.ErrValidation, "cancellation requires a reason")
		}
	case models.StatusCheckedIn:
		if !sameDay(now, appt.ScheduledAt, l.location) {
			return appErrors.Clone(appErrors.ErrValidation, "check-in is only allowed on the appointment day")
		}
	case models.StatusNoShow:
		if now.Before(appt.EndTime()) {
			return appErrors.Clone(appErrors.ErrValidation, "cannot mark no-show before the booked interval has passed")
		}
	}
	return nil
}

// Stamp returns the column updates a successful transition must persist
// alongside the status itself.
func (l *Lifecycle) Stamp(to models.AppointmentStatus, reason string) models.StatusStamp {
	now := l.now().UTC()
	var stamp models.StatusStamp
	switch to {
	case models.StatusCheckedIn:
		stamp.CheckedInAt = &now
	case models.StatusCancelled:
		stamp.CancelledAt = &now
		if reason != "" {
			stamp.CancellationReason = &reason
		}
	case models.StatusCompleted, models.StatusNoShow:
		stamp.CompletedAt = &now
	}
	return stamp
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
