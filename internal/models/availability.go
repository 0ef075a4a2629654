package models

import (
	"fmt"
	"time"
)

// clockLayout is the local wall-clock format used by availability windows.
const clockLayout = "15:04"

// AvailabilityWindow is a provider's weekly recurring open window. Windows are
// managed by provider administration and are read-only to scheduling.
type AvailabilityWindow struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Bounds resolves the window's wall-clock times against a concrete date in the
// given location, returning the absolute [start, end) interval.
func (w *AvailabilityWindow) Bounds(date time.Time, loc *time.Location) (time.Time, time.Time, error) {
	start, err := w.at(w.StartTime, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window start: %w", err)
	}
	end, err := w.at(w.EndTime, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window end: %w", err)
	}
	return start, end, nil
}

func (w *AvailabilityWindow) at(clock string, date time.Time, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// Slot is a candidate bookable interval inside an availability window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
