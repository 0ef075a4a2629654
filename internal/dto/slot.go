package dto

import "time"

// SlotItem is one bookable interval offered to callers.
type SlotItem struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotListResponse returns the open slots for a provider and date.
type SlotListResponse struct {
	ProviderID      string     `json:"providerId"`
	Date            string     `json:"date"`
	DurationMinutes int        `json:"durationMinutes"`
	Slots           []SlotItem `json:"slots"`
}
