package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinicore/scheduling-api/internal/models"
)

// AvailabilityRepository reads provider availability windows. Windows are
// written by provider administration; scheduling only consumes them.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

const availabilityColumns = `id, provider_id, day_of_week, start_time, end_time, created_at, updated_at`

// ListByProvider returns all weekly windows for a provider ordered by day and start.
func (r *AvailabilityRepository) ListByProvider(ctx context.Context, providerID string) ([]models.AvailabilityWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM provider_availability WHERE provider_id = $1 ORDER BY day_of_week ASC, start_time ASC`, availabilityColumns)
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, providerID); err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}

// WindowsFor returns the provider's open windows on a single weekday, ordered
// by start time.
func (r *AvailabilityRepository) WindowsFor(ctx context.Context, providerID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM provider_availability WHERE provider_id = $1 AND day_of_week = $2 ORDER BY start_time ASC`, availabilityColumns)
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, providerID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("availability windows for day: %w", err)
	}
	return windows, nil
}
