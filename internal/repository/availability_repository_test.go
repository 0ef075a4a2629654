package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func availabilityRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "provider_id", "day_of_week", "start_time", "end_time", "created_at", "updated_at"}).
		AddRow("win-1", "prov-1", 2, "09:00", "12:00", now, now).
		AddRow("win-2", "prov-1", 2, "13:00", "17:00", now, now)
}

func TestAvailabilityRepositoryListByProvider(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM provider_availability WHERE provider_id = \$1 ORDER BY day_of_week ASC, start_time ASC`).
		WithArgs("prov-1").
		WillReturnRows(availabilityRows())

	windows, err := repo.ListByProvider(context.Background(), "prov-1")
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "09:00", windows[0].StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryWindowsFor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM provider_availability WHERE provider_id = \$1 AND day_of_week = \$2`).
		WithArgs("prov-1", 2).
		WillReturnRows(availabilityRows())

	windows, err := repo.WindowsFor(context.Background(), "prov-1", 2)
	require.NoError(t, err)
	assert.Len(t, windows, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
