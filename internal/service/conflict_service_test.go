package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
)

type stubOverlapReader struct {
	appointments []models.Appointment
	err          error
	gotExclude   string
}

func (s *stubOverlapReader) FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Appointment, error) {
	s.gotExclude = excludeID
	return s.appointments, s.err
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		aStart  time.Time
		aEnd    time.Time
		bStart  time.Time
		bEnd    time.Time
		overlap bool
	}{
		{"identical", base, base.Add(30 * time.Minute), base, base.Add(30 * time.Minute), true},
		{"partial overlap", base, base.Add(30 * time.Minute), base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"containment", base, base.Add(time.Hour), base.Add(15 * time.Minute), base.Add(30 * time.Minute), true},
		{"back to back", base, base.Add(30 * time.Minute), base.Add(30 * time.Minute), base.Add(time.Hour), false},
		{"disjoint", base, base.Add(30 * time.Minute), base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlap, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			assert.Equal(t, tc.overlap, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestConflictServiceFindConflicts(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &stubOverlapReader{appointments: []models.Appointment{{
		ID:              "appt-1",
		ProviderID:      "prov-1",
		ScheduledAt:     start,
		DurationMinutes: 30,
		Status:          models.StatusConfirmed,
	}}}
	svc := NewConflictService(reader, nil)

	conflicts, err := svc.FindConflicts(context.Background(), "prov-1", start.Add(15*time.Minute), 30, "appt-2")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "appt-1", conflicts[0].AppointmentID)
	assert.Equal(t, start.Add(30*time.Minute), conflicts[0].End)
	assert.Equal(t, "appt-2", reader.gotExclude)
}

func TestConflictServiceHasConflict(t *testing.T) {
	svc := NewConflictService(&stubOverlapReader{}, nil)
	ok, err := svc.HasConflict(context.Background(), "prov-1", time.Now(), 30, "")
	require.NoError(t, err)
	assert.False(t, ok)

	svc = NewConflictService(&stubOverlapReader{err: errors.New("db down")}, nil)
	_, err = svc.HasConflict(context.Background(), "prov-1", time.Now(), 30, "")
	assert.Error(t, err)
}
