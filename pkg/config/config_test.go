package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseOffsets(t *testing.T) {
	fallback := []time.Duration{24 * time.Hour}

	offsets := parseOffsets("24h,2h,30m", fallback)
	require.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}, offsets)
}

func TestParseOffsetsDropsInvalidEntries(t *testing.T) {
	fallback := []time.Duration{24 * time.Hour}

	offsets := parseOffsets("2h,bogus,-15m", fallback)
	require.Equal(t, []time.Duration{2 * time.Hour}, offsets)
}

func TestParseOffsetsFallsBack(t *testing.T) {
	fallback := []time.Duration{24 * time.Hour, 30 * time.Minute}

	require.Equal(t, fallback, parseOffsets("", fallback))
	require.Equal(t, fallback, parseOffsets("bogus,also-bogus", fallback))
}

func TestParseDuration(t *testing.T) {
	require.Equal(t, 45*time.Second, parseDuration("45s", time.Minute))
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.Equal(t, []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}, cfg.Reminders.Offsets)
	require.Equal(t, 30*time.Minute, cfg.Scheduling.DefaultSlotDuration)
	require.Equal(t, "UTC", cfg.Scheduling.Timezone)
}
