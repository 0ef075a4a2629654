package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Reminders  RemindersConfig
	Events     EventsConfig
	Gateways   GatewaysConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig tunes slot generation and booking validation.
type SchedulingConfig struct {
	Timezone            string
	DefaultSlotDuration time.Duration
	SlotCacheTTL        time.Duration
	SlotCacheEnabled    bool
}

// RemindersConfig governs reminder computation and out-of-band dispatch.
type RemindersConfig struct {
	Enabled      bool
	Offsets      []time.Duration
	PollInterval time.Duration
	Lookahead    time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// EventsConfig tunes the post-commit collaborator fan-out queue.
type EventsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// GatewaysConfig points at the external collaborator services.
type GatewaysConfig struct {
	PatientDirectoryURL  string
	ProviderDirectoryURL string
	NotificationURL      string
	CalendarURL          string
	Timeout              time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		Timezone:            v.GetString("SCHEDULING_TIMEZONE"),
		DefaultSlotDuration: parseDuration(v.GetString("SCHEDULING_DEFAULT_SLOT_DURATION"), 30*time.Minute),
		SlotCacheTTL:        parseDuration(v.GetString("SCHEDULING_SLOT_CACHE_TTL"), time.Minute),
		SlotCacheEnabled:    v.GetBool("SCHEDULING_SLOT_CACHE_ENABLED"),
	}

	cfg.Reminders = RemindersConfig{
		Enabled:      v.GetBool("REMINDERS_ENABLED"),
		Offsets:      parseOffsets(v.GetString("REMINDER_OFFSETS"), []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}),
		PollInterval: parseDuration(v.GetString("REMINDER_POLL_INTERVAL"), 30*time.Second),
		Lookahead:    parseDuration(v.GetString("REMINDER_LOOKAHEAD"), 5*time.Minute),
		BatchSize:    v.GetInt("REMINDER_BATCH_SIZE"),
		MaxAttempts:  v.GetInt("REMINDER_MAX_ATTEMPTS"),
		RetryBackoff: parseDuration(v.GetString("REMINDER_RETRY_BACKOFF"), time.Minute),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENTS_WORKERS"),
		BufferSize: v.GetInt("EVENTS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("EVENTS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EVENTS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Gateways = GatewaysConfig{
		PatientDirectoryURL:  v.GetString("PATIENT_DIRECTORY_URL"),
		ProviderDirectoryURL: v.GetString("PROVIDER_DIRECTORY_URL"),
		NotificationURL:      v.GetString("NOTIFICATION_GATEWAY_URL"),
		CalendarURL:          v.GetString("CALENDAR_GATEWAY_URL"),
		Timeout:              parseDuration(v.GetString("GATEWAY_TIMEOUT"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ehr_scheduling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULING_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULING_DEFAULT_SLOT_DURATION", "30m")
	v.SetDefault("SCHEDULING_SLOT_CACHE_TTL", "1m")
	v.SetDefault("SCHEDULING_SLOT_CACHE_ENABLED", false)

	v.SetDefault("REMINDERS_ENABLED", false)
	v.SetDefault("REMINDER_OFFSETS", "24h,2h,30m")
	v.SetDefault("REMINDER_POLL_INTERVAL", "30s")
	v.SetDefault("REMINDER_LOOKAHEAD", "5m")
	v.SetDefault("REMINDER_BATCH_SIZE", 50)
	v.SetDefault("REMINDER_MAX_ATTEMPTS", 3)
	v.SetDefault("REMINDER_RETRY_BACKOFF", "1m")

	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_BUFFER_SIZE", 64)
	v.SetDefault("EVENTS_MAX_RETRIES", 3)
	v.SetDefault("EVENTS_RETRY_DELAY", "2s")

	v.SetDefault("PATIENT_DIRECTORY_URL", "")
	v.SetDefault("PROVIDER_DIRECTORY_URL", "")
	v.SetDefault("NOTIFICATION_GATEWAY_URL", "")
	v.SetDefault("CALENDAR_GATEWAY_URL", "")
	v.SetDefault("GATEWAY_TIMEOUT", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// parseOffsets reads a comma separated list of reminder lead times. Invalid or
// non-positive entries are dropped; an empty result falls back to the default list.
func parseOffsets(raw string, fallback []time.Duration) []time.Duration {
	parts := splitAndTrim(raw)
	if len(parts) == 0 {
		return fallback
	}

	offsets := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			continue
		}
		offsets = append(offsets, d)
	}
	if len(offsets) == 0 {
		return fallback
	}
	return offsets
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
