// Package config loads process configuration from the environment,
// the same getenv-with-default idiom the teacher repo uses: no
// config-file parser, every knob has a sane default.
package config

import (
	"os"
	"strconv"
	"time"
)

// HTTPConfig controls the public and admin HTTP surface (C12).
type HTTPConfig struct {
	Addr        string
	BasePath    string
	AdminToken  string
	MaxCSVBytes int64
}

// ExtractConfig controls the extraction orchestrator's concurrency and
// network behavior (C3/C4/C5/C6).
type ExtractConfig struct {
	ICSConcurrency    int
	RenderConcurrency int
	ICSTimeout        time.Duration
	RenderTimeout     time.Duration
	WindowPastDays    int
	WindowFutureDays  int
}

// SchedulerConfig controls the periodic background tasks (C10).
type SchedulerConfig struct {
	Disabled        bool
	ExtractInterval time.Duration
	RetentionDays   int
	CleanupInterval time.Duration
}

// StoreConfig controls the SQLite-backed event store (C9).
type StoreConfig struct {
	Path string
}

// Config is the fully-resolved process configuration.
type Config struct {
	HTTP        HTTPConfig
	Extract     ExtractConfig
	Scheduler   SchedulerConfig
	Store       StoreConfig
	ArtifactDir string
	Timezone    string
	LogLevel    string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvMinutes(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Minute
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

// Load resolves the process Config from the environment.
func Load() (*Config, error) {
	return &Config{
		HTTP: HTTPConfig{
			Addr:        getenv("HTTP_ADDR", ":8080"),
			BasePath:    getenv("HTTP_BASE_PATH", "/"),
			AdminToken:  getenv("ADMIN_TOKEN", ""),
			MaxCSVBytes: getenvInt64("HTTP_MAX_CSV_BYTES", 1<<20),
		},
		Extract: ExtractConfig{
			ICSConcurrency:    getenvInt("ICS_CONCURRENCY", 8),
			RenderConcurrency: getenvInt("RENDER_CONCURRENCY", 4),
			ICSTimeout:        time.Duration(getenvInt("ICS_TIMEOUT_SECONDS", 30)) * time.Second,
			RenderTimeout:     time.Duration(getenvInt("RENDER_TIMEOUT_SECONDS", 60)) * time.Second,
			WindowPastDays:    getenvInt("WINDOW_PAST_DAYS", 60),
			WindowFutureDays:  getenvInt("WINDOW_FUTURE_DAYS", 60),
		},
		Scheduler: SchedulerConfig{
			Disabled:        getenvBool("DISABLE_BACKGROUND_TASKS", false),
			ExtractInterval: getenvMinutes("EXTRACT_INTERVAL_MIN", 60*time.Minute),
			RetentionDays:   getenvInt("RETENTION_DAYS", 60),
			CleanupInterval: 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: getenv("STORE_PATH", "./data/roomcal.db"),
		},
		ArtifactDir: getenv("ARTIFACT_DIR", "./data/artifacts"),
		Timezone:    getenv("TZ", "UTC"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
	}, nil
}
