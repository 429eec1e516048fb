package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Update delivery modes.
const (
	UpdatesModePoll   = "poll"
	UpdatesModeStream = "stream"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabaseURL is either a SQLite file path or a postgres:// URL.
	DatabaseURL string

	// PhotoDir is where acquired photos are written.
	PhotoDir string

	// BotToken authenticates against the Bot API.
	BotToken string

	// BotAPIURL is the Bot API base URL.
	BotAPIURL string

	// UpdatesMode selects long polling or the websocket relay.
	UpdatesMode string

	// UpdatesStreamURL is the websocket relay endpoint, used in stream mode.
	UpdatesStreamURL string

	// MediaGroupDebounce is how long a media group stays open.
	MediaGroupDebounce time.Duration

	// AcquireConcurrency caps concurrent photo downloads.
	AcquireConcurrency int

	// CORSOrigin is the frontend origin allowed to call the API.
	CORSOrigin string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFormat is json or text.
	LogFormat string
}

// UsePostgres reports whether DatabaseURL points at PostgreSQL.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// Load reads configuration from environment variables with sensible defaults.
// Variables from an optional .env file (ENV_FILE, default ".env") are applied
// first without overriding the real environment.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	port, err := getEnvInt("PORT", 3001)
	if err != nil {
		return nil, err
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	mode := getEnv("UPDATES_MODE", UpdatesModePoll)
	streamURL := os.Getenv("UPDATES_STREAM_URL")
	switch mode {
	case UpdatesModePoll:
	case UpdatesModeStream:
		if streamURL == "" {
			return nil, fmt.Errorf("UPDATES_STREAM_URL is required when UPDATES_MODE=%s", UpdatesModeStream)
		}
	default:
		return nil, fmt.Errorf("invalid UPDATES_MODE %q: want %s or %s", mode, UpdatesModePoll, UpdatesModeStream)
	}

	debounce := 2 * time.Second
	if v := os.Getenv("MEDIA_GROUP_DEBOUNCE"); v != "" {
		debounce, err = time.ParseDuration(v)
		if err != nil || debounce <= 0 {
			return nil, fmt.Errorf("invalid MEDIA_GROUP_DEBOUNCE %q", v)
		}
	}

	concurrency, err := getEnvInt("ACQUIRE_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("ACQUIRE_CONCURRENCY must be at least 1")
	}

	return &Config{
		Port:               port,
		DatabaseURL:        getEnv("DATABASE_URL", "posts.db"),
		PhotoDir:           getEnv("PHOTO_DIR", "photos"),
		BotToken:           token,
		BotAPIURL:          getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		UpdatesMode:        mode,
		UpdatesStreamURL:   streamURL,
		MediaGroupDebounce: debounce,
		AcquireConcurrency: concurrency,
		CORSOrigin:         getEnv("CORS_ORIGIN", "http://localhost:3000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
