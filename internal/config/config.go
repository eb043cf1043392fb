package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendFirestore = "firestore"
	BackendDynamoDB  = "dynamodb"

	// MaxEmbedsPerMessage is the webhook's hard limit on embeds in one message.
	MaxEmbedsPerMessage = 10
)

type Config struct {
	StoreBackend string
	ProjectID    string

	DynamoTableName    string
	AWSRegion          string
	AWSEndpointURL     string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	Port          string
	SourceBaseURL string
	SelectorsPath string

	RunSchedule        string
	RunTimeout         time.Duration
	RequestTimeout     time.Duration
	FetchRetries       int
	ConfigCacheTTL     time.Duration
	EmbedsPerMessage   int
	MessageDelay       time.Duration
	ChannelConcurrency int
	DedupRetention     time.Duration
	DedupStrict        bool

	LogLevel  slog.Level
	LogFormat string
}

func Load() (*Config, error) {
	backend := strings.ToLower(os.Getenv("STORE_BACKEND"))
	if backend == "" {
		backend = BackendFirestore
	}
	if backend != BackendFirestore && backend != BackendDynamoDB {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: must be %q or %q", backend, BackendFirestore, BackendDynamoDB)
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if backend == BackendFirestore && projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	runSchedule := os.Getenv("RUN_SCHEDULE")
	if runSchedule == "" {
		runSchedule = "@every 1m"
	}

	cfg := &Config{
		StoreBackend:       backend,
		ProjectID:          projectID,
		DynamoTableName:    getEnv("DYNAMODB_TABLE_NAME", "hotukdeals"),
		AWSRegion:          getEnv("AWS_REGION", "eu-west-2"),
		AWSEndpointURL:     os.Getenv("AWS_ENDPOINT_URL"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Port:               port,
		SourceBaseURL:      strings.TrimSuffix(getEnv("SOURCE_BASE_URL", "https://www.hotukdeals.com"), "/"),
		SelectorsPath:      getEnv("SELECTORS_CONFIG_PATH", "config/selectors.json"),
		RunSchedule:        runSchedule,
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.RunTimeout, err = durationEnv("RUN_TIMEOUT", "50s"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ConfigCacheTTL, err = durationEnv("CONFIG_CACHE_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.MessageDelay, err = durationEnv("MESSAGE_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.DedupRetention, err = durationEnv("DEDUP_RETENTION", "0s"); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = intEnv("FETCH_RETRIES", 1); err != nil {
		return nil, err
	}
	if cfg.EmbedsPerMessage, err = intEnv("MAX_EMBEDS_PER_MESSAGE", MaxEmbedsPerMessage); err != nil {
		return nil, err
	}
	if cfg.ChannelConcurrency, err = intEnv("CHANNEL_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	if cfg.EmbedsPerMessage < 1 || cfg.EmbedsPerMessage > MaxEmbedsPerMessage {
		return nil, fmt.Errorf("invalid MAX_EMBEDS_PER_MESSAGE %d: must be between 1 and %d", cfg.EmbedsPerMessage, MaxEmbedsPerMessage)
	}
	if cfg.ChannelConcurrency < 1 {
		return nil, fmt.Errorf("invalid CHANNEL_CONCURRENCY %d: must be at least 1", cfg.ChannelConcurrency)
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("invalid FETCH_RETRIES %d: must not be negative", cfg.FetchRetries)
	}

	if v := os.Getenv("DEDUP_STRICT"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEDUP_STRICT %q: %w", v, err)
		}
		cfg.DedupStrict = strict
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

// ScheduleEnabled reports whether the in-process periodic trigger should run.
func (c *Config) ScheduleEnabled() bool {
	return c.RunSchedule != "off"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
