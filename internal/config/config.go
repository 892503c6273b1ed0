package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Model artifact and reference data.
	ModelPath           string
	ModelServerURL      string
	ModelServerTimeout  time.Duration
	PredictionCacheSize int
	LocationsPath       string
	ClimateHistoryPath  string
	ClimateDatabaseURL  string

	// Forecast serving policy.
	ForecastHorizon        int
	ForecastConcurrency    int
	ForecastMaxAttempts    int
	ForecastRetryBaseDelay time.Duration
	ForecastRetryMaxDelay  time.Duration
	ForecastCacheTTL       time.Duration
	ForecastBatchTimeout   time.Duration

	// Streaming pipeline, feature-flagged via KAFKA_ENABLED.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ModelPath:          os.Getenv("MODEL_PATH"),
		ModelServerURL:     os.Getenv("MODEL_SERVER_URL"),
		LocationsPath:      os.Getenv("LOCATIONS_PATH"),
		ClimateHistoryPath: sharedcfg.EnvOrDefault("CLIMATE_HISTORY_PATH", "climate.csv"),
		ClimateDatabaseURL: os.Getenv("CLIMATE_DATABASE_URL"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "forecast-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "risk-forecasts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "outbreak-forecast"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	durations := []struct {
		env  string
		def  string
		dest *time.Duration
	}{
		{"MODEL_SERVER_TIMEOUT", "5s", &cfg.ModelServerTimeout},
		{"FORECAST_RETRY_BASE_DELAY", "200ms", &cfg.ForecastRetryBaseDelay},
		{"FORECAST_RETRY_MAX_DELAY", "5s", &cfg.ForecastRetryMaxDelay},
		{"FORECAST_CACHE_TTL", "5m", &cfg.ForecastCacheTTL},
		{"FORECAST_BATCH_TIMEOUT", "30s", &cfg.ForecastBatchTimeout},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.env, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	ints := []struct {
		env  string
		def  int
		max  int
		dest *int
	}{
		{"PREDICTION_CACHE_SIZE", 1000, 1_000_000, &cfg.PredictionCacheSize},
		{"FORECAST_HORIZON", 4, 52, &cfg.ForecastHorizon},
		{"FORECAST_CONCURRENCY", 3, 64, &cfg.ForecastConcurrency},
		{"FORECAST_MAX_ATTEMPTS", 3, 10, &cfg.ForecastMaxAttempts},
	}
	for _, n := range ints {
		v, err := parseBoundedInt(n.env, n.def, n.max)
		if err != nil {
			return nil, err
		}
		*n.dest = v
	}

	if cfg.ForecastRetryMaxDelay < cfg.ForecastRetryBaseDelay {
		return nil, errors.New("FORECAST_RETRY_MAX_DELAY must not be less than FORECAST_RETRY_BASE_DELAY")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(env, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(env, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", env)
	}
	return d, nil
}

func parseBoundedInt(env string, def, max int) (int, error) {
	s := os.Getenv(env)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > max {
		return 0, fmt.Errorf("invalid %s: must be between 1 and %d", env, max)
	}
	return n, nil
}
