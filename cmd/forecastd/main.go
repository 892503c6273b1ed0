// Command forecastd serves weekly outbreak risk forecasts over HTTP and,
// when KAFKA_ENABLED is set, from a Kafka request topic.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/outbreak-forecast/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/outbreak-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-forecast/internal/adapter/modelserver"
	"github.com/couchcryptid/outbreak-forecast/internal/config"
	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast/internal/history"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
	"github.com/couchcryptid/outbreak-forecast/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locations, err := model.LoadLocations(cfg.LocationsPath)
	if err != nil {
		logger.Error("failed to load location table", "error", err)
		os.Exit(1)
	}

	// Climate history: Postgres when configured, otherwise the CSV file.
	var hist history.Source
	if cfg.ClimateDatabaseURL != "" {
		pg, err := history.NewPostgresSource(ctx, cfg.ClimateDatabaseURL)
		if err != nil {
			logger.Error("failed to connect to climate database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		hist = pg
		logger.Info("climate history from postgres")
	} else {
		hist = history.NewCSVSource(cfg.ClimateHistoryPath, logger)
		logger.Info("climate history from csv", "path", cfg.ClimateHistoryPath)
	}

	handle := model.NewHandle(classifierLoader(cfg, logger, metrics), hist, locations, logger, metrics)
	if _, err := handle.Reload(ctx); err != nil {
		logger.Error("failed to load model", "error", err)
		os.Exit(1)
	}

	policy := forecast.Policy{
		Width:       cfg.ForecastConcurrency,
		MaxAttempts: cfg.ForecastMaxAttempts,
		BaseDelay:   cfg.ForecastRetryBaseDelay,
		MaxDelay:    cfg.ForecastRetryMaxDelay,
		Multiplier:  2,
	}
	svc := forecast.NewService(forecast.ServiceConfig{
		Engine:        forecast.NewEngine(handle, cfg.ForecastHorizon, logger, metrics),
		Bundles:       handle,
		Locations:     locations,
		Policy:        policy,
		Cache:         forecast.NewCache(cfg.ForecastCacheTTL, nil),
		FlightTimeout: cfg.ForecastBatchTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})
	handle.OnSwap(svc.InvalidateCache)

	api := httpadapter.NewAPI(handle, svc, cfg.ForecastBatchTimeout, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, handle, api, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Streaming pipeline (feature-flagged via KAFKA_ENABLED).
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	pipelineDone := make(chan struct{})
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(svc, handle, cfg.ForecastBatchTimeout, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

		go func() {
			defer close(pipelineDone)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
		logger.Info("kafka pipeline enabled", "source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		close(pipelineDone)
		logger.Info("kafka pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// classifierLoader picks the remote model server when MODEL_SERVER_URL is set
// and the artifact file otherwise. Each reload dials afresh so a new remote
// model version is picked up.
func classifierLoader(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) model.ClassifierLoader {
	if cfg.ModelServerURL == "" {
		return model.FileLoader{Path: cfg.ModelPath, Logger: logger}
	}
	return model.ClassifierLoaderFunc(func(ctx context.Context) (domain.Classifier, error) {
		client, err := modelserver.Dial(ctx, cfg.ModelServerURL, cfg.ModelServerTimeout, logger)
		if err != nil {
			return nil, err
		}
		return modelserver.NewCachedClassifier(client, cfg.PredictionCacheSize, metrics), nil
	})
}
