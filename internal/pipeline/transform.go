package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/forecast"
)

// Header keys set on every published batch.
const (
	HeaderBatchID     = "batch_id"
	HeaderGeneratedAt = "generated_at"
)

// BatchForecaster is the part of forecast.Service the transformer needs.
type BatchForecaster interface {
	ForecastAll(ctx context.Context, codes []domain.LocationCode, reading domain.ClimateReading, start time.Time) (forecast.Result, error)
	Locations() *domain.LocationTable
}

// ForecastTransformer turns a ForecastRequest message into a BatchForecast
// message.
type ForecastTransformer struct {
	forecasts BatchForecaster
	bundles   forecast.BundleSource
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTransformer creates a ForecastTransformer. timeout bounds each request's
// ForecastAll call; zero means no bound beyond ctx.
func NewTransformer(forecasts BatchForecaster, bundles forecast.BundleSource, timeout time.Duration, logger *slog.Logger) *ForecastTransformer {
	return &ForecastTransformer{
		forecasts: forecasts,
		bundles:   bundles,
		timeout:   timeout,
		logger:    logger,
	}
}

// Transform parses and forecasts one request. Malformed requests and unknown
// locations are returned as errors so the pipeline drops them.
func (t *ForecastTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	var req domain.ForecastRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.OutputEvent{}, &domain.InvalidInputError{Field: "message", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	start := domain.Today()
	if req.Date != "" {
		var err error
		if start, err = domain.ParseDate(req.Date); err != nil {
			return domain.OutputEvent{}, err
		}
	}
	locs := t.forecasts.Locations()
	codes, err := locs.Resolve(req.Locations)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	reading := t.defaultReading(start)
	if req.Climate != nil {
		reading = *req.Climate
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	res, err := t.forecasts.ForecastAll(ctx, codes, reading, start)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	batch := domain.BatchForecast{
		BatchID:     uuid.NewString(),
		GeneratedAt: domain.Now(),
		Date:        start.Format(time.DateOnly),
		Predictions: make(map[string]domain.WeeklyForecast, len(res.Forecasts)),
	}
	for code, wf := range res.Forecasts {
		name, err := locs.Name(code)
		if err != nil {
			return domain.OutputEvent{}, err
		}
		batch.Predictions[name] = wf
	}
	return serializeBatch(batch)
}

func (t *ForecastTransformer) defaultReading(start time.Time) domain.ClimateReading {
	if b := t.bundles.Current(); b != nil {
		return b.Index.ReadingFor(start)
	}
	return domain.DefaultReading
}

func serializeBatch(batch domain.BatchForecast) (domain.OutputEvent, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize batch forecast: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(batch.BatchID),
		Value: data,
		Headers: map[string]string{
			HeaderBatchID:     batch.BatchID,
			HeaderGeneratedAt: batch.GeneratedAt.Format(time.RFC3339),
		},
	}, nil
}
