package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

// Stage names a step of a single-location forecast.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageFeaturizing Stage = "featurizing"
	StageClassifying Stage = "classifying"
	StageMapping     Stage = "mapping"
)

// ForecastError aborts one location's forecast. Err is the typed cause.
type ForecastError struct {
	Location domain.LocationCode
	Stage    Stage
	Week     int // -1 when the failure is not tied to one week
	Err      error
}

func (e *ForecastError) Error() string {
	if e.Week >= 0 {
		return fmt.Sprintf("forecast location %d: %s week %d: %v", e.Location, e.Stage, e.Week, e.Err)
	}
	return fmt.Sprintf("forecast location %d: %s: %v", e.Location, e.Stage, e.Err)
}

func (e *ForecastError) Unwrap() error { return e.Err }

// BundleSource yields the live model bundle.
type BundleSource interface {
	Current() *model.Bundle
}

// Engine forecasts a single location across the horizon. It either returns
// exactly horizon weeks or an error; it never returns a partial forecast.
type Engine struct {
	bundles BundleSource
	horizon int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates an Engine producing horizon weeks per forecast.
func NewEngine(bundles BundleSource, horizon int, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if horizon <= 0 {
		horizon = 1
	}
	return &Engine{bundles: bundles, horizon: horizon, logger: logger, metrics: metrics}
}

// Horizon returns the number of weeks per forecast.
func (e *Engine) Horizon() int { return e.horizon }

// Forecast runs against the live bundle.
func (e *Engine) Forecast(ctx context.Context, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, error) {
	return e.ForecastWith(ctx, e.bundles.Current(), code, reading, start)
}

// ForecastWith runs against bundle b. Callers that forecast several locations
// pass one snapshot so a concurrent reload cannot mix model versions within a
// request.
func (e *Engine) ForecastWith(ctx context.Context, b *model.Bundle, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, error) {
	fail := func(stage Stage, week int, err error) (domain.WeeklyForecast, error) {
		return nil, &ForecastError{Location: code, Stage: stage, Week: week, Err: err}
	}

	if b == nil {
		return fail(StageResolving, -1, &domain.ClassifierUnavailableError{Err: model.ErrNotLoaded})
	}

	// Resolving
	if err := reading.Validate(); err != nil {
		return fail(StageResolving, -1, err)
	}
	if err := domain.ValidateDate(start); err != nil {
		return fail(StageResolving, -1, err)
	}
	if !b.Locations.Contains(code) {
		return fail(StageResolving, -1, &domain.UnknownLocationError{Location: fmt.Sprint(int(code))})
	}
	climates := domain.ClimateResolver{Index: b.Index}.Resolve(e.horizon, start, reading)

	// Featurizing
	vectors := make([]domain.FeatureVector, len(climates))
	for i, c := range climates {
		v, err := b.Features.Build(c.Reading, domain.WeekStart(start, i), code)
		if err != nil {
			return fail(StageFeaturizing, i, err)
		}
		vectors[i] = v
	}

	// Classifying
	probs := make([]float64, len(vectors))
	for i, v := range vectors {
		p, err := e.classify(ctx, b.Classifier, v)
		if err != nil {
			return fail(StageClassifying, i, err)
		}
		probs[i] = p
	}

	// Mapping
	weeks := make(domain.WeeklyForecast, len(probs))
	for i, p := range probs {
		weeks[i] = domain.NewForecastWeek(start, i, p, climates[i])
	}
	if len(weeks) != e.horizon {
		return fail(StageMapping, -1, fmt.Errorf("produced %d weeks, want %d", len(weeks), e.horizon))
	}
	return weeks, nil
}

// classify calls the classifier and normalizes its error: schema mismatches
// stay fatal, everything else is treated as transient unavailability.
func (e *Engine) classify(ctx context.Context, c domain.Classifier, v domain.FeatureVector) (float64, error) {
	start := time.Now()
	p, err := c.PredictProbability(ctx, v)
	e.metrics.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.ClassifierRequests.WithLabelValues("error").Inc()
		var mismatch *domain.SchemaMismatchError
		var unavailable *domain.ClassifierUnavailableError
		if errors.As(err, &mismatch) || errors.As(err, &unavailable) {
			return 0, err
		}
		return 0, &domain.ClassifierUnavailableError{Err: err}
	}
	e.metrics.ClassifierRequests.WithLabelValues("success").Inc()
	return p, nil
}
