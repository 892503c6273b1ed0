package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

// Outcome records how a location's forecast was produced.
type Outcome string

const (
	OutcomeLive     Outcome = "live"
	OutcomeCached   Outcome = "cached"
	OutcomeStale    Outcome = "stale"
	OutcomeFallback Outcome = "fallback"
)

// Result is a batch forecast. Forecasts has exactly one entry per requested
// location and every entry carries a valid risk level.
type Result struct {
	Forecasts map[domain.LocationCode]domain.WeeklyForecast
	Outcomes  map[domain.LocationCode]Outcome
}

// Service fronts the Engine for many locations with bounded concurrency,
// per-location retry, a TTL cache, and a fallback so no location is ever
// missing from a result.
type Service struct {
	engine       *Engine
	bundles      BundleSource
	locations    *domain.LocationTable
	policy       Policy
	cache        *Cache
	flightWindow time.Duration
	flights      singleflight.Group
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// ServiceConfig carries the Service's dependencies.
type ServiceConfig struct {
	Engine    *Engine
	Bundles   BundleSource
	Locations *domain.LocationTable
	Policy    Policy
	Cache     *Cache
	// FlightTimeout bounds a shared per-location computation independently of
	// any single caller's deadline.
	FlightTimeout time.Duration
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = 30 * time.Second
	}
	return &Service{
		engine:       cfg.Engine,
		bundles:      cfg.Bundles,
		locations:    cfg.Locations,
		policy:       cfg.Policy,
		cache:        cfg.Cache,
		flightWindow: cfg.FlightTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// Locations returns the location table the service validates against.
func (s *Service) Locations() *domain.LocationTable { return s.locations }

// InvalidateCache drops the cached batch. It is registered to run on model
// reload.
func (s *Service) InvalidateCache(*model.Bundle) {
	s.cache.Invalidate()
	s.logger.Info("forecast cache invalidated")
}

// ForecastAll forecasts every code. Input errors are returned as-is. Otherwise
// the result covers every requested code: live forecasts where they
// succeeded, the last known-good forecast or a Moderate placeholder where they
// did not. When ctx ends first, finished locations are kept and the rest fall
// back without waiting.
func (s *Service) ForecastAll(ctx context.Context, codes []domain.LocationCode, reading domain.ClimateReading, start time.Time) (Result, error) {
	began := time.Now()
	defer func() { s.metrics.BatchDuration.Observe(time.Since(began).Seconds()) }()

	codes, err := s.validate(codes, reading, start)
	if err != nil {
		return Result{}, err
	}
	start = domain.CalendarDay(start)
	s.metrics.BatchLocations.Observe(float64(len(codes)))

	b := s.bundles.Current()
	key := s.requestKey(b, reading, start)

	cached, lookup := s.cache.Lookup(key, codes)
	s.metrics.CacheLookups.WithLabelValues(string(lookup)).Inc()
	if lookup == LookupHit {
		res := Result{Forecasts: cached, Outcomes: make(map[domain.LocationCode]Outcome, len(codes))}
		for _, code := range codes {
			res.Outcomes[code] = OutcomeCached
		}
		s.metrics.Forecasts.WithLabelValues(string(OutcomeCached)).Add(float64(len(codes)))
		return res, nil
	}

	var (
		mu     sync.Mutex
		closed bool
		live   = make(map[domain.LocationCode]domain.WeeklyForecast, len(codes))
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.policy.Each(ctx, len(codes), func(ctx context.Context, i int) {
			code := codes[i]
			wf, err := s.forecastLocation(ctx, b, key, code, reading, start)
			if err != nil {
				s.logger.Warn("location forecast failed", "location", int(code), "error", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !closed {
				live[code] = wf
			}
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("batch deadline reached, falling back for unfinished locations", "error", ctx.Err())
	}

	mu.Lock()
	closed = true
	res := Result{
		Forecasts: make(map[domain.LocationCode]domain.WeeklyForecast, len(codes)),
		Outcomes:  make(map[domain.LocationCode]Outcome, len(codes)),
	}
	for code, wf := range live {
		res.Forecasts[code] = wf
		res.Outcomes[code] = OutcomeLive
	}
	mu.Unlock()

	for _, code := range codes {
		if _, ok := res.Forecasts[code]; ok {
			continue
		}
		res.Forecasts[code], res.Outcomes[code] = s.fallback(key, code, reading, start)
	}

	allLive := true
	for _, code := range codes {
		o := res.Outcomes[code]
		s.metrics.Forecasts.WithLabelValues(string(o)).Inc()
		allLive = allLive && o == OutcomeLive
	}
	if allLive {
		s.cache.Store(key, res.Forecasts)
	}
	return res, nil
}

// Forecast forecasts a single location with the same retry and fallback
// policy as ForecastAll. It does not read or write the batch cache.
func (s *Service) Forecast(ctx context.Context, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, Outcome, error) {
	if _, err := s.validate([]domain.LocationCode{code}, reading, start); err != nil {
		return nil, "", err
	}
	start = domain.CalendarDay(start)
	b := s.bundles.Current()
	key := s.requestKey(b, reading, start)

	wf, err := s.forecastLocation(ctx, b, key, code, reading, start)
	if err != nil {
		s.logger.Warn("location forecast failed", "location", int(code), "error", err)
		wf, outcome := s.fallback(key, code, reading, start)
		s.metrics.Forecasts.WithLabelValues(string(outcome)).Inc()
		return wf, outcome, nil
	}
	s.metrics.Forecasts.WithLabelValues(string(OutcomeLive)).Inc()
	return wf, OutcomeLive, nil
}

// validate rejects bad input up front and returns codes without duplicates.
// An empty list selects every location.
func (s *Service) validate(codes []domain.LocationCode, reading domain.ClimateReading, start time.Time) ([]domain.LocationCode, error) {
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateDate(start); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return s.locations.Codes(), nil
	}
	out := make([]domain.LocationCode, 0, len(codes))
	for _, code := range codes {
		if !s.locations.Contains(code) {
			return nil, &domain.UnknownLocationError{Location: fmt.Sprint(int(code))}
		}
		if !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out, nil
}

func (s *Service) requestKey(b *model.Bundle, reading domain.ClimateReading, start time.Time) RequestKey {
	key := RequestKey{Reading: reading, Date: start.Format(time.DateOnly), Horizon: s.engine.Horizon()}
	if b != nil {
		key.ModelVersion = b.Info.Version
	}
	return key
}

// forecastLocation runs the retried engine call. Identical concurrent calls
// share one execution, which runs under its own deadline so a caller giving up
// does not cancel it for the others.
func (s *Service) forecastLocation(ctx context.Context, b *model.Bundle, key RequestKey, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, error) {
	// A flight outlives its caller, so never start one for a caller that is
	// already gone.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flightKey := fmt.Sprintf("%v|%d", key, code)
	ch := s.flights.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightWindow)
		defer cancel()

		var wf domain.WeeklyForecast
		err := s.policy.Retry(fctx, func(ctx context.Context, attempt int) error {
			if attempt > 1 {
				s.metrics.ForecastRetries.Inc()
			}
			var err error
			wf, err = s.engine.ForecastWith(ctx, b, code, reading, start)
			if err != nil && domain.IsRetryable(err) && attempt < s.policy.attempts() {
				s.logger.Debug("retrying location forecast", "location", int(code), "attempt", attempt, "error", err)
			}
			return err
		})
		return wf, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.WeeklyForecast).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fallback is the only place a location without a live forecast gets one.
func (s *Service) fallback(key RequestKey, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, Outcome) {
	if wf, ok := s.cache.LastKnown(key, code); ok {
		return wf, OutcomeStale
	}
	return domain.Placeholder(start, reading), OutcomeFallback
}
