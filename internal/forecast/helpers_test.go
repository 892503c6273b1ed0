package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

const (
	codeGPS     domain.LocationCode = 0
	codeMorales domain.LocationCode = 1
	codeZoneII  domain.LocationCode = 4
)

var (
	testReading = domain.ClimateReading{Temperature: 29, Humidity: 78, Rainfall: 120}
	testStart   = time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)
)

// --- mocks ---

// scriptedClassifier returns a fixed probability and fails on demand per
// location code.
type scriptedClassifier struct {
	info  domain.ModelInfo
	prob  float64
	delay time.Duration
	block chan struct{} // when set, calls for blockFor wait on it

	mu        sync.Mutex
	failFor   map[domain.LocationCode]error
	failTimes map[domain.LocationCode]int
	blockFor  map[domain.LocationCode]bool

	calls       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newScripted(t *testing.T) *scriptedClassifier {
	t.Helper()
	schema, err := domain.SchemaByVersion("v1")
	require.NoError(t, err)
	return &scriptedClassifier{
		info:      domain.ModelInfo{Kind: "scripted", Version: "s1", SchemaVersion: "v1", Features: schema.Names},
		prob:      0.42,
		failFor:   map[domain.LocationCode]error{},
		failTimes: map[domain.LocationCode]int{},
		blockFor:  map[domain.LocationCode]bool{},
	}
}

func (s *scriptedClassifier) failAlways(code domain.LocationCode, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[code] = err
}

func (s *scriptedClassifier) failFirst(code domain.LocationCode, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTimes[code] = n
}

func (s *scriptedClassifier) heal(code domain.LocationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failFor, code)
}

func (s *scriptedClassifier) Info() domain.ModelInfo { return s.info }

func (s *scriptedClassifier) PredictProbability(ctx context.Context, v domain.FeatureVector) (float64, error) {
	s.calls.Add(1)
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		m := s.maxInflight.Load()
		if n <= m || s.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	x, _ := v.Get(domain.FeatLocationCode)
	code := domain.LocationCode(x)

	s.mu.Lock()
	err := s.failFor[code]
	if err == nil && s.failTimes[code] > 0 {
		s.failTimes[code]--
		err = &domain.ClassifierUnavailableError{Err: errors.New("transient")}
	}
	blocked := s.blockFor[code]
	s.mu.Unlock()

	if blocked {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.block:
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err != nil {
		return 0, err
	}
	return s.prob, nil
}

type staticBundles struct {
	mu sync.Mutex
	b  *model.Bundle
}

func (s *staticBundles) Current() *model.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b
}

func (s *staticBundles) set(b *model.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b = b
}

// --- helpers ---

func testLocations(t *testing.T) *domain.LocationTable {
	t.Helper()
	locs, err := model.LoadLocations("")
	require.NoError(t, err)
	return locs
}

func testIndex() *domain.HistoricalClimateIndex {
	var rows []domain.DatedReading
	for m := time.January; m <= time.December; m++ {
		rows = append(rows, domain.DatedReading{
			Date:    time.Date(2024, m, 10, 0, 0, 0, 0, time.UTC),
			Reading: domain.ClimateReading{Temperature: 26 + float64(m)/4, Humidity: 75, Rainfall: 40 + float64(m)*10},
		})
	}
	return domain.BuildHistoricalIndex(rows)
}

func bundleFor(t *testing.T, clf domain.Classifier) *model.Bundle {
	t.Helper()
	info := clf.Info()
	schema, err := domain.SchemaByVersion(info.SchemaVersion)
	require.NoError(t, err)
	locs := testLocations(t)
	fe, err := domain.NewFeatureEngineer(schema, locs)
	require.NoError(t, err)
	return &model.Bundle{
		Classifier: clf,
		Info:       info,
		Schema:     schema,
		Features:   fe,
		Index:      testIndex(),
		Locations:  locs,
		LoadedAt:   time.Now(),
	}
}

func testPolicy() Policy {
	return Policy{Width: 3, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

type serviceFixture struct {
	svc     *Service
	clf     *scriptedClassifier
	bundles *staticBundles
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clf := newScripted(t)
	bundles := &staticBundles{b: bundleFor(t, clf)}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	logger := slog.Default()

	svc := NewService(ServiceConfig{
		Engine:        NewEngine(bundles, 4, logger, metrics),
		Bundles:       bundles,
		Locations:     testLocations(t),
		Policy:        testPolicy(),
		Cache:         NewCache(5*time.Minute, clock),
		FlightTimeout: 2 * time.Second,
		Logger:        logger,
		Metrics:       metrics,
	})
	return &serviceFixture{svc: svc, clf: clf, bundles: bundles, clock: clock, metrics: metrics}
}
