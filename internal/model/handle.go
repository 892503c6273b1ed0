package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/history"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

// ErrNotLoaded is returned before the first successful load.
var ErrNotLoaded = errors.New("model bundle not loaded")

// Bundle is everything one forecast reads from: a classifier together with the
// schema it was fitted on and the climate index built for that schema. A
// bundle is never mutated after it is published.
type Bundle struct {
	Classifier domain.Classifier
	Info       domain.ModelInfo
	Schema     domain.FeatureSchema
	Features   *domain.FeatureEngineer
	Index      *domain.HistoricalClimateIndex
	Locations  *domain.LocationTable
	LoadedAt   time.Time
}

// Health is the serving status reported to callers.
type Health struct {
	Ready         bool   `json:"ready"`
	ModelVersion  string `json:"model_version,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
}

// Handle owns the live bundle. Readers call Current and keep the returned
// pointer for the duration of a request; Reload builds a complete new bundle
// and swaps it in atomically.
type Handle struct {
	classifiers ClassifierLoader
	history     history.Source
	locations   *domain.LocationTable
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu      sync.Mutex // serializes reloads
	current atomic.Pointer[Bundle]

	subMu       sync.Mutex
	subscribers []func(*Bundle)
}

// NewHandle creates an empty handle. Call Reload once before serving.
func NewHandle(classifiers ClassifierLoader, hist history.Source, locations *domain.LocationTable, logger *slog.Logger, metrics *observability.Metrics) *Handle {
	return &Handle{
		classifiers: classifiers,
		history:     hist,
		locations:   locations,
		logger:      logger,
		metrics:     metrics,
	}
}

// Current returns the live bundle, or nil before the first load.
func (h *Handle) Current() *Bundle {
	return h.current.Load()
}

// OnSwap registers fn to run after every successful swap, with the new bundle.
func (h *Handle) OnSwap(fn func(*Bundle)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Reload loads a classifier, checks it against its feature schema and swaps in
// a new bundle. The climate index is rebuilt only when the schema version
// changes; otherwise the live index is carried over. On any error the live
// bundle is left untouched.
func (h *Handle) Reload(ctx context.Context) (*Bundle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.build(ctx, h.current.Load())
	if err != nil {
		h.metrics.ModelReloads.WithLabelValues("error").Inc()
		h.logger.Error("model reload failed, keeping current bundle", "error", err)
		return nil, err
	}

	prev := h.current.Swap(next)
	h.metrics.ModelReloads.WithLabelValues("success").Inc()
	h.metrics.ModelLoaded.Set(1)

	attrs := []any{"model_version", next.Info.Version, "schema_version", next.Schema.Version,
		"index_months", next.Index.Coverage()}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Info.Version)
	}
	h.logger.Info("model bundle swapped", attrs...)

	h.subMu.Lock()
	subs := append([]func(*Bundle){}, h.subscribers...)
	h.subMu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

func (h *Handle) build(ctx context.Context, prev *Bundle) (*Bundle, error) {
	classifier, err := h.classifiers.LoadClassifier(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	info := classifier.Info()
	if info.SchemaVersion == "" {
		info.SchemaVersion = domain.DefaultSchemaVersion
	}

	schema, err := domain.SchemaByVersion(info.SchemaVersion)
	if err != nil {
		return nil, err
	}
	if err := schema.Check(info.Features); err != nil {
		return nil, fmt.Errorf("model %s: %w", info.Version, err)
	}
	features, err := domain.NewFeatureEngineer(schema, h.locations)
	if err != nil {
		return nil, err
	}

	var index *domain.HistoricalClimateIndex
	if prev != nil && prev.Schema.Version == schema.Version {
		index = prev.Index
	} else {
		rows, err := h.history.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load climate history: %w", err)
		}
		index = domain.BuildHistoricalIndex(rows)
		h.logger.Info("historical climate index built", "rows", index.Rows(), "months", index.Coverage())
	}

	return &Bundle{
		Classifier: classifier,
		Info:       info,
		Schema:     schema,
		Features:   features,
		Index:      index,
		Locations:  h.locations,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

// Health reports whether a bundle is loaded and, for remote classifiers, the
// backend answers a ping.
func (h *Handle) Health(ctx context.Context) Health {
	b := h.current.Load()
	if b == nil {
		return Health{}
	}
	health := Health{Ready: true, ModelVersion: b.Info.Version, SchemaVersion: b.Schema.Version}
	if p, ok := b.Classifier.(domain.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			health.Ready = false
		}
	}
	return health
}

// CheckReadiness implements the readiness probe. Besides the loaded bundle it
// pings a remote classifier and a history source that can be pinged.
func (h *Handle) CheckReadiness(ctx context.Context) error {
	b := h.current.Load()
	if b == nil {
		return ErrNotLoaded
	}
	if p, ok := b.Classifier.(domain.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("classifier unreachable: %w", err)
		}
	}
	// A database-backed history must stay reachable so the next schema
	// change can rebuild the index.
	if p, ok := h.history.(domain.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("climate history unreachable: %w", err)
		}
	}
	return nil
}
