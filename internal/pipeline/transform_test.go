package pipeline_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/pipeline"
)

// --- mocks ---

type recordingForecaster struct {
	locs    *domain.LocationTable
	codes   []domain.LocationCode
	reading domain.ClimateReading
	start   time.Time
	hadDL   bool
}

func (r *recordingForecaster) Locations() *domain.LocationTable { return r.locs }

func (r *recordingForecaster) ForecastAll(ctx context.Context, codes []domain.LocationCode, reading domain.ClimateReading, start time.Time) (forecast.Result, error) {
	r.codes, r.reading, r.start = codes, reading, start
	_, r.hadDL = ctx.Deadline()
	res := forecast.Result{
		Forecasts: make(map[domain.LocationCode]domain.WeeklyForecast),
		Outcomes:  make(map[domain.LocationCode]forecast.Outcome),
	}
	for _, c := range codes {
		res.Forecasts[c] = domain.Placeholder(start, reading)
		res.Outcomes[c] = forecast.OutcomeFallback
	}
	return res, nil
}

type fixedBundles struct{ b *model.Bundle }

func (f fixedBundles) Current() *model.Bundle { return f.b }

func newTransformer(t *testing.T) (*pipeline.ForecastTransformer, *recordingForecaster) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 8, 12, 6, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	locs, err := model.LoadLocations("")
	require.NoError(t, err)
	index := domain.BuildHistoricalIndex([]domain.DatedReading{
		{Date: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), Reading: domain.ClimateReading{Temperature: 27, Humidity: 85, Rainfall: 210}},
	})
	rec := &recordingForecaster{locs: locs}
	tr := pipeline.NewTransformer(rec, fixedBundles{b: &model.Bundle{Index: index}}, 5*time.Second, slog.Default())
	return tr, rec
}

// --- tests ---

func TestForecastTransformer_Transform(t *testing.T) {
	tr, rec := newTransformer(t)
	raw := domain.RawEvent{Value: []byte(`{"locations":["morales","Zone 2"],"climate":{"temperature":29,"humidity":78,"rainfall":120},"date":"2025-07-14"}`)}

	out, err := tr.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, []domain.LocationCode{1, 4}, rec.codes)
	assert.Equal(t, domain.ClimateReading{Temperature: 29, Humidity: 78, Rainfall: 120}, rec.reading)
	assert.Equal(t, time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), rec.start)
	assert.True(t, rec.hadDL, "forecast call is bounded by the transformer timeout")

	var batch domain.BatchForecast
	require.NoError(t, json.Unmarshal(out.Value, &batch))
	assert.Equal(t, string(out.Key), batch.BatchID)
	assert.Equal(t, batch.BatchID, out.Headers[pipeline.HeaderBatchID])
	assert.Equal(t, "2025-08-12T06:30:00Z", out.Headers[pipeline.HeaderGeneratedAt])
	assert.Equal(t, "2025-07-14", batch.Date)

	want := map[string]domain.WeeklyForecast{
		"Morales": domain.Placeholder(rec.start, rec.reading),
		"Zone II": domain.Placeholder(rec.start, rec.reading),
	}
	if diff := cmp.Diff(want, batch.Predictions); diff != "" {
		t.Fatalf("predictions mismatch (-want +got):\n%s", diff)
	}
}

func TestForecastTransformer_Defaults(t *testing.T) {
	tr, rec := newTransformer(t)

	_, err := tr.Transform(context.Background(), domain.RawEvent{Value: []byte(`{}`)})
	require.NoError(t, err)

	assert.Len(t, rec.codes, 5, "empty location list selects every location")
	assert.Equal(t, time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC), rec.start, "date defaults to today")
	assert.Equal(t, domain.ClimateReading{Temperature: 27, Humidity: 85, Rainfall: 210}, rec.reading, "climate defaults to the month's history")
}

func TestForecastTransformer_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"malformed json", `{"locations":`},
		{"unknown location", `{"locations":["Atlantis"]}`},
		{"bad date", `{"date":"14/07/2025"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTransformer(t)
			_, err := tr.Transform(context.Background(), domain.RawEvent{Value: []byte(tt.value)})
			require.Error(t, err)
			assert.True(t, domain.IsInputError(err))
		})
	}
}
