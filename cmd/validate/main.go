// Command validate checks a model artifact, location table, and climate
// history before they are deployed. It verifies the artifact against its
// feature schema, reports history coverage, and runs a forecast for every
// location through the same engine the service uses.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -model models/logistic-2025.2.json \
//	  -locations data/locations.json \
//	  -history data/climate.csv
//
// Empty -model and -locations check the embedded defaults. Without -history
// every week past the first uses the fallback reading.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast/internal/history"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
	"github.com/couchcryptid/outbreak-forecast/internal/observability"
)

// Fixed inputs for the smoke forecast.
var (
	smokeDate    = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	smokeReading = domain.ClimateReading{Temperature: 29, Humidity: 80, Rainfall: 140}
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	modelPath := flag.String("model", "", "path to a model artifact (default: embedded baseline)")
	locationsPath := flag.String("locations", "", "path to a location table (default: embedded table)")
	historyPath := flag.String("history", "", "path to a climate history CSV (optional)")
	horizon := flag.Int("horizon", 4, "forecast horizon in weeks")
	strict := flag.Bool("strict", false, "fail when history does not cover all twelve months")
	flag.Parse()

	if *horizon <= 0 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*modelPath, *locationsPath, *historyPath, *horizon, *strict))
}

func run(modelPath, locationsPath, historyPath string, horizon int, strict bool) int {
	domain.SetClock(clockwork.NewFakeClockAt(smokeDate))
	defer domain.SetClock(nil)

	fmt.Println("=== Outbreak Forecast Artifact Validation ===")
	fmt.Println()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	locations, err := model.LoadLocations(locationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load locations: %v\n", err)
		return 1
	}
	rows, skipped, err := loadHistory(ctx, historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	index := domain.BuildHistoricalIndex(rows)

	loader := model.FileLoader{Path: modelPath}
	phases := []*phase{
		validateArtifact(ctx, loader),
		validateLocations(locations),
		validateHistory(index, historyPath, len(rows), skipped, strict),
		validateForecasts(ctx, loader, history.Static(rows), locations, horizon, logger),
		validateScenarios(ctx, loader, locations, logger),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Locations: %d (table %s), history rows: %d used, %d skipped, months covered: %d/12\n",
		len(locations.Codes()), locations.Version(), index.Rows(), skipped, index.Coverage())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateArtifact(ctx context.Context, loader model.ClassifierLoader) *phase {
	p := &phase{name: "Model artifact matches feature schema"}

	clf, err := loader.LoadClassifier(ctx)
	if err != nil {
		p.errorf("load: %v", err)
		return p
	}
	info := clf.Info()
	schema, err := domain.SchemaByVersion(info.SchemaVersion)
	if err != nil {
		p.errorf("schema: %v", err)
		return p
	}
	if err := schema.Check(info.Features); err != nil {
		p.errorf("feature order: %v", err)
	}
	fmt.Printf("Model: %s %s (schema %s, %d features)\n", info.Kind, info.Version, info.SchemaVersion, len(info.Features))
	return p
}

func validateLocations(locations *domain.LocationTable) *phase {
	p := &phase{name: "Location codes are contiguous"}
	for i, code := range locations.Codes() {
		if int(code) != i {
			p.errorf("code %d at position %d; encoder expects 0..n-1", code, i)
		}
	}
	return p
}

func loadHistory(ctx context.Context, path string) ([]domain.DatedReading, int, error) {
	if path == "" {
		return nil, 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	rows, skipped, err := history.ParseCSV(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("parse history: %w", err)
	}
	return rows, skipped, nil
}

func validateHistory(index *domain.HistoricalClimateIndex, path string, rows, skipped int, strict bool) *phase {
	p := &phase{name: "Climate history coverage"}
	if path == "" {
		fmt.Println("History: none given, weeks past the first use the fallback reading")
		return p
	}
	if rows == 0 {
		p.errorf("no usable rows; every week past the first would use the fallback reading")
		return p
	}
	if index.Rows() < rows {
		fmt.Printf("History: %d of %d rows outside the plausibility bounds\n", rows-index.Rows(), rows)
	}
	if skipped > 0 {
		fmt.Printf("History: %d malformed rows skipped\n", skipped)
	}
	if !strict {
		return p
	}
	for m := time.January; m <= time.December; m++ {
		if _, ok := index.Month(m); !ok {
			p.errorf("no history for %s", m)
		}
	}
	return p
}

func validateForecasts(ctx context.Context, loader model.ClassifierLoader, hist history.Source, locations *domain.LocationTable, horizon int, logger *slog.Logger) *phase {
	p := &phase{name: "Forecast smoke test for every location"}

	handle := model.NewHandle(loader, hist, locations, logger, observability.NewMetricsForTesting())
	if _, err := handle.Reload(ctx); err != nil {
		p.errorf("build bundle: %v", err)
		return p
	}
	engine := forecast.NewEngine(handle, horizon, logger, observability.NewMetricsForTesting())

	for _, code := range locations.Codes() {
		name, _ := locations.Name(code)
		wf, err := engine.Forecast(ctx, code, smokeReading, smokeDate)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if len(wf) != horizon {
			p.errorf("%s: %d weeks, want %d", name, len(wf), horizon)
		}
		for i, w := range wf {
			if math.IsNaN(w.Probability) || w.Probability < 0 || w.Probability > 1 {
				p.errorf("%s week %d: probability %v outside [0,1]", name, i, w.Probability)
			}
			if w.Risk != domain.RiskLevelFor(w.Probability) {
				p.errorf("%s week %d: risk %s does not match probability %.3f", name, i, w.Risk, w.Probability)
			}
		}
		if len(wf) > 0 {
			fmt.Printf("  %-24s week 0 %-8s p=%.3f\n", name, wf[0].Risk, wf[0].Probability)
		}
	}
	return p
}

// acceptance lists readings whose week-0 risk any deployable model must agree
// with.
var acceptance = []struct {
	location string
	date     time.Time
	reading  domain.ClimateReading
	want     domain.RiskLevel
}{
	{"Zone II", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), domain.ClimateReading{Temperature: 30, Humidity: 80, Rainfall: 150}, domain.RiskHigh},
	{"Zone II", time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), domain.ClimateReading{Temperature: 24, Humidity: 50, Rainfall: 10}, domain.RiskLow},
}

func validateScenarios(ctx context.Context, loader model.ClassifierLoader, locations *domain.LocationTable, logger *slog.Logger) *phase {
	p := &phase{name: "Acceptance scenarios"}

	handle := model.NewHandle(loader, history.Static{}, locations, logger, observability.NewMetricsForTesting())
	if _, err := handle.Reload(ctx); err != nil {
		p.errorf("build bundle: %v", err)
		return p
	}
	engine := forecast.NewEngine(handle, 1, logger, observability.NewMetricsForTesting())

	for _, sc := range acceptance {
		code, err := locations.Code(sc.location)
		if err != nil {
			p.errorf("%s: %v", sc.location, err)
			continue
		}
		wf, err := engine.Forecast(ctx, code, sc.reading, sc.date)
		if err != nil {
			p.errorf("%s %s: %v", sc.location, sc.date.Format(time.DateOnly), err)
			continue
		}
		if got := wf[0].Risk; got != sc.want {
			p.errorf("%s %s %+v: risk %s (p=%.3f), want %s",
				sc.location, sc.date.Format(time.DateOnly), sc.reading, got, wf[0].Probability, sc.want)
		}
	}
	return p
}
