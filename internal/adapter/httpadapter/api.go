package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
	"github.com/couchcryptid/outbreak-forecast/internal/forecast"
	"github.com/couchcryptid/outbreak-forecast/internal/model"
)

// ModelHandle is the model lifecycle the API reads from and reloads.
type ModelHandle interface {
	Current() *model.Bundle
	Reload(ctx context.Context) (*model.Bundle, error)
	Health(ctx context.Context) model.Health
}

// Forecaster produces forecasts for known locations.
type Forecaster interface {
	Forecast(ctx context.Context, code domain.LocationCode, reading domain.ClimateReading, start time.Time) (domain.WeeklyForecast, forecast.Outcome, error)
	ForecastAll(ctx context.Context, codes []domain.LocationCode, reading domain.ClimateReading, start time.Time) (forecast.Result, error)
	Locations() *domain.LocationTable
}

// API serves the /v1 forecast endpoints.
type API struct {
	models       ModelHandle
	forecasts    Forecaster
	validate     *validator.Validate
	batchTimeout time.Duration
	logger       *slog.Logger
}

// NewAPI creates the /v1 handler set. batchTimeout bounds a batch request;
// locations unfinished at the deadline are served their fallback.
func NewAPI(models ModelHandle, forecasts Forecaster, batchTimeout time.Duration, logger *slog.Logger) *API {
	return &API{
		models:       models,
		forecasts:    forecasts,
		validate:     newValidator(),
		batchTimeout: batchTimeout,
		logger:       logger,
	}
}

// RegisterRoutes mounts the API onto r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Get("/locations", a.handleLocations)
	r.Get("/model/info", a.handleModelInfo)
	r.Post("/model/reload", a.handleReload)
	r.Post("/forecast", a.handleForecast)
	r.Post("/forecast/batch", a.handleBatch)
	r.Get("/forecast/weekly/{location}", a.handleWeekly)
}

type forecastRequest struct {
	Location string                 `json:"location" validate:"required"`
	Climate  *domain.ClimateReading `json:"climate" validate:"required"`
	Date     string                 `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type forecastResponse struct {
	Location       string                `json:"location"`
	Outcome        forecast.Outcome      `json:"outcome"`
	WeeklyForecast domain.WeeklyForecast `json:"weekly_forecast"`
}

type batchRequest struct {
	Locations []string               `json:"locations" validate:"dive,required"`
	Climate   *domain.ClimateReading `json:"climate"`
	Date      string                 `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type weeklyResponse struct {
	Location          string                      `json:"location"`
	WeeklyPredictions map[string]domain.RiskLevel `json:"weekly_predictions"`
}

type modelInfoResponse struct {
	domain.ModelInfo
	LoadedAt         time.Time `json:"loaded_at"`
	LocationsVersion string    `json:"locations_version"`
	ClimateMonths    int       `json:"climate_months"`
}

type reloadResponse struct {
	Status        string    `json:"status"`
	ModelVersion  string    `json:"model_version"`
	SchemaVersion string    `json:"schema_version"`
	LoadedAt      time.Time `json:"loaded_at"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.models.Health(r.Context()))
}

func (a *API) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"locations": a.forecasts.Locations().Names()})
}

func (a *API) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	b := a.models.Current()
	if b == nil {
		writeError(w, r, a.logger, model.ErrNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, modelInfoResponse{
		ModelInfo:        b.Info,
		LoadedAt:         b.LoadedAt,
		LocationsVersion: b.Locations.Version(),
		ClimateMonths:    b.Index.Coverage(),
	})
}

// handleReload keeps serving the previous bundle when the reload fails.
func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	b, err := a.models.Reload(r.Context())
	if err != nil {
		a.logger.Error("model reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "model reload failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{
		Status:        "reloaded",
		ModelVersion:  b.Info.Version,
		SchemaVersion: b.Schema.Version,
		LoadedAt:      b.LoadedAt,
	})
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := decodeJSON(w, r, a.validate, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	start, err := startDate(req.Date)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	locs := a.forecasts.Locations()
	code, err := locs.Code(req.Location)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	wf, outcome, err := a.forecasts.Forecast(r.Context(), code, *req.Climate, start)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	name, _ := locs.Name(code)
	writeJSON(w, http.StatusOK, forecastResponse{Location: name, Outcome: outcome, WeeklyForecast: wf})
}

func (a *API) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, a.validate, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	start, err := startDate(req.Date)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	locs := a.forecasts.Locations()
	codes, err := locs.Resolve(req.Locations)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	reading := a.defaultReading(start)
	if req.Climate != nil {
		reading = *req.Climate
	}

	ctx := r.Context()
	if a.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.batchTimeout)
		defer cancel()
	}
	res, err := a.forecasts.ForecastAll(ctx, codes, reading, start)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	out := domain.BatchForecast{
		BatchID:     uuid.NewString(),
		GeneratedAt: domain.Now(),
		Date:        start.Format(time.DateOnly),
		Predictions: make(map[string]domain.WeeklyForecast, len(res.Forecasts)),
	}
	for code, wf := range res.Forecasts {
		name, _ := locs.Name(code)
		out.Predictions[name] = wf
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWeekly serves a query-string forecast. Climate fields left out are
// filled from the historical average for the current month.
func (a *API) handleWeekly(w http.ResponseWriter, r *http.Request) {
	locs := a.forecasts.Locations()
	code, err := locs.Code(chi.URLParam(r, "location"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	q := r.URL.Query()
	start, err := startDate(q.Get("start_date"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	reading, err := a.weeklyReading(q)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	wf, _, err := a.forecasts.Forecast(r.Context(), code, reading, start)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	resp := weeklyResponse{WeeklyPredictions: make(map[string]domain.RiskLevel, len(wf))}
	resp.Location, _ = locs.Name(code)
	for _, week := range wf {
		resp.WeeklyPredictions[week.StartDate] = week.Risk
	}
	writeJSON(w, http.StatusOK, resp)
}

// weeklyReading overlays the query's climate fields on this month's
// historical average.
func (a *API) weeklyReading(q url.Values) (domain.ClimateReading, error) {
	reading := a.defaultReading(domain.Today())
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"temperature", &reading.Temperature},
		{"humidity", &reading.Humidity},
		{"rainfall", &reading.Rainfall},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.ClimateReading{}, &domain.InvalidInputError{Field: p.name, Reason: "must be a number"}
		}
		*p.dst = v
	}
	return reading, nil
}

func (a *API) defaultReading(t time.Time) domain.ClimateReading {
	if b := a.models.Current(); b != nil {
		return b.Index.ReadingFor(t)
	}
	return domain.DefaultReading
}

// startDate parses a YYYY-MM-DD date, defaulting to today.
func startDate(s string) (time.Time, error) {
	if s == "" {
		return domain.Today(), nil
	}
	return domain.ParseDate(s)
}
