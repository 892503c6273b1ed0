package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// Client implements domain.Classifier against a remote model server. A Client
// is bound to the model version reported by Dial and is replaced, not
// refreshed, on reload.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[float64]
	info       domain.ModelInfo
	logger     *slog.Logger
}

// Dial fetches the served model's metadata and returns a client for it.
func Dial(ctx context.Context, baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
		Name:        "model-server",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var mismatch *domain.SchemaMismatchError
			return err == nil || errors.As(err, &mismatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	info, err := c.fetchInfo(ctx)
	if err != nil {
		return nil, err
	}
	c.info = info
	logger.Info("model server connected", "url", c.baseURL, "version", info.Version, "schema_version", info.SchemaVersion)
	return c, nil
}

// Info describes the served model.
func (c *Client) Info() domain.ModelInfo { return c.info }

// PredictProbability posts the vector and returns the probability. Transport
// failures, 5xx responses and an open breaker are *ClassifierUnavailableError;
// a 422 is a *SchemaMismatchError.
func (c *Client) PredictProbability(ctx context.Context, v domain.FeatureVector) (float64, error) {
	body, err := json.Marshal(predictRequest{SchemaVersion: v.SchemaVersion, Features: v.Names, Values: v.Values})
	if err != nil {
		return 0, fmt.Errorf("encode predict request: %w", err)
	}

	p, err := c.breaker.Execute(func() (float64, error) {
		return c.predict(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, &domain.ClassifierUnavailableError{Err: err}
	}
	return p, err
}

// Ping checks that the model server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) predict(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &domain.ClassifierUnavailableError{Err: fmt.Errorf("predict request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &domain.SchemaMismatchError{Reason: fmt.Sprintf("model server rejected features: %s", bytes.TrimSpace(msg))}
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &domain.ClassifierUnavailableError{Err: fmt.Errorf("model server error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, &domain.ClassifierUnavailableError{Err: fmt.Errorf("decode predict response: %w", err)}
	}
	return out.Probability, nil
}

func (c *Client) fetchInfo(ctx context.Context) (domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/model", nil)
	if err != nil {
		return domain.ModelInfo{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ModelInfo{}, &domain.ClassifierUnavailableError{Err: fmt.Errorf("model info request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.ModelInfo{}, &domain.ClassifierUnavailableError{Err: fmt.Errorf("model info: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
	}

	var info domain.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.ModelInfo{}, fmt.Errorf("decode model info: %w", err)
	}
	if info.Version == "" {
		return domain.ModelInfo{}, errors.New("model server reported no version")
	}
	return info, nil
}

// Model server wire types.

type predictRequest struct {
	SchemaVersion string    `json:"schema_version"`
	Features      []string  `json:"features"`
	Values        []float64 `json:"values"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}
