package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ForecastRequest is the JSON body of a streamed batch forecast request. An
// empty Locations list selects every supported location, a nil Climate means
// the historical average for the start month, and an empty Date means today.
type ForecastRequest struct {
	Locations []string        `json:"locations"`
	Climate   *ClimateReading `json:"climate,omitempty"`
	Date      string          `json:"date,omitempty"`
}

// BatchForecast is the published result of a batch request, keyed by
// canonical location name.
type BatchForecast struct {
	BatchID     string                    `json:"batch_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Date        string                    `json:"date"`
	Predictions map[string]WeeklyForecast `json:"predictions"`
}
