// Package history loads the historical climate series the forecast engine
// averages into its monthly index.
package history

import (
	"context"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

// Source returns a historical climate series. Rows need not be sorted.
type Source interface {
	Load(ctx context.Context) ([]domain.DatedReading, error)
}

// Static is an in-memory Source.
type Static []domain.DatedReading

// Load returns a copy of the rows.
func (s Static) Load(_ context.Context) ([]domain.DatedReading, error) {
	out := make([]domain.DatedReading, len(s))
	copy(out, s)
	return out, nil
}
