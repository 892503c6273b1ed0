package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

const selectClimateSQL = `
    SELECT observed_on, rainfall, temperature, humidity
    FROM climate_observations
    WHERE rainfall IS NOT NULL AND temperature IS NOT NULL AND humidity IS NOT NULL
    ORDER BY observed_on
`

// PostgresSource reads the climate series from a climate_observations table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects a pgx pool to databaseURL.
func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect climate database: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

// Close releases the pool resources.
func (s *PostgresSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load queries every observation.
func (s *PostgresSource) Load(ctx context.Context) ([]domain.DatedReading, error) {
	rows, err := s.pool.Query(ctx, selectClimateSQL)
	if err != nil {
		return nil, fmt.Errorf("query climate observations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DatedReading, 0)
	for rows.Next() {
		var (
			observed time.Time
			r        domain.ClimateReading
		)
		if err := rows.Scan(&observed, &r.Rainfall, &r.Temperature, &r.Humidity); err != nil {
			return nil, fmt.Errorf("scan climate observation: %w", err)
		}
		out = append(out, domain.DatedReading{Date: observed.UTC(), Reading: r})
	}
	return out, rows.Err()
}
