package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/outbreak-forecast/internal/domain"
)

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// CSVSource reads a CSV file with a header row naming at least the columns
// date, rainfall, temperature and humidity. Extra columns are ignored and rows
// with an unparseable field are skipped.
type CSVSource struct {
	path   string
	logger *slog.Logger
}

// NewCSVSource creates a CSVSource for path.
func NewCSVSource(path string, logger *slog.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger}
}

// Load reads the file. A missing file yields an empty series and a warning,
// so the service can start with default climate.
func (s *CSVSource) Load(ctx context.Context) ([]domain.DatedReading, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("climate history file not found, historical weeks will use defaults", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open climate history: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, skipped, err := ParseCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read climate history %s: %w", s.path, err)
	}
	s.logger.Info("climate history loaded", "path", s.path, "rows", len(rows), "skipped", skipped)
	return rows, nil
}

// ParseCSV decodes a climate series and returns the parsed rows along with
// the number of rows skipped as malformed.
func ParseCSV(ctx context.Context, r io.Reader) ([]domain.DatedReading, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, 0, err
	}

	var (
		rows    []domain.DatedReading
		skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		row, ok := parseRow(rec, cols)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

type columns struct {
	date, rainfall, temperature, humidity int
}

func columnIndex(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date":
			c.date = i
		case "rainfall":
			c.rainfall = i
		case "temperature":
			c.temperature = i
		case "humidity":
			c.humidity = i
		}
	}
	if c.date < 0 || c.rainfall < 0 || c.temperature < 0 || c.humidity < 0 {
		return c, errors.New("header must include date, rainfall, temperature and humidity")
	}
	return c, nil
}

func parseRow(rec []string, c columns) (domain.DatedReading, bool) {
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, ok := parseDate(field(c.date))
	if !ok {
		return domain.DatedReading{}, false
	}
	rain, err1 := strconv.ParseFloat(field(c.rainfall), 64)
	temp, err2 := strconv.ParseFloat(field(c.temperature), 64)
	hum, err3 := strconv.ParseFloat(field(c.humidity), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.DatedReading{}, false
	}
	return domain.DatedReading{
		Date:    date,
		Reading: domain.ClimateReading{Temperature: temp, Humidity: hum, Rainfall: rain},
	}, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
