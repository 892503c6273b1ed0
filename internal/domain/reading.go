package domain

import (
	"math"
	"time"
)

// Serving range accepted for a caller-supplied reading.
const (
	MinTemperature = 0.0
	MaxTemperature = 50.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// ClimateReading is a single weekly climate observation.
type ClimateReading struct {
	Temperature float64 `json:"temperature"` // °C
	Humidity    float64 `json:"humidity"`    // %
	Rainfall    float64 `json:"rainfall"`    // mm
}

// DatedReading is one row of a historical climate series.
type DatedReading struct {
	Date    time.Time
	Reading ClimateReading
}

// Validate checks the reading against the serving range. It returns an
// *InvalidInputError naming the first offending field.
func (r ClimateReading) Validate() error {
	switch {
	case !finite(r.Temperature):
		return &InvalidInputError{Field: "temperature", Reason: "must be a finite number"}
	case !finite(r.Humidity):
		return &InvalidInputError{Field: "humidity", Reason: "must be a finite number"}
	case !finite(r.Rainfall):
		return &InvalidInputError{Field: "rainfall", Reason: "must be a finite number"}
	case r.Temperature < MinTemperature || r.Temperature > MaxTemperature:
		return &InvalidInputError{Field: "temperature", Reason: "must be between 0 and 50 °C"}
	case r.Humidity < MinHumidity || r.Humidity > MaxHumidity:
		return &InvalidInputError{Field: "humidity", Reason: "must be between 0 and 100 %"}
	case r.Rainfall < 0:
		return &InvalidInputError{Field: "rainfall", Reason: "cannot be negative"}
	}
	return nil
}

// ValidateDate rejects the zero time; every other instant names a valid
// calendar day.
func ValidateDate(t time.Time) error {
	if t.IsZero() {
		return &InvalidInputError{Field: "date", Reason: "is required"}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &InvalidInputError{Field: "date", Reason: "must use YYYY-MM-DD"}
	}
	return t, nil
}

// CalendarDay truncates t to midnight UTC of its calendar day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
