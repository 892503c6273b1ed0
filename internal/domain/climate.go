package domain

import (
	"math"
	"time"
)

// ClimateSource tags where a forecast week's reading came from.
type ClimateSource string

const (
	SourceCurrent    ClimateSource = "current"
	SourceHistorical ClimateSource = "historical_average"
	SourceFallback   ClimateSource = "fallback"
)

// DefaultReading substitutes for a month the historical index does not cover.
var DefaultReading = ClimateReading{Temperature: 28, Humidity: 75, Rainfall: 100}

// Rows outside these bounds are treated as sensor noise when building the
// historical index.
const (
	historyMinRainfall    = 0.0
	historyMaxRainfall    = 500.0
	historyMinTemperature = 20.0
	historyMaxTemperature = 35.0
	historyMinHumidity    = 40.0
	historyMaxHumidity    = 100.0
)

// HistoricalClimateIndex maps calendar month to the average reading for that
// month. It is immutable after construction.
type HistoricalClimateIndex struct {
	months [13]ClimateReading
	has    [13]bool
	rows   int
}

// BuildHistoricalIndex averages each field per calendar month over the rows
// that pass the plausibility filter. Means are rounded to two decimals.
func BuildHistoricalIndex(rows []DatedReading) *HistoricalClimateIndex {
	var (
		sum   [13]ClimateReading
		count [13]int
	)
	idx := &HistoricalClimateIndex{}

	for _, row := range rows {
		if row.Date.IsZero() || !plausibleHistoryRow(row.Reading) {
			continue
		}
		m := int(row.Date.Month())
		sum[m].Temperature += row.Reading.Temperature
		sum[m].Humidity += row.Reading.Humidity
		sum[m].Rainfall += row.Reading.Rainfall
		count[m]++
		idx.rows++
	}

	for m := 1; m <= 12; m++ {
		if count[m] == 0 {
			continue
		}
		n := float64(count[m])
		idx.months[m] = ClimateReading{
			Temperature: round2(sum[m].Temperature / n),
			Humidity:    round2(sum[m].Humidity / n),
			Rainfall:    round2(sum[m].Rainfall / n),
		}
		idx.has[m] = true
	}
	return idx
}

func plausibleHistoryRow(r ClimateReading) bool {
	return finite(r.Temperature) && finite(r.Humidity) && finite(r.Rainfall) &&
		r.Rainfall >= historyMinRainfall && r.Rainfall <= historyMaxRainfall &&
		r.Temperature >= historyMinTemperature && r.Temperature <= historyMaxTemperature &&
		r.Humidity >= historyMinHumidity && r.Humidity <= historyMaxHumidity
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Month returns the average reading for a calendar month.
func (idx *HistoricalClimateIndex) Month(m time.Month) (ClimateReading, bool) {
	if idx == nil || m < time.January || m > time.December {
		return ClimateReading{}, false
	}
	return idx.months[m], idx.has[m]
}

// Coverage returns the number of months with data.
func (idx *HistoricalClimateIndex) Coverage() int {
	if idx == nil {
		return 0
	}
	n := 0
	for m := 1; m <= 12; m++ {
		if idx.has[m] {
			n++
		}
	}
	return n
}

// Rows returns how many input rows contributed to the averages.
func (idx *HistoricalClimateIndex) Rows() int {
	if idx == nil {
		return 0
	}
	return idx.rows
}

// ResolvedClimate is one week's reading and its provenance.
type ResolvedClimate struct {
	Reading ClimateReading
	Source  ClimateSource
}

// ClimateResolver picks the reading for each forecast week: the caller's
// reading for week 0 and the monthly historical average afterwards.
type ClimateResolver struct {
	Index *HistoricalClimateIndex
}

// Resolve returns exactly horizon entries. Week i uses the month of
// start + 7i days.
func (c ClimateResolver) Resolve(horizon int, start time.Time, current ClimateReading) []ResolvedClimate {
	if horizon <= 0 {
		return nil
	}
	out := make([]ResolvedClimate, horizon)
	out[0] = ResolvedClimate{Reading: current, Source: SourceCurrent}
	for i := 1; i < horizon; i++ {
		month := WeekStart(start, i).Month()
		if r, ok := c.Index.Month(month); ok {
			out[i] = ResolvedClimate{Reading: r, Source: SourceHistorical}
			continue
		}
		out[i] = ResolvedClimate{Reading: DefaultReading, Source: SourceFallback}
	}
	return out
}

// WeekStart returns the first day of week i of a forecast starting at start.
func WeekStart(start time.Time, i int) time.Time {
	return CalendarDay(start).AddDate(0, 0, 7*i)
}

// ReadingFor returns the monthly average for t's month, or DefaultReading
// when the month has no history.
func (idx *HistoricalClimateIndex) ReadingFor(t time.Time) ClimateReading {
	if r, ok := idx.Month(t.Month()); ok {
		return r
	}
	return DefaultReading
}
