package domain

import "time"

// PlaceholderProbability is reported for a location that could not be
// forecast. It maps to RiskModerate.
const PlaceholderProbability = 0.45

// ForecastWeek is one week of a location's forecast.
type ForecastWeek struct {
	WeekLabel     string         `json:"week_label"`
	StartDate     string         `json:"start_date"`
	Risk          RiskLevel      `json:"risk"`
	Probability   float64        `json:"probability"`
	ClimateUsed   ClimateReading `json:"climate_used"`
	ClimateSource ClimateSource  `json:"climate_source"`
}

// WeeklyForecast is the ordered per-week forecast for one location.
type WeeklyForecast []ForecastWeek

// Clone returns a deep copy.
func (f WeeklyForecast) Clone() WeeklyForecast {
	if f == nil {
		return nil
	}
	out := make(WeeklyForecast, len(f))
	copy(out, f)
	return out
}

// NewForecastWeek builds a week entry for week i of a forecast starting at
// start. The risk level is always derived from the clamped probability.
func NewForecastWeek(start time.Time, i int, p float64, rc ResolvedClimate) ForecastWeek {
	ws := WeekStart(start, i)
	p = ClampProbability(p)
	return ForecastWeek{
		WeekLabel:     WeekLabel(ws),
		StartDate:     ws.Format(time.DateOnly),
		Risk:          RiskLevelFor(p),
		Probability:   p,
		ClimateUsed:   rc.Reading,
		ClimateSource: rc.Source,
	}
}

// Placeholder is the single-week conservative forecast substituted for a
// location whose live forecast failed.
func Placeholder(start time.Time, current ClimateReading) WeeklyForecast {
	return WeeklyForecast{
		NewForecastWeek(start, 0, PlaceholderProbability, ResolvedClimate{Reading: current, Source: SourceFallback}),
	}
}

// WeekLabel formats the seven-day range beginning at start, e.g.
// "January 25–31" or "January 29 – February 04".
func WeekLabel(start time.Time) string {
	end := start.AddDate(0, 0, 6)
	if start.Month() == end.Month() {
		return start.Format("January 02") + "–" + end.Format("02")
	}
	return start.Format("January 02") + " – " + end.Format("January 02")
}
