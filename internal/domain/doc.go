// Package domain models weekly outbreak risk forecasting from climate
// observations.
//
// # Inputs
//
// A forecast request carries one climate reading, a start date and a location:
//
//	temperature  °C, accepted range 0–50
//	humidity     %, accepted range 0–100
//	rainfall     mm, non-negative
//
// Locations are identified by name and encoded as integers through a
// versioned [LocationTable]. Lookup is case-insensitive and tolerates the
// aliases listed in the table ("zone 2" → "Zone II").
//
// # Feature Schema
//
// A [FeatureSchema] is the single source of feature order. The
// [FeatureEngineer] computes each feature by name and assembles the vector by
// walking the schema, so the order a classifier was fitted on cannot drift
// from the order it is served. Any disagreement is a [SchemaMismatchError].
//
// Feature groups (schema v1):
//
//	raw:          rainfall, temperature, humidity, location_code
//	temporal:     month, quarter, day_of_year, sin/cos of month and day of year
//	interaction:  T·R, T·H, R·H, T·R·H
//	polynomial:   squares and √(x+1e-6)
//	ratio:        R/T, H/T, R/H with an epsilon-guarded denominator
//	composite:    breeding = (T−20)·(H/100)·(R/100)
//	              risk     = (T/30)·(H/80)·ln(1+R/10)
//	seasonal:     rainy Jun–Nov, dry Dec–May, peak Jul–Sep
//	bands:        temp 25–30 optimal, >30 high, <25 low
//	              humidity 60–80 optimal, >80 high, <60 low
//	              rainfall >100 high, 50–100 moderate, <50 low
//
// Schema v2 appends location × climate interactions.
//
// # Climate Resolution
//
// Week 0 of a forecast uses the caller's reading. Later weeks use the monthly
// average from the [HistoricalClimateIndex] for the month the week starts in.
// A month with no history uses [DefaultReading] and is tagged fallback.
//
// # Risk Levels
//
//	p < 0.30        Low
//	0.30 ≤ p < 0.60 Moderate
//	p ≥ 0.60        High
//
// Probabilities are clamped to [0,1] before mapping.
package domain
