package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// RiskLevel is the ordinal outbreak risk derived from a probability.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskModerate
	RiskHigh
)

// Probability thresholds. Lower bounds are inclusive.
const (
	ModerateThreshold = 0.30
	HighThreshold     = 0.60
)

// RiskLevelFor maps a probability to a risk level. Values outside [0,1] are
// clamped and NaN is treated as 0, so every input yields a valid level.
func RiskLevelFor(p float64) RiskLevel {
	p = ClampProbability(p)
	switch {
	case p < ModerateThreshold:
		return RiskLow
	case p < HighThreshold:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// ClampProbability bounds p to [0,1].
func ClampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "Low"
	case RiskModerate:
		return "Moderate"
	case RiskHigh:
		return "High"
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

// ParseRiskLevel is the inverse of String.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "Low":
		return RiskLow, nil
	case "Moderate":
		return RiskModerate, nil
	case "High":
		return RiskHigh, nil
	}
	return 0, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the level by name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}
