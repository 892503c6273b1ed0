package domain

import (
	"fmt"
	"math"
	"time"
)

// Band boundaries and composite-index constants. These must match the values
// used when the classifier was fitted.
const (
	featureEpsilon = 1e-6

	tempOptimalLow      = 25.0
	tempOptimalHigh     = 30.0
	humidityOptimalLow  = 60.0
	humidityOptimalHigh = 80.0
	rainfallModerateLow = 50.0
	rainfallHighAbove   = 100.0

	breedingBaseTemp     = 20.0
	riskIndexTempScale   = 30.0
	riskIndexHumidScale  = 80.0
	riskIndexRainDivisor = 10.0
)

// FeatureVector is the ordered numeric input to a classifier. Names and Values
// always have the schema's length and order.
type FeatureVector struct {
	SchemaVersion string
	Names         []string
	Values        []float64
}

// Len returns the number of features.
func (v FeatureVector) Len() int { return len(v.Values) }

// Get returns a feature value by name.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// FeatureEngineer turns a reading, a date and a location code into a
// FeatureVector ordered by Schema.
type FeatureEngineer struct {
	Schema    FeatureSchema
	Locations *LocationTable
}

// NewFeatureEngineer checks that every schema feature can be computed.
func NewFeatureEngineer(schema FeatureSchema, locations *LocationTable) (*FeatureEngineer, error) {
	for _, name := range schema.Names {
		if _, ok := featureFuncs[name]; !ok {
			return nil, &SchemaMismatchError{Reason: fmt.Sprintf("schema %s names unsupported feature %q", schema.Version, name)}
		}
	}
	return &FeatureEngineer{Schema: schema, Locations: locations}, nil
}

// Build computes the feature vector. It has no side effects.
func (e *FeatureEngineer) Build(r ClimateReading, date time.Time, code LocationCode) (FeatureVector, error) {
	if err := r.Validate(); err != nil {
		return FeatureVector{}, err
	}
	if err := ValidateDate(date); err != nil {
		return FeatureVector{}, err
	}
	if e.Locations == nil || !e.Locations.Contains(code) {
		return FeatureVector{}, &UnknownLocationError{Location: fmt.Sprint(int(code))}
	}

	in := newFeatureInput(r, date, code)
	values := make([]float64, len(e.Schema.Names))
	for i, name := range e.Schema.Names {
		fn, ok := featureFuncs[name]
		if !ok {
			return FeatureVector{}, &SchemaMismatchError{Reason: fmt.Sprintf("unsupported feature %q", name)}
		}
		values[i] = fn(in)
	}

	names := make([]string, len(e.Schema.Names))
	copy(names, e.Schema.Names)
	return FeatureVector{SchemaVersion: e.Schema.Version, Names: names, Values: values}, nil
}

type featureInput struct {
	t, h, r   float64
	loc       float64
	month     int
	dayOfYear int
}

func newFeatureInput(r ClimateReading, date time.Time, code LocationCode) featureInput {
	return featureInput{
		t:         r.Temperature,
		h:         r.Humidity,
		r:         r.Rainfall,
		loc:       float64(code),
		month:     int(date.Month()),
		dayOfYear: date.YearDay(),
	}
}

type featureFunc func(featureInput) float64

var featureFuncs = map[string]featureFunc{
	FeatRainfall:     func(in featureInput) float64 { return in.r },
	FeatTemperature:  func(in featureInput) float64 { return in.t },
	FeatHumidity:     func(in featureInput) float64 { return in.h },
	FeatLocationCode: func(in featureInput) float64 { return in.loc },

	// Temporal
	FeatMonth:     func(in featureInput) float64 { return float64(in.month) },
	FeatQuarter:   func(in featureInput) float64 { return float64(in.dayOfYear/91 + 1) },
	FeatDayOfYear: func(in featureInput) float64 { return float64(in.dayOfYear) },
	FeatMonthSin:  func(in featureInput) float64 { return math.Sin(2 * math.Pi * float64(in.month) / 12) },
	FeatMonthCos:  func(in featureInput) float64 { return math.Cos(2 * math.Pi * float64(in.month) / 12) },
	FeatDayOfYearSin: func(in featureInput) float64 {
		return math.Sin(2 * math.Pi * float64(in.dayOfYear) / 365)
	},
	FeatDayOfYearCos: func(in featureInput) float64 {
		return math.Cos(2 * math.Pi * float64(in.dayOfYear) / 365)
	},

	// Interaction
	FeatTempRainfallInteraction:         func(in featureInput) float64 { return in.t * in.r },
	FeatTempHumidityInteraction:         func(in featureInput) float64 { return in.t * in.h },
	FeatRainfallHumidityInteraction:     func(in featureInput) float64 { return in.r * in.h },
	FeatTempRainfallHumidityInteraction: func(in featureInput) float64 { return in.t * in.r * in.h },

	// Polynomial
	FeatRainfallSquared:    func(in featureInput) float64 { return in.r * in.r },
	FeatTemperatureSquared: func(in featureInput) float64 { return in.t * in.t },
	FeatHumiditySquared:    func(in featureInput) float64 { return in.h * in.h },
	FeatRainfallSqrt:       func(in featureInput) float64 { return math.Sqrt(in.r + featureEpsilon) },
	FeatTemperatureSqrt:    func(in featureInput) float64 { return math.Sqrt(in.t + featureEpsilon) },

	// Ratio
	FeatRainfallTempRatio:     func(in featureInput) float64 { return safeRatio(in.r, in.t) },
	FeatHumidityTempRatio:     func(in featureInput) float64 { return safeRatio(in.h, in.t) },
	FeatRainfallHumidityRatio: func(in featureInput) float64 { return safeRatio(in.r, in.h) },

	// Composite indices
	FeatBreedingIndex: func(in featureInput) float64 {
		return (in.t - breedingBaseTemp) * (in.h / 100) * (in.r / 100)
	},
	FeatRiskIndex: func(in featureInput) float64 {
		return (in.t / riskIndexTempScale) * (in.h / riskIndexHumidScale) * math.Log1p(in.r/riskIndexRainDivisor)
	},

	// Seasonal
	FeatRainySeason: func(in featureInput) float64 { return flag(in.month >= 6 && in.month <= 11) },
	FeatDrySeason:   func(in featureInput) float64 { return flag(in.month == 12 || in.month <= 5) },
	FeatPeakSeason:  func(in featureInput) float64 { return flag(in.month >= 7 && in.month <= 9) },

	// Bands
	FeatTempOptimal:      func(in featureInput) float64 { return flag(tempOptimal(in.t)) },
	FeatTempHigh:         func(in featureInput) float64 { return flag(in.t > tempOptimalHigh) },
	FeatTempLow:          func(in featureInput) float64 { return flag(in.t < tempOptimalLow) },
	FeatHumidityOptimal:  func(in featureInput) float64 { return flag(humidityOptimal(in.h)) },
	FeatHumidityHigh:     func(in featureInput) float64 { return flag(in.h > humidityOptimalHigh) },
	FeatHumidityLow:      func(in featureInput) float64 { return flag(in.h < humidityOptimalLow) },
	FeatRainfallHigh:     func(in featureInput) float64 { return flag(in.r > rainfallHighAbove) },
	FeatRainfallModerate: func(in featureInput) float64 { return flag(in.r >= rainfallModerateLow && in.r <= rainfallHighAbove) },
	FeatRainfallLow:      func(in featureInput) float64 { return flag(in.r < rainfallModerateLow) },
	FeatHighRiskCombination: func(in featureInput) float64 {
		return flag(tempOptimal(in.t) && humidityOptimal(in.h) && in.r > rainfallHighAbove)
	},

	// Location interactions (schema v2)
	FeatLocationTempInteraction:     func(in featureInput) float64 { return in.loc * in.t },
	FeatLocationRainfallInteraction: func(in featureInput) float64 { return in.loc * in.r },
	FeatLocationHumidityInteraction: func(in featureInput) float64 { return in.loc * in.h },
}

func tempOptimal(t float64) bool {
	return t >= tempOptimalLow && t <= tempOptimalHigh
}

func humidityOptimal(h float64) bool {
	return h >= humidityOptimalLow && h <= humidityOptimalHigh
}

// safeRatio divides by den+ε, substituting ε when the shifted denominator is
// still near zero.
func safeRatio(num, den float64) float64 {
	d := den + featureEpsilon
	if math.Abs(d) < featureEpsilon {
		d = featureEpsilon
	}
	return num / d
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
