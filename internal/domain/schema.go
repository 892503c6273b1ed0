package domain

import (
	"fmt"
	"slices"
)

// Feature names. Training and serving both read the order from a
// FeatureSchema; nothing else may list these in sequence.
const (
	FeatRainfall                        = "rainfall"
	FeatTemperature                     = "temperature"
	FeatHumidity                        = "humidity"
	FeatLocationCode                    = "location_code"
	FeatMonth                           = "month"
	FeatQuarter                         = "quarter"
	FeatDayOfYear                       = "day_of_year"
	FeatMonthSin                        = "month_sin"
	FeatMonthCos                        = "month_cos"
	FeatDayOfYearSin                    = "day_of_year_sin"
	FeatDayOfYearCos                    = "day_of_year_cos"
	FeatTempRainfallInteraction         = "temp_rainfall_interaction"
	FeatTempHumidityInteraction         = "temp_humidity_interaction"
	FeatRainfallHumidityInteraction     = "rainfall_humidity_interaction"
	FeatTempRainfallHumidityInteraction = "temp_rainfall_humidity_interaction"
	FeatRainfallSquared                 = "rainfall_squared"
	FeatTemperatureSquared              = "temperature_squared"
	FeatHumiditySquared                 = "humidity_squared"
	FeatRainfallSqrt                    = "rainfall_sqrt"
	FeatTemperatureSqrt                 = "temperature_sqrt"
	FeatRainfallTempRatio               = "rainfall_temp_ratio"
	FeatHumidityTempRatio               = "humidity_temp_ratio"
	FeatRainfallHumidityRatio           = "rainfall_humidity_ratio"
	FeatBreedingIndex                   = "mosquito_breeding_index"
	FeatRiskIndex                       = "dengue_risk_index"
	FeatRainySeason                     = "is_rainy_season"
	FeatDrySeason                       = "is_dry_season"
	FeatPeakSeason                      = "is_peak_season"
	FeatTempOptimal                     = "temp_optimal"
	FeatTempHigh                        = "temp_high"
	FeatTempLow                         = "temp_low"
	FeatHumidityOptimal                 = "humidity_optimal"
	FeatHumidityHigh                    = "humidity_high"
	FeatHumidityLow                     = "humidity_low"
	FeatRainfallHigh                    = "rainfall_high"
	FeatRainfallModerate                = "rainfall_moderate"
	FeatRainfallLow                     = "rainfall_low"
	FeatHighRiskCombination             = "high_risk_combination"
	FeatLocationTempInteraction         = "location_temp_interaction"
	FeatLocationRainfallInteraction     = "location_rainfall_interaction"
	FeatLocationHumidityInteraction     = "location_humidity_interaction"
)

// FeatureSchema is an ordered, versioned list of feature names.
type FeatureSchema struct {
	Version string
	Names   []string
}

var schemaV1 = FeatureSchema{
	Version: "v1",
	Names: []string{
		FeatRainfall, FeatTemperature, FeatHumidity, FeatLocationCode,
		FeatMonth, FeatQuarter, FeatDayOfYear,
		FeatMonthSin, FeatMonthCos, FeatDayOfYearSin, FeatDayOfYearCos,
		FeatTempRainfallInteraction, FeatTempHumidityInteraction,
		FeatRainfallHumidityInteraction, FeatTempRainfallHumidityInteraction,
		FeatRainfallSquared, FeatTemperatureSquared, FeatHumiditySquared,
		FeatRainfallSqrt, FeatTemperatureSqrt,
		FeatRainfallTempRatio, FeatHumidityTempRatio, FeatRainfallHumidityRatio,
		FeatBreedingIndex, FeatRiskIndex,
		FeatRainySeason, FeatDrySeason, FeatPeakSeason,
		FeatTempOptimal, FeatTempHigh, FeatTempLow,
		FeatHumidityOptimal, FeatHumidityHigh, FeatHumidityLow,
		FeatRainfallHigh, FeatRainfallModerate, FeatRainfallLow,
		FeatHighRiskCombination,
	},
}

// v2 adds per-location climate interactions.
var schemaV2 = FeatureSchema{
	Version: "v2",
	Names: append(slices.Clone(schemaV1.Names),
		FeatLocationTempInteraction,
		FeatLocationRainfallInteraction,
		FeatLocationHumidityInteraction,
	),
}

var schemas = map[string]FeatureSchema{
	schemaV1.Version: schemaV1,
	schemaV2.Version: schemaV2,
}

// DefaultSchemaVersion is used when a model artifact does not declare one.
const DefaultSchemaVersion = "v1"

// SchemaByVersion returns a copy of a registered schema.
func SchemaByVersion(version string) (FeatureSchema, error) {
	s, ok := schemas[version]
	if !ok {
		return FeatureSchema{}, &SchemaMismatchError{Reason: fmt.Sprintf("unknown schema version %q", version)}
	}
	return FeatureSchema{Version: s.Version, Names: slices.Clone(s.Names)}, nil
}

// Len returns the number of features.
func (s FeatureSchema) Len() int { return len(s.Names) }

// Check verifies that names is exactly the schema's order. Truncation,
// reordering and extras are all mismatches.
func (s FeatureSchema) Check(names []string) error {
	if !slices.Equal(s.Names, names) {
		return &SchemaMismatchError{Expected: s.Names, Got: names}
	}
	return nil
}
