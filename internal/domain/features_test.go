package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func newTestEngineer(t *testing.T, version string) *FeatureEngineer {
	t.Helper()
	schema, err := SchemaByVersion(version)
	require.NoError(t, err)
	fe, err := NewFeatureEngineer(schema, testLocations(t))
	require.NoError(t, err)
	return fe
}

func TestFeatureEngineer_BuildFollowsSchema(t *testing.T) {
	readings := []ClimateReading{
		{Temperature: 30, Humidity: 80, Rainfall: 150},
		{Temperature: 0, Humidity: 0, Rainfall: 0},
		{Temperature: 50, Humidity: 100, Rainfall: 900},
		{Temperature: 24.5, Humidity: 59.9, Rainfall: 49.9},
	}
	dates := []time.Time{
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		scenarioDate,
	}

	for _, version := range []string{"v1", "v2"} {
		fe := newTestEngineer(t, version)
		for _, r := range readings {
			for _, d := range dates {
				for _, code := range fe.Locations.Codes() {
					v, err := fe.Build(r, d, code)
					require.NoError(t, err)
					assert.Equal(t, fe.Schema.Len(), v.Len())
					assert.Equal(t, fe.Schema.Names, v.Names)
					assert.Equal(t, version, v.SchemaVersion)
					for i, x := range v.Values {
						assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "feature %s not finite", v.Names[i])
					}
				}
			}
		}
	}
}

func TestFeatureEngineer_SchemaLengths(t *testing.T) {
	assert.Equal(t, 38, newTestEngineer(t, "v1").Schema.Len())
	assert.Equal(t, 41, newTestEngineer(t, "v2").Schema.Len())
}

func TestFeatureEngineer_ScenarioValues(t *testing.T) {
	fe := newTestEngineer(t, "v2")
	v, err := fe.Build(ClimateReading{Temperature: 30, Humidity: 80, Rainfall: 150}, scenarioDate, 4)
	require.NoError(t, err)

	want := map[string]float64{
		FeatRainfall:                    150,
		FeatTemperature:                 30,
		FeatHumidity:                    80,
		FeatLocationCode:                4,
		FeatMonth:                       7,
		FeatQuarter:                     3,
		FeatDayOfYear:                   182,
		FeatTempRainfallInteraction:     4500,
		FeatTempHumidityInteraction:     2400,
		FeatRainfallHumidityInteraction: 12000,
		FeatRainfallSquared:             22500,
		FeatBreedingIndex:               12,
		FeatRiskIndex:                   math.Log(16),
		FeatRainySeason:                 1,
		FeatDrySeason:                   0,
		FeatPeakSeason:                  1,
		FeatTempOptimal:                 1,
		FeatTempHigh:                    0,
		FeatHumidityOptimal:             1,
		FeatHumidityHigh:                0,
		FeatRainfallHigh:                1,
		FeatRainfallModerate:            0,
		FeatHighRiskCombination:         1,
		FeatLocationTempInteraction:     120,
	}
	got := make(map[string]float64, len(want))
	for name := range want {
		x, ok := v.Get(name)
		require.True(t, ok, name)
		got[name] = x
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}

	ratio, _ := v.Get(FeatRainfallTempRatio)
	assert.InDelta(t, 5.0, ratio, 1e-5)
}

func TestFeatureEngineer_CyclicalContinuity(t *testing.T) {
	fe := newTestEngineer(t, "v1")
	r := ClimateReading{Temperature: 27, Humidity: 70, Rainfall: 60}

	dec, err := fe.Build(r, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	jan, err := fe.Build(r, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)

	decSin, _ := dec.Get(FeatDayOfYearSin)
	janSin, _ := jan.Get(FeatDayOfYearSin)
	decCos, _ := dec.Get(FeatDayOfYearCos)
	janCos, _ := jan.Get(FeatDayOfYearCos)
	assert.InDelta(t, decSin, janSin, 0.05)
	assert.InDelta(t, decCos, janCos, 0.05)
}

func TestFeatureEngineer_RatioGuard(t *testing.T) {
	fe := newTestEngineer(t, "v1")
	v, err := fe.Build(ClimateReading{Temperature: 0, Humidity: 0, Rainfall: 10}, scenarioDate, 0)
	require.NoError(t, err)

	x, _ := v.Get(FeatRainfallTempRatio)
	assert.InDelta(t, 10/featureEpsilon, x, 1)
	x, _ = v.Get(FeatRainfallHumidityRatio)
	assert.InDelta(t, 10/featureEpsilon, x, 1)
}

func TestFeatureEngineer_Errors(t *testing.T) {
	fe := newTestEngineer(t, "v1")
	valid := ClimateReading{Temperature: 28, Humidity: 75, Rainfall: 100}

	_, err := fe.Build(ClimateReading{Temperature: 28, Humidity: 120, Rainfall: 1}, scenarioDate, 0)
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)

	_, err = fe.Build(valid, time.Time{}, 0)
	assert.ErrorAs(t, err, &invalid)

	_, err = fe.Build(valid, scenarioDate, 42)
	var unknown *UnknownLocationError
	assert.ErrorAs(t, err, &unknown)
}

func TestNewFeatureEngineer_UnsupportedFeature(t *testing.T) {
	schema := FeatureSchema{Version: "x", Names: []string{FeatRainfall, "soil_moisture"}}
	_, err := NewFeatureEngineer(schema, testLocations(t))
	var mismatch *SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestSchema_Check(t *testing.T) {
	schema, err := SchemaByVersion("v1")
	require.NoError(t, err)

	assert.NoError(t, schema.Check(schema.Names))

	truncated := schema.Names[:len(schema.Names)-1]
	assert.Error(t, schema.Check(truncated))

	swapped := append([]string(nil), schema.Names...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.Error(t, schema.Check(swapped))

	_, err = SchemaByVersion("v9")
	var mismatch *SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestSchemaByVersion_ReturnsCopy(t *testing.T) {
	a, err := SchemaByVersion("v1")
	require.NoError(t, err)
	a.Names[0] = "mutated"

	b, err := SchemaByVersion("v1")
	require.NoError(t, err)
	assert.Equal(t, FeatRainfall, b.Names[0])
}
