package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClimateReading_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reading ClimateReading
		field   string
	}{
		{"valid", ClimateReading{Temperature: 28, Humidity: 75, Rainfall: 100}, ""},
		{"boundaries", ClimateReading{Temperature: 0, Humidity: 100, Rainfall: 0}, ""},
		{"humidity over 100", ClimateReading{Temperature: 28, Humidity: 100.1, Rainfall: 1}, "humidity"},
		{"negative humidity", ClimateReading{Temperature: 28, Humidity: -1, Rainfall: 1}, "humidity"},
		{"negative rainfall", ClimateReading{Temperature: 28, Humidity: 50, Rainfall: -0.5}, "rainfall"},
		{"temperature too high", ClimateReading{Temperature: 51, Humidity: 50, Rainfall: 1}, "temperature"},
		{"NaN temperature", ClimateReading{Temperature: math.NaN(), Humidity: 50, Rainfall: 1}, "temperature"},
		{"infinite rainfall", ClimateReading{Temperature: 28, Humidity: 50, Rainfall: math.Inf(1)}, "rainfall"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-07-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []string{"", "2025-13-01", "2025-02-30", "07/01/2025"} {
		_, err := ParseDate(bad)
		var invalid *InvalidInputError
		assert.ErrorAs(t, err, &invalid, bad)
	}
}

func TestValidateDate(t *testing.T) {
	assert.Error(t, ValidateDate(time.Time{}))
	assert.NoError(t, ValidateDate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
