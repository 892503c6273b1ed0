package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testIndex() *HistoricalClimateIndex {
	var rows []DatedReading
	for m := time.January; m <= time.December; m++ {
		rows = append(rows,
			DatedReading{Date: day(2023, m, 5), Reading: ClimateReading{Temperature: 25 + float64(m)/2, Humidity: 70, Rainfall: float64(m) * 10}},
			DatedReading{Date: day(2024, m, 20), Reading: ClimateReading{Temperature: 26 + float64(m)/2, Humidity: 80, Rainfall: float64(m)*10 + 20}},
		)
	}
	return BuildHistoricalIndex(rows)
}

func TestBuildHistoricalIndex(t *testing.T) {
	idx := BuildHistoricalIndex([]DatedReading{
		{Date: day(2023, 2, 1), Reading: ClimateReading{Temperature: 27, Humidity: 70, Rainfall: 100}},
		{Date: day(2024, 2, 9), Reading: ClimateReading{Temperature: 28, Humidity: 75, Rainfall: 101}},
		{Date: day(2024, 2, 10), Reading: ClimateReading{Temperature: 28.333, Humidity: 76, Rainfall: 102}},
		// filtered: temperature below 20, rainfall above 500, humidity below 40
		{Date: day(2024, 2, 11), Reading: ClimateReading{Temperature: 5, Humidity: 75, Rainfall: 100}},
		{Date: day(2024, 2, 12), Reading: ClimateReading{Temperature: 28, Humidity: 75, Rainfall: 800}},
		{Date: day(2024, 3, 1), Reading: ClimateReading{Temperature: 28, Humidity: 10, Rainfall: 10}},
	})

	feb, ok := idx.Month(time.February)
	require.True(t, ok)
	assert.Equal(t, ClimateReading{Temperature: 27.78, Humidity: 73.67, Rainfall: 101}, feb)

	_, ok = idx.Month(time.March)
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Coverage())
	assert.Equal(t, 3, idx.Rows())
}

func TestHistoricalClimateIndex_Nil(t *testing.T) {
	var idx *HistoricalClimateIndex
	_, ok := idx.Month(time.June)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Coverage())
}

func TestClimateResolver_MonthBoundary(t *testing.T) {
	idx := testIndex()
	current := ClimateReading{Temperature: 31, Humidity: 85, Rainfall: 200}
	feb, _ := idx.Month(time.February)

	got := ClimateResolver{Index: idx}.Resolve(4, day(2025, 1, 25), current)

	require.Len(t, got, 4)
	assert.Equal(t, ResolvedClimate{Reading: current, Source: SourceCurrent}, got[0])
	for i := 1; i < 4; i++ {
		assert.Equal(t, SourceHistorical, got[i].Source, "week %d", i)
		assert.Equal(t, feb, got[i].Reading, "week %d", i)
	}
}

func TestClimateResolver_YearBoundary(t *testing.T) {
	idx := testIndex()
	dec, _ := idx.Month(time.December)
	jan, _ := idx.Month(time.January)

	got := ClimateResolver{Index: idx}.Resolve(4, day(2024, 12, 18), ClimateReading{Temperature: 28, Humidity: 70, Rainfall: 50})

	require.Len(t, got, 4)
	assert.Equal(t, dec, got[1].Reading) // Dec 25
	assert.Equal(t, jan, got[2].Reading) // Jan 1
	assert.Equal(t, jan, got[3].Reading) // Jan 8
}

func TestClimateResolver_MissingMonth(t *testing.T) {
	idx := BuildHistoricalIndex([]DatedReading{
		{Date: day(2024, 1, 10), Reading: ClimateReading{Temperature: 27, Humidity: 70, Rainfall: 90}},
	})

	got := ClimateResolver{Index: idx}.Resolve(3, day(2025, 1, 20), ClimateReading{Temperature: 28, Humidity: 70, Rainfall: 50})

	assert.Equal(t, SourceHistorical, got[1].Source) // Jan 27
	assert.Equal(t, ResolvedClimate{Reading: DefaultReading, Source: SourceFallback}, got[2])
}

func TestClimateResolver_HorizonLength(t *testing.T) {
	r := ClimateResolver{Index: testIndex()}
	for _, n := range []int{1, 4, 12} {
		assert.Len(t, r.Resolve(n, day(2025, 3, 1), ClimateReading{}), n)
	}
	assert.Empty(t, r.Resolve(0, day(2025, 3, 1), ClimateReading{}))
}

func TestHistoricalClimateIndex_ReadingFor(t *testing.T) {
	idx := testIndex()
	jul, _ := idx.Month(time.July)
	assert.Equal(t, jul, idx.ReadingFor(day(2025, 7, 19)))

	empty := BuildHistoricalIndex(nil)
	assert.Equal(t, DefaultReading, empty.ReadingFor(day(2025, 7, 19)))
}
