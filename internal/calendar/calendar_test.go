package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIsTradingDay_Weekends(t *testing.T) {
	assert.False(t, IsTradingDay(date("2024-01-06"))) // Saturday
	assert.False(t, IsTradingDay(date("2024-01-07"))) // Sunday
	assert.True(t, IsTradingDay(date("2024-01-08")))  // Monday
}

func TestIsTradingDay_Holidays(t *testing.T) {
	assert.False(t, IsTradingDay(date("2024-01-01")), "New Year's Day")
	assert.False(t, IsTradingDay(date("2024-01-15")), "MLK Day")
	assert.False(t, IsTradingDay(date("2024-07-04")), "Independence Day")
	assert.False(t, IsTradingDay(date("2024-12-25")), "Christmas")
	assert.False(t, IsTradingDay(date("2024-03-29")), "Good Friday 2024")
	assert.False(t, IsTradingDay(date("2024-06-19")), "Juneteenth")
}

func TestIsTradingDay_JuneteenthBefore2021NotHoliday(t *testing.T) {
	// Juneteenth became a federal/market holiday starting 2021.
	assert.True(t, IsTradingDay(date("2020-06-19")))
}

func TestIsTradingDay_ObservedHolidayShift(t *testing.T) {
	// July 4, 2021 fell on a Sunday; observed Monday July 5.
	assert.False(t, IsTradingDay(date("2021-07-05")))
	assert.True(t, IsTradingDay(date("2021-07-04")))
}

func TestTradingDays_RangeExcludesWeekendsAndHolidays(t *testing.T) {
	days := TradingDays(date("2024-01-01"), date("2024-01-08"))
	require.Len(t, days, 5) // Jan 2,3,4,5,8 (Jan 1 holiday, 6-7 weekend)
	assert.Equal(t, date("2024-01-02"), days[0])
	assert.Equal(t, date("2024-01-08"), days[len(days)-1])
}

// TestGroupConsecutive_S1 matches spec scenario S1: trading days
// 2024-01-04 and 01-05 both lack coverage, and the two consecutive days
// collapse to a single half-open missing range [01-04, 01-06).
func TestGroupConsecutive_S1(t *testing.T) {
	missing := []time.Time{date("2024-01-04"), date("2024-01-05")}
	ranges := GroupConsecutive(missing)
	require.Len(t, ranges, 1)
	assert.Equal(t, date("2024-01-04"), ranges[0].Start)
	assert.Equal(t, date("2024-01-06"), ranges[0].End) // half-open, exclusive
}

func TestGroupConsecutive_SplitsOnGap(t *testing.T) {
	// 01-02 and 01-08 are both trading days with trading days in between,
	// so they must form two distinct groups.
	dates := []time.Time{date("2024-01-02"), date("2024-01-08")}
	ranges := GroupConsecutive(dates)
	require.Len(t, ranges, 2)
}

func TestGroupConsecutive_Empty(t *testing.T) {
	assert.Nil(t, GroupConsecutive(nil))
}
