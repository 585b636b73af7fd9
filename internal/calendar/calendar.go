// Package calendar provides weekend/holiday-aware trading-day enumeration
// and consecutive-range grouping over the U.S. equity market calendar.
//
// The holiday set is a process-scoped compile-time table; there is no
// external calendar lookup and no I/O, so every operation here is pure.
package calendar

import (
	"sort"
	"time"
)

// Range is a half-open date range: [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

func normalize(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether d is a trading day: not a weekend, and not
// one of the static U.S. market holidays.
func IsTradingDay(d time.Time) bool {
	d = normalize(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !holidays(d.Year())[d]
}

// TradingDays returns the ordered sequence of trading days in [start, end].
func TradingDays(start, end time.Time) []time.Time {
	start, end = normalize(start), normalize(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// GroupConsecutive groups an ordered set of trading days into half-open
// ranges. Two trading days are "consecutive" when no trading day exists
// strictly between them, so a group spans weekends/holidays seamlessly.
//
// dates need not be sorted or deduplicated; the result is sorted and each
// range's End is exclusive (one calendar day past the group's last date),
// matching Go's half-open range idiom.
func GroupConsecutive(dates []time.Time) []Range {
	if len(dates) == 0 {
		return nil
	}
	normed := make([]time.Time, len(dates))
	for i, d := range dates {
		normed[i] = normalize(d)
	}
	sort.Slice(normed, func(i, j int) bool { return normed[i].Before(normed[j]) })

	var ranges []Range
	groupStart := normed[0]
	prev := normed[0]
	for _, d := range normed[1:] {
		if d.Equal(prev) {
			continue
		}
		if !hasTradingDayBetween(prev, d) {
			prev = d
			continue
		}
		ranges = append(ranges, Range{Start: groupStart, End: prev.AddDate(0, 0, 1)})
		groupStart = d
		prev = d
	}
	ranges = append(ranges, Range{Start: groupStart, End: prev.AddDate(0, 0, 1)})
	return ranges
}

// hasTradingDayBetween reports whether a trading day exists strictly
// between a and b (a < x < b).
func hasTradingDayBetween(a, b time.Time) bool {
	for d := a.AddDate(0, 0, 1); d.Before(b); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			return true
		}
	}
	return false
}

// holidays returns the observed U.S. market holidays for a given year.
// Computed on every call; cheap enough not to bother caching.
func holidays(year int) map[time.Time]bool {
	h := map[time.Time]bool{}
	add := func(t time.Time) { h[normalize(t)] = true }

	add(observedFixed(year, time.January, 1))               // New Year's Day
	add(nthWeekday(year, time.January, time.Monday, 3))      // MLK Day
	add(nthWeekday(year, time.February, time.Monday, 3))     // Presidents Day
	add(goodFriday(year))                                    // Good Friday
	add(lastWeekday(year, time.May, time.Monday))            // Memorial Day
	if year >= 2021 {
		add(observedFixed(year, time.June, 19)) // Juneteenth
	}
	add(observedFixed(year, time.July, 4))       // Independence Day
	add(nthWeekday(year, time.September, time.Monday, 1)) // Labor Day
	add(nthWeekday(year, time.November, time.Thursday, 4)) // Thanksgiving
	add(observedFixed(year, time.December, 25))  // Christmas

	return h
}

// observedFixed returns the market-observed date for a fixed holiday,
// shifting a Saturday occurrence back to Friday and a Sunday occurrence
// forward to Monday.
func observedFixed(year int, month time.Month, day int) time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the nth occurrence of weekday in month/year (1-indexed).
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	d = d.AddDate(0, 0, offset+7*(n-1))
	return d
}

// lastWeekday returns the last occurrence of weekday in month/year.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// goodFriday returns the date of Good Friday (two days before Easter
// Sunday) using the anonymous Gregorian algorithm for Easter.
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return easter.AddDate(0, 0, -2)
}
