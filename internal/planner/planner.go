// Package planner implements the Planner (spec §4.6, C6): for one symbol,
// it computes the effective date range, the missing trading-day ranges
// within it, and a coverage percentage, by diffing expected trading days
// against the dates already committed to the Store.
package planner

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aristath/equityrefresh/internal/calendar"
	"github.com/aristath/equityrefresh/internal/store"
)

// Plan is a symbol's update plan (spec §4.6 step 5).
type Plan struct {
	SecurityID      int64
	EffectiveStart  time.Time
	EffectiveEnd    time.Time
	MissingRanges   []calendar.Range
	ExpectedCount   int
	MissingCount    int
	CoveragePercent float64
}

// Fully reports whether the plan found no missing trading days; when true
// the Price Fetcher should skip this symbol's fetch step entirely.
func (p Plan) Fully() bool { return p.MissingCount == 0 }

// Compute builds an update plan for one security (spec §4.6 algorithm).
// defaultStart is the start of the planned range unless the security's
// listing date is later; end is normally today. Compute is
// idempotent: planning against the Store's state twice in a row without an
// intervening write yields the same plan (spec §8).
func Compute(ctx context.Context, s *store.Store, sec *store.Security, defaultStart, end time.Time) (*Plan, error) {
	start := defaultStart
	if sec.ListingDate != nil && sec.ListingDate.After(start) {
		start = *sec.ListingDate
	}
	if start.After(end) {
		start = end
	}

	expected := calendar.TradingDays(start, end)

	known, err := s.GetBarDatesInRange(ctx, sec.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("planner: load known bar dates for security %d: %w", sec.ID, err)
	}

	knownSet := mapset.NewThreadUnsafeSet[int64]()
	for d := range known {
		knownSet.Add(d.UnixNano())
	}

	missing := make([]time.Time, 0, len(expected))
	for _, d := range expected {
		if !knownSet.Contains(d.UnixNano()) {
			missing = append(missing, d)
		}
	}

	coverage := 100.0
	if len(expected) > 0 {
		coverage = float64(len(expected)-len(missing)) / float64(len(expected)) * 100
	}

	return &Plan{
		SecurityID:      sec.ID,
		EffectiveStart:  start,
		EffectiveEnd:    end,
		MissingRanges:   calendar.GroupConsecutive(missing),
		ExpectedCount:   len(expected),
		MissingCount:    len(missing),
		CoveragePercent: coverage,
	}, nil
}
