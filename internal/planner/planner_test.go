package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/equityrefresh/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestCompute_NoRecordedMetadataUsesDefaultStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, id, sec.ID)

	defaultStart := date(t, "2024-01-01")
	end := date(t, "2024-01-08")
	p, err := Compute(ctx, s, sec, defaultStart, end)
	require.NoError(t, err)
	require.True(t, p.EffectiveStart.Equal(defaultStart))
	require.Greater(t, p.MissingCount, 0)
}

func TestCompute_FullCoverageWhenAllBarsPresent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)

	start := date(t, "2024-01-02")
	end := date(t, "2024-01-03")
	bars := []store.DailyBar{
		{SecurityID: id, Date: start, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{SecurityID: id, Date: end, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}
	require.NoError(t, s.UpsertDailyBars(ctx, nil, id, bars))

	p, err := Compute(ctx, s, sec, start, end)
	require.NoError(t, err)
	require.True(t, p.Fully())
	require.Equal(t, 100.0, p.CoveragePercent)
	require.Empty(t, p.MissingRanges)
}

func TestCompute_DetectsGapsBeforeLatestDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latest := date(t, "2024-01-08")
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true, LatestDate: &latest})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)

	// Jan 2 and Jan 8 are recorded; Jan 3-5 (a trading-day gap that
	// predates LatestDate, e.g. from a skipped/empty range) are not.
	// The plan must still surface that gap instead of only scanning
	// forward from LatestDate.
	bars := []store.DailyBar{
		{SecurityID: id, Date: date(t, "2024-01-02"), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{SecurityID: id, Date: latest, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}
	require.NoError(t, s.UpsertDailyBars(ctx, nil, id, bars))

	defaultStart := date(t, "2024-01-01")
	end := date(t, "2024-01-10")
	p, err := Compute(ctx, s, sec, defaultStart, end)
	require.NoError(t, err)
	require.True(t, p.EffectiveStart.Equal(defaultStart), "effective start must not clamp forward to LatestDate")
	require.Greater(t, p.MissingCount, 0, "gaps before LatestDate must still be detected as missing")
}

func TestCompute_IdempotentAcrossRepeatedCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)

	start := date(t, "2024-01-01")
	end := date(t, "2024-01-10")
	p1, err := Compute(ctx, s, sec, start, end)
	require.NoError(t, err)
	p2, err := Compute(ctx, s, sec, start, end)
	require.NoError(t, err)
	require.Equal(t, p1.MissingCount, p2.MissingCount)
	require.Equal(t, p1.CoveragePercent, p2.CoveragePercent)
}
