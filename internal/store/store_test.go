package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sqlTx = sql.Tx

var errIntentional = errors.New("intentional failure for rollback test")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return d
}

func TestUpsertSecurity_IdempotentAndMembershipAuthoritative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", Name: "Acme Corp", InUniverse: true})
	require.NoError(t, err)

	id2, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", Name: "Acme Corporation", InUniverse: false})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, sec)
	require.Equal(t, "Acme Corporation", sec.Name)
	require.False(t, sec.InUniverse)

	universe, err := s.ListUniverseSecurities(ctx)
	require.NoError(t, err)
	require.Empty(t, universe)
}

func TestUpsertDailyBars_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)

	bars := []DailyBar{
		{SecurityID: id, Date: mustDate(t, "2024-01-02"), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{SecurityID: id, Date: mustDate(t, "2024-01-03"), Open: 10.5, High: 11.5, Low: 10, Close: 11, Volume: 1200},
	}
	require.NoError(t, s.UpsertDailyBars(ctx, nil, id, bars))
	require.NoError(t, s.UpsertDailyBars(ctx, nil, id, bars)) // second run, same input

	dates, err := s.GetBarDatesInRange(ctx, id, mustDate(t, "2024-01-01"), mustDate(t, "2024-01-05"))
	require.NoError(t, err)
	require.Len(t, dates, 2)

	last, err := s.GetLastKnownBarDate(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, last.Equal(mustDate(t, "2024-01-03")))
}

func TestQuarterlyCashFlowsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)

	rows := []CashFlowStatement{
		{SecurityID: id, PeriodType: Quarterly, ReportDate: mustDate(t, "2023-09-30"), FiscalYear: 2023, FiscalPeriod: Q3, Meta: StatementMeta{Source: SourceFilings}},
		{SecurityID: id, PeriodType: Quarterly, ReportDate: mustDate(t, "2023-12-31"), FiscalYear: 2023, FiscalPeriod: Q4, Meta: StatementMeta{Source: SourceFilings}},
		{SecurityID: id, PeriodType: Quarterly, ReportDate: mustDate(t, "2024-03-31"), FiscalYear: 2024, FiscalPeriod: Q1, Meta: StatementMeta{Source: SourceFilings}},
	}
	require.NoError(t, s.UpsertCashFlowStatements(ctx, nil, id, rows))

	got, err := s.GetQuarterlyCashFlows(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, Q1, got[0].FiscalPeriod)
	require.Equal(t, 2024, got[0].FiscalYear)
	require.Equal(t, Q3, got[2].FiscalPeriod)
}

func TestReplaceValuationRatios_ReplacesSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)

	price := 150.0
	mc := 150e9
	require.NoError(t, s.ReplaceValuationRatios(ctx, nil, ValuationRatios{
		SecurityID: id, Date: mustDate(t, "2024-01-02"), Price: &price, MarketCap: &mc, Completeness: 60,
	}))
	price2 := 155.0
	require.NoError(t, s.ReplaceValuationRatios(ctx, nil, ValuationRatios{
		SecurityID: id, Date: mustDate(t, "2024-01-02"), Price: &price2, MarketCap: &mc, Completeness: 80,
	}))

	latest, err := s.GetLatestValuationRatios(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, 155.0, *latest.Price)
	require.Equal(t, 80.0, latest.Completeness)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)

	bar := DailyBar{SecurityID: id, Date: mustDate(t, "2024-01-02"), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	simulatedFailure := require.New(t)

	err = s.WithTx(ctx, func(tx *sqlTx) error {
		if err := s.UpsertDailyBars(ctx, tx, id, []DailyBar{bar}); err != nil {
			return err
		}
		return errIntentional
	})
	simulatedFailure.Error(err)

	dates, err := s.GetBarDatesInRange(ctx, id, mustDate(t, "2024-01-01"), mustDate(t, "2024-01-05"))
	require.NoError(t, err)
	require.Empty(t, dates, "failed transaction must not leave partial writes committed")
}
