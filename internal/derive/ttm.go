// Package derive implements the TTM Derivator (C10) and Ratio Derivator
// (C11): spec §4.10 and §4.11. Both compute rows from already-committed
// Store state and write their output back through a single transaction
// per security.
package derive

import (
	"context"
	"database/sql"
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/equityrefresh/internal/store"
)

// cashFlowFieldCount is the number of summed lines a TTM row carries
// (spec §6.3: operating, investing, financing, net, depreciation,
// dividends, repurchases).
const cashFlowFieldCount = 7

// TTM computes the most recent trailing-twelve-month CashFlowStatement for
// one security from its committed Quarterly rows (spec §4.10).
type TTM struct {
	store *store.Store
}

func NewTTM(s *store.Store) *TTM { return &TTM{store: s} }

// Derive finds the most recent valid 4-consecutive-quarter window and
// upserts one TTM row. It returns (nil, nil) when fewer than four
// Quarterly rows exist or no window of four is consecutive.
func (t *TTM) Derive(ctx context.Context, securityID int64) (*store.CashFlowStatement, error) {
	quarters, err := t.store.GetQuarterlyCashFlows(ctx, securityID)
	if err != nil {
		return nil, fmt.Errorf("ttm: load quarterly cash flows for %d: %w", securityID, err)
	}
	window := latestConsecutiveWindow(quarters)
	if window == nil {
		return nil, nil
	}

	row := sumWindow(securityID, window)
	err = t.store.WithTx(ctx, func(tx *sql.Tx) error {
		return t.store.UpsertCashFlowStatements(ctx, tx, securityID, []store.CashFlowStatement{row})
	})
	if err != nil {
		return nil, fmt.Errorf("ttm: commit derived row for %d: %w", securityID, err)
	}
	return &row, nil
}

// latestConsecutiveWindow scans rows ordered (fiscal_year desc,
// fiscal_period desc) — the Store's GetQuarterlyCashFlows ordering — for
// the first run of four whose fiscal periods step backward one quarter at
// a time, crossing at most one fiscal-year boundary (spec §4.10 step 1).
func latestConsecutiveWindow(quarters []store.CashFlowStatement) []store.CashFlowStatement {
	for i := 0; i+4 <= len(quarters); i++ {
		candidate := quarters[i : i+4]
		if isConsecutiveDescending(candidate) {
			return candidate
		}
	}
	return nil
}

func isConsecutiveDescending(window []store.CashFlowStatement) bool {
	for i := 1; i < len(window); i++ {
		if !isPriorQuarter(window[i], window[i-1]) {
			return false
		}
	}
	return true
}

// isPriorQuarter reports whether b is exactly one quarter before a
// (Q4,Q3,Q2,Q1 within a year, or Q1 of year Y following Q4 of year Y-1 when
// scanning backward means b=Q4@Y-1, a=Q1@Y).
func isPriorQuarter(a, b store.CashFlowStatement) bool {
	ar, aok := quarterRank(a.FiscalPeriod)
	br, bok := quarterRank(b.FiscalPeriod)
	if !aok || !bok {
		return false
	}
	if a.FiscalYear == b.FiscalYear {
		return br == ar-1
	}
	if a.FiscalYear == b.FiscalYear+1 {
		return ar == 1 && br == 4
	}
	return false
}

func quarterRank(fp store.FiscalPeriod) (int, bool) {
	switch fp {
	case store.Q1:
		return 1, true
	case store.Q2:
		return 2, true
	case store.Q3:
		return 3, true
	case store.Q4:
		return 4, true
	default:
		return 0, false
	}
}

// sumWindow sums the seven cash-flow lines across a 4-quarter window,
// treating a line as absent only if every quarter is absent for it, and
// computes the quality score (spec §4.10 steps 3-4).
func sumWindow(securityID int64, window []store.CashFlowStatement) store.CashFlowStatement {
	sums := [cashFlowFieldCount]float64{}
	present := [cashFlowFieldCount]bool{}

	accumulate := func(idx int, v *float64) {
		if v == nil {
			return
		}
		sums[idx] += *v
		present[idx] = true
	}
	for _, q := range window {
		accumulate(0, q.OperatingCashFlow)
		accumulate(1, q.InvestingCashFlow)
		accumulate(2, q.FinancingCashFlow)
		accumulate(3, q.NetCashFlow)
		accumulate(4, q.DepreciationExpense)
		accumulate(5, q.DividendsPaid)
		accumulate(6, q.ShareRepurchases)
	}

	ptr := func(idx int) *float64 {
		if !present[idx] {
			return nil
		}
		v := sums[idx]
		return &v
	}

	scored := make([]float64, cashFlowFieldCount)
	for i, p := range present {
		if p {
			scored[i] = 1
		}
	}
	quality := scalar.Round(stat.Mean(scored, nil)*100, 2)

	mostRecent := window[0]
	return store.CashFlowStatement{
		SecurityID:          securityID,
		PeriodType:          store.TTM,
		ReportDate:          mostRecent.ReportDate,
		FiscalYear:          mostRecent.FiscalYear,
		FiscalPeriod:        store.NoneFP,
		OperatingCashFlow:   ptr(0),
		InvestingCashFlow:   ptr(1),
		FinancingCashFlow:   ptr(2),
		NetCashFlow:         ptr(3),
		DepreciationExpense: ptr(4),
		DividendsPaid:       ptr(5),
		ShareRepurchases:    ptr(6),
		QualityScore:        &quality,
		Meta:                store.StatementMeta{Source: store.SourceCalculatedTTM},
	}
}
