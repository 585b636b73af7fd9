package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceValuationRatios replaces the ValuationRatios row for (security,
// date), matching spec §3's "previous row for the same key is replaced".
func (s *Store) ReplaceValuationRatios(ctx context.Context, q querier, r ValuationRatios) error {
	if q == nil {
		q = s.conn
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO valuation_ratios (security_id, date, price, market_cap, enterprise_value,
			ps_ratio, evs_ratio, pb_ratio, pcf_ratio, pe_ratio, revenue_ttm, completeness)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(security_id, date) DO UPDATE SET
			price = excluded.price, market_cap = excluded.market_cap,
			enterprise_value = excluded.enterprise_value, ps_ratio = excluded.ps_ratio,
			evs_ratio = excluded.evs_ratio, pb_ratio = excluded.pb_ratio,
			pcf_ratio = excluded.pcf_ratio, pe_ratio = excluded.pe_ratio,
			revenue_ttm = excluded.revenue_ttm, completeness = excluded.completeness`,
		r.SecurityID, fmtDate(r.Date), nf(r.Price), nf(r.MarketCap), nf(r.EnterpriseValue),
		nf(r.PSRatio), nf(r.EVSRatio), nf(r.PBRatio), nf(r.PCFRatio), nf(r.PERatio),
		nf(r.RevenueTTM), r.Completeness)
	if err != nil {
		return fmt.Errorf("replace valuation ratios for %d %s: %w", r.SecurityID, fmtDate(r.Date), err)
	}
	return nil
}

// GetLatestValuationRatios returns the most recent ValuationRatios row for
// a security, or nil if none exists.
func (s *Store) GetLatestValuationRatios(ctx context.Context, securityID int64) (*ValuationRatios, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT security_id, date, price, market_cap, enterprise_value,
		       ps_ratio, evs_ratio, pb_ratio, pcf_ratio, pe_ratio, revenue_ttm, completeness
		FROM valuation_ratios WHERE security_id = ? ORDER BY date DESC LIMIT 1`, securityID)

	var r ValuationRatios
	var date string
	var price, mc, ev, ps, evs, pb, pcf, pe, rev sql.NullFloat64
	if err := row.Scan(&r.SecurityID, &date, &price, &mc, &ev, &ps, &evs, &pb, &pcf, &pe, &rev, &r.Completeness); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest valuation ratios for %d: %w", securityID, err)
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	r.Date = d
	r.Price, r.MarketCap, r.EnterpriseValue = nullFloatPtr(price), nullFloatPtr(mc), nullFloatPtr(ev)
	r.PSRatio, r.EVSRatio, r.PBRatio = nullFloatPtr(ps), nullFloatPtr(evs), nullFloatPtr(pb)
	r.PCFRatio, r.PERatio, r.RevenueTTM = nullFloatPtr(pcf), nullFloatPtr(pe), nullFloatPtr(rev)
	return &r, nil
}

// ListPERatios returns every non-null historical pe_ratio value recorded
// for a security, oldest first, for distribution/percentile analysis
// (screen/stats).
func (s *Store) ListPERatios(ctx context.Context, securityID int64) ([]float64, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT pe_ratio FROM valuation_ratios
		WHERE security_id = ? AND pe_ratio IS NOT NULL
		ORDER BY date ASC`, securityID)
	if err != nil {
		return nil, fmt.Errorf("list pe ratios for %d: %w", securityID, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan pe ratio for %d: %w", securityID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetLatestBar returns the most recent DailyBar close price and its date
// for a security, the Ratio Derivator's price input (spec §4.11).
func (s *Store) GetLatestBar(ctx context.Context, securityID int64) (*DailyBar, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT security_id, date, open, high, low, close, volume
		FROM daily_bars WHERE security_id = ? ORDER BY date DESC LIMIT 1`, securityID)

	var b DailyBar
	var date string
	if err := row.Scan(&b.SecurityID, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest bar for %d: %w", securityID, err)
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	b.Date = d
	return &b, nil
}
