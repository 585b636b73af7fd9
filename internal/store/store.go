package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// querier is satisfied by both *sql.DB and *sql.Tx, so every Store method
// below can run either standalone or composed inside a caller-owned
// transaction started with Store.WithTx — the "one transaction per
// committed unit" discipline spec §4.4 requires.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fmtDate(t time.Time) string { return t.Format(dateLayout) }

func parseDate(s string) (time.Time, error) { return time.Parse(dateLayout, s) }

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtDate(*t)
}

// ---- Security -------------------------------------------------------------

// UpsertSecurity inserts or updates a Security keyed by symbol, satisfying
// invariant 5 (idempotent upsert) and invariant 6 (in_universe is
// authoritative for enumeration). Returns the row id.
func (s *Store) UpsertSecurity(ctx context.Context, q querier, sec *Security) (int64, error) {
	if q == nil {
		q = s.conn
	}
	var sector, industry, cik any
	if sec.Sector != nil {
		sector = *sec.Sector
	}
	if sec.Industry != nil {
		industry = *sec.Industry
	}
	if sec.CIK != nil {
		cik = *sec.CIK
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO securities (symbol, name, sector, industry, cik, in_universe, listing_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			industry = excluded.industry,
			cik = excluded.cik,
			in_universe = excluded.in_universe,
			listing_date = COALESCE(excluded.listing_date, securities.listing_date)
	`, sec.Symbol, sec.Name, sector, industry, cik, boolToInt(sec.InUniverse), nullableDate(sec.ListingDate))
	if err != nil {
		return 0, fmt.Errorf("upsert security %s: %w", sec.Symbol, err)
	}

	row := q.QueryRowContext(ctx, `SELECT id FROM securities WHERE symbol = ?`, sec.Symbol)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("read back security id for %s: %w", sec.Symbol, err)
	}
	return id, nil
}

// GetSecurityBySymbol returns a security's full metadata, or nil if unknown.
func (s *Store) GetSecurityBySymbol(ctx context.Context, symbol string) (*Security, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, symbol, name, sector, industry, cik, in_universe,
		       listing_date, earliest_date, latest_date, total_trading_days
		FROM securities WHERE symbol = ?`, symbol)
	return scanSecurity(row)
}

// ListUniverseSecurities returns every Security with in_universe = true,
// the Orchestrator's default enumeration source (spec invariant 6).
func (s *Store) ListUniverseSecurities(ctx context.Context) ([]Security, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, symbol, name, sector, industry, cik, in_universe,
		       listing_date, earliest_date, latest_date, total_trading_days
		FROM securities WHERE in_universe = 1 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list universe securities: %w", err)
	}
	defer rows.Close()

	var out []Security
	for rows.Next() {
		sec, err := scanSecurityRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sec)
	}
	return out, rows.Err()
}

func scanSecurity(row *sql.Row) (*Security, error) {
	var sec Security
	var sector, industry, cik, listingDate, earliestDate, latestDate sql.NullString
	var inUniverse int
	if err := row.Scan(&sec.ID, &sec.Symbol, &sec.Name, &sector, &industry, &cik,
		&inUniverse, &listingDate, &earliestDate, &latestDate, &sec.TotalTradingDays); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan security: %w", err)
	}
	applySecurityNullables(&sec, sector, industry, cik, listingDate, earliestDate, latestDate, inUniverse)
	return &sec, nil
}

func scanSecurityRows(rows *sql.Rows) (*Security, error) {
	var sec Security
	var sector, industry, cik, listingDate, earliestDate, latestDate sql.NullString
	var inUniverse int
	if err := rows.Scan(&sec.ID, &sec.Symbol, &sec.Name, &sector, &industry, &cik,
		&inUniverse, &listingDate, &earliestDate, &latestDate, &sec.TotalTradingDays); err != nil {
		return nil, fmt.Errorf("scan security row: %w", err)
	}
	applySecurityNullables(&sec, sector, industry, cik, listingDate, earliestDate, latestDate, inUniverse)
	return &sec, nil
}

func applySecurityNullables(sec *Security, sector, industry, cik, listingDate, earliestDate, latestDate sql.NullString, inUniverse int) {
	if sector.Valid {
		sec.Sector = &sector.String
	}
	if industry.Valid {
		sec.Industry = &industry.String
	}
	if cik.Valid {
		sec.CIK = &cik.String
	}
	sec.InUniverse = inUniverse != 0
	if listingDate.Valid {
		if d, err := parseDate(listingDate.String); err == nil {
			sec.ListingDate = &d
		}
	}
	if earliestDate.Valid {
		if d, err := parseDate(earliestDate.String); err == nil {
			sec.EarliestDate = &d
		}
	}
	if latestDate.Valid {
		if d, err := parseDate(latestDate.String); err == nil {
			sec.LatestDate = &d
		}
	}
}

// UpdateSecurityCoverage updates a security's earliest/latest bar date and
// total trading-day count after a Price Fetcher run (spec §4.8).
func (s *Store) UpdateSecurityCoverage(ctx context.Context, q querier, securityID int64, earliest, latest *time.Time, totalDays int) error {
	if q == nil {
		q = s.conn
	}
	_, err := q.ExecContext(ctx, `
		UPDATE securities SET
			earliest_date = COALESCE(?, earliest_date),
			latest_date = COALESCE(?, latest_date),
			total_trading_days = ?
		WHERE id = ?`, nullableDate(earliest), nullableDate(latest), totalDays, securityID)
	if err != nil {
		return fmt.Errorf("update security coverage for %d: %w", securityID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- DailyBar --------------------------------------------------------------

// UpsertDailyBars idempotently writes a batch of bars for one security in
// the caller's transaction (spec invariant 1 and 5).
func (s *Store) UpsertDailyBars(ctx context.Context, q querier, securityID int64, bars []DailyBar) error {
	if q == nil {
		q = s.conn
	}
	stmt := `
		INSERT INTO daily_bars (security_id, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(security_id, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`
	for _, b := range bars {
		if _, err := q.ExecContext(ctx, stmt, securityID, fmtDate(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("upsert daily bar %d %s: %w", securityID, fmtDate(b.Date), err)
		}
	}
	return nil
}

// GetLastKnownBarDate returns the most recent committed DailyBar date for a
// security, or nil if none exist.
func (s *Store) GetLastKnownBarDate(ctx context.Context, securityID int64) (*time.Time, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT MAX(date) FROM daily_bars WHERE security_id = ?`, securityID)
	var d sql.NullString
	if err := row.Scan(&d); err != nil {
		return nil, fmt.Errorf("get last known bar date for %d: %w", securityID, err)
	}
	if !d.Valid {
		return nil, nil
	}
	t, err := parseDate(d.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBarDatesInRange returns the set of committed DailyBar dates for a
// security within [start, end], used by the Planner's gap detection.
func (s *Store) GetBarDatesInRange(ctx context.Context, securityID int64, start, end time.Time) (map[time.Time]bool, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT date FROM daily_bars WHERE security_id = ? AND date >= ? AND date <= ?`,
		securityID, fmtDate(start), fmtDate(end))
	if err != nil {
		return nil, fmt.Errorf("get bar dates in range for %d: %w", securityID, err)
	}
	defer rows.Close()

	out := map[time.Time]bool{}
	for rows.Next() {
		var ds string
		if err := rows.Scan(&ds); err != nil {
			return nil, err
		}
		d, err := parseDate(ds)
		if err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, rows.Err()
}
