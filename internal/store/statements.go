package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func nf(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ns(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func fiscalPeriodArg(fp FiscalPeriod) any {
	if fp == NoneFP {
		return nil
	}
	return string(fp)
}

func metaArgs(m StatementMeta) (any, any, any) {
	return nullableDate(m.FiledDate), ns(m.Accession), ns(m.Form)
}

// UpsertIncomeStatements idempotently upserts a batch of income-statement
// rows keyed by (security_id, period_type, report_date, fiscal_period)
// (spec invariant 2, 5).
func (s *Store) UpsertIncomeStatements(ctx context.Context, q querier, securityID int64, rows []IncomeStatement) error {
	if q == nil {
		q = s.conn
	}
	stmt := `
		INSERT INTO income_statements (security_id, period_type, report_date, fiscal_year, fiscal_period,
			revenue, net_income, operating_income, shares_basic, shares_diluted, source, filed_date, accession, form)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(security_id, period_type, report_date, fiscal_period) DO UPDATE SET
			revenue = excluded.revenue, net_income = excluded.net_income,
			operating_income = excluded.operating_income, shares_basic = excluded.shares_basic,
			shares_diluted = excluded.shares_diluted, source = excluded.source,
			filed_date = excluded.filed_date, accession = excluded.accession, form = excluded.form`
	for _, r := range rows {
		filed, accn, form := metaArgs(r.Meta)
		if _, err := q.ExecContext(ctx, stmt, securityID, string(r.PeriodType), fmtDate(r.ReportDate), r.FiscalYear,
			fiscalPeriodArg(r.FiscalPeriod), nf(r.Revenue), nf(r.NetIncome), nf(r.OperatingIncome),
			nf(r.SharesBasic), nf(r.SharesDiluted), r.Meta.Source, filed, accn, form); err != nil {
			return fmt.Errorf("upsert income statement %d %s %s: %w", securityID, r.PeriodType, fmtDate(r.ReportDate), err)
		}
	}
	return nil
}

// UpsertBalanceSheets idempotently upserts a batch of balance-sheet rows.
func (s *Store) UpsertBalanceSheets(ctx context.Context, q querier, securityID int64, rows []BalanceSheet) error {
	if q == nil {
		q = s.conn
	}
	stmt := `
		INSERT INTO balance_sheets (security_id, period_type, report_date, fiscal_year, fiscal_period,
			total_assets, total_debt, total_equity, cash_and_equivalents, shares_outstanding, source, filed_date, accession, form)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(security_id, period_type, report_date, fiscal_period) DO UPDATE SET
			total_assets = excluded.total_assets, total_debt = excluded.total_debt,
			total_equity = excluded.total_equity, cash_and_equivalents = excluded.cash_and_equivalents,
			shares_outstanding = excluded.shares_outstanding, source = excluded.source,
			filed_date = excluded.filed_date, accession = excluded.accession, form = excluded.form`
	for _, r := range rows {
		filed, accn, form := metaArgs(r.Meta)
		if _, err := q.ExecContext(ctx, stmt, securityID, string(r.PeriodType), fmtDate(r.ReportDate), r.FiscalYear,
			fiscalPeriodArg(r.FiscalPeriod), nf(r.TotalAssets), nf(r.TotalDebt), nf(r.TotalEquity),
			nf(r.CashAndEquivalents), nf(r.SharesOutstanding), r.Meta.Source, filed, accn, form); err != nil {
			return fmt.Errorf("upsert balance sheet %d %s %s: %w", securityID, r.PeriodType, fmtDate(r.ReportDate), err)
		}
	}
	return nil
}

// UpsertCashFlowStatements idempotently upserts a batch of cash-flow rows.
func (s *Store) UpsertCashFlowStatements(ctx context.Context, q querier, securityID int64, rows []CashFlowStatement) error {
	if q == nil {
		q = s.conn
	}
	stmt := `
		INSERT INTO cash_flow_statements (security_id, period_type, report_date, fiscal_year, fiscal_period,
			operating_cash_flow, investing_cash_flow, financing_cash_flow, net_cash_flow,
			depreciation_expense, dividends_paid, share_repurchases, quality_score,
			source, filed_date, accession, form)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(security_id, period_type, report_date, fiscal_period) DO UPDATE SET
			operating_cash_flow = excluded.operating_cash_flow, investing_cash_flow = excluded.investing_cash_flow,
			financing_cash_flow = excluded.financing_cash_flow, net_cash_flow = excluded.net_cash_flow,
			depreciation_expense = excluded.depreciation_expense, dividends_paid = excluded.dividends_paid,
			share_repurchases = excluded.share_repurchases, quality_score = excluded.quality_score,
			source = excluded.source, filed_date = excluded.filed_date, accession = excluded.accession, form = excluded.form`
	for _, r := range rows {
		filed, accn, form := metaArgs(r.Meta)
		if _, err := q.ExecContext(ctx, stmt, securityID, string(r.PeriodType), fmtDate(r.ReportDate), r.FiscalYear,
			fiscalPeriodArg(r.FiscalPeriod), nf(r.OperatingCashFlow), nf(r.InvestingCashFlow), nf(r.FinancingCashFlow),
			nf(r.NetCashFlow), nf(r.DepreciationExpense), nf(r.DividendsPaid), nf(r.ShareRepurchases), nf(r.QualityScore),
			r.Meta.Source, filed, accn, form); err != nil {
			return fmt.Errorf("upsert cash flow statement %d %s %s: %w", securityID, r.PeriodType, fmtDate(r.ReportDate), err)
		}
	}
	return nil
}

// GetQuarterlyCashFlows returns every Quarterly CashFlowStatement for a
// security ordered by (fiscal_year desc, fiscal_period desc), the input the
// TTM Derivator (C10) windows over.
func (s *Store) GetQuarterlyCashFlows(ctx context.Context, securityID int64) ([]CashFlowStatement, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, security_id, period_type, report_date, fiscal_year, fiscal_period,
		       operating_cash_flow, investing_cash_flow, financing_cash_flow, net_cash_flow,
		       depreciation_expense, dividends_paid, share_repurchases, quality_score,
		       source, filed_date, accession, form
		FROM cash_flow_statements
		WHERE security_id = ? AND period_type = ?
		ORDER BY fiscal_year DESC, fiscal_period DESC`, securityID, string(Quarterly))
	if err != nil {
		return nil, fmt.Errorf("get quarterly cash flows for %d: %w", securityID, err)
	}
	defer rows.Close()

	var out []CashFlowStatement
	for rows.Next() {
		cf, err := scanCashFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cf)
	}
	return out, rows.Err()
}

func scanCashFlow(rows *sql.Rows) (*CashFlowStatement, error) {
	var cf CashFlowStatement
	var reportDate string
	var fiscalPeriod sql.NullString
	var ocf, icf, fcf, ncf, dep, div, repo, quality sql.NullFloat64
	var filedDate, accession, form sql.NullString
	if err := rows.Scan(&cf.ID, &cf.SecurityID, &cf.PeriodType, &reportDate, &cf.FiscalYear, &fiscalPeriod,
		&ocf, &icf, &fcf, &ncf, &dep, &div, &repo, &quality, &cf.Meta.Source, &filedDate, &accession, &form); err != nil {
		return nil, fmt.Errorf("scan cash flow statement: %w", err)
	}
	d, err := parseDate(reportDate)
	if err != nil {
		return nil, err
	}
	cf.ReportDate = d
	if fiscalPeriod.Valid {
		cf.FiscalPeriod = FiscalPeriod(fiscalPeriod.String)
	}
	cf.OperatingCashFlow = nullFloatPtr(ocf)
	cf.InvestingCashFlow = nullFloatPtr(icf)
	cf.FinancingCashFlow = nullFloatPtr(fcf)
	cf.NetCashFlow = nullFloatPtr(ncf)
	cf.DepreciationExpense = nullFloatPtr(dep)
	cf.DividendsPaid = nullFloatPtr(div)
	cf.ShareRepurchases = nullFloatPtr(repo)
	cf.QualityScore = nullFloatPtr(quality)
	applyMetaNullables(&cf.Meta, filedDate, accession, form)
	return &cf, nil
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	val := v.Float64
	return &val
}

func applyMetaNullables(m *StatementMeta, filedDate, accession, form sql.NullString) {
	if filedDate.Valid {
		if d, err := parseDate(filedDate.String); err == nil {
			m.FiledDate = &d
		}
	}
	if accession.Valid {
		m.Accession = &accession.String
	}
	if form.Valid {
		m.Form = &form.String
	}
}

// GetLatestAnnualIncome returns the most recent Annual IncomeStatement for
// a security, or nil if none exists.
func (s *Store) GetLatestAnnualIncome(ctx context.Context, securityID int64) (*IncomeStatement, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, security_id, period_type, report_date, fiscal_year, fiscal_period,
		       revenue, net_income, operating_income, shares_basic, shares_diluted,
		       source, filed_date, accession, form
		FROM income_statements
		WHERE security_id = ? AND period_type = ?
		ORDER BY report_date DESC LIMIT 1`, securityID, string(Annual))
	return scanIncomeRow(row)
}

func scanIncomeRow(row *sql.Row) (*IncomeStatement, error) {
	var in IncomeStatement
	var reportDate string
	var fiscalPeriod sql.NullString
	var rev, ni, oi, sb, sd sql.NullFloat64
	var filedDate, accession, form sql.NullString
	if err := row.Scan(&in.ID, &in.SecurityID, &in.PeriodType, &reportDate, &in.FiscalYear, &fiscalPeriod,
		&rev, &ni, &oi, &sb, &sd, &in.Meta.Source, &filedDate, &accession, &form); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan income statement: %w", err)
	}
	d, err := parseDate(reportDate)
	if err != nil {
		return nil, err
	}
	in.ReportDate = d
	if fiscalPeriod.Valid {
		in.FiscalPeriod = FiscalPeriod(fiscalPeriod.String)
	}
	in.Revenue = nullFloatPtr(rev)
	in.NetIncome = nullFloatPtr(ni)
	in.OperatingIncome = nullFloatPtr(oi)
	in.SharesBasic = nullFloatPtr(sb)
	in.SharesDiluted = nullFloatPtr(sd)
	applyMetaNullables(&in.Meta, filedDate, accession, form)
	return &in, nil
}

// GetLatestBasicShares returns the most recent non-null basic share count
// from an IncomeStatement, preferring source "filings" (spec §4.11).
func (s *Store) GetLatestBasicShares(ctx context.Context, securityID int64) (*float64, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT shares_basic FROM income_statements
		WHERE security_id = ? AND shares_basic IS NOT NULL
		ORDER BY (source = ?) DESC, report_date DESC LIMIT 1`, securityID, SourceFilings)
	var v sql.NullFloat64
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest basic shares for %d: %w", securityID, err)
	}
	return nullFloatPtr(v), nil
}

// GetLatestAnnualBalanceSheet returns the most recent Annual/TTM balance
// sheet for a security, preferring the "filings" source, falling back to
// "calculated_ttm" (spec §4.11's "preferring filings source").
func (s *Store) GetLatestAnnualBalanceSheet(ctx context.Context, securityID int64) (*BalanceSheet, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, security_id, period_type, report_date, fiscal_year, fiscal_period,
		       total_assets, total_debt, total_equity, cash_and_equivalents, shares_outstanding,
		       source, filed_date, accession, form
		FROM balance_sheets
		WHERE security_id = ? AND period_type IN (?, ?)
		ORDER BY (source = ?) DESC, report_date DESC LIMIT 1`,
		securityID, string(Annual), string(TTM), SourceFilings)

	var bs BalanceSheet
	var reportDate string
	var fiscalPeriod sql.NullString
	var ta, td, te, cash, so sql.NullFloat64
	var filedDate, accession, form sql.NullString
	if err := row.Scan(&bs.ID, &bs.SecurityID, &bs.PeriodType, &reportDate, &bs.FiscalYear, &fiscalPeriod,
		&ta, &td, &te, &cash, &so, &bs.Meta.Source, &filedDate, &accession, &form); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest annual balance sheet for %d: %w", securityID, err)
	}
	d, err := parseDate(reportDate)
	if err != nil {
		return nil, err
	}
	bs.ReportDate = d
	if fiscalPeriod.Valid {
		bs.FiscalPeriod = FiscalPeriod(fiscalPeriod.String)
	}
	bs.TotalAssets = nullFloatPtr(ta)
	bs.TotalDebt = nullFloatPtr(td)
	bs.TotalEquity = nullFloatPtr(te)
	bs.CashAndEquivalents = nullFloatPtr(cash)
	bs.SharesOutstanding = nullFloatPtr(so)
	applyMetaNullables(&bs.Meta, filedDate, accession, form)
	return &bs, nil
}

// GetLatestAnnualCashFlow returns the most recent Annual CashFlowStatement
// for a security (used by the Ratio Derivator for depreciation/amortization).
func (s *Store) GetLatestAnnualCashFlow(ctx context.Context, securityID int64) (*CashFlowStatement, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, security_id, period_type, report_date, fiscal_year, fiscal_period,
		       operating_cash_flow, investing_cash_flow, financing_cash_flow, net_cash_flow,
		       depreciation_expense, dividends_paid, share_repurchases, quality_score,
		       source, filed_date, accession, form
		FROM cash_flow_statements
		WHERE security_id = ? AND period_type = ?
		ORDER BY report_date DESC LIMIT 1`, securityID, string(Annual))

	var cf CashFlowStatement
	var reportDate string
	var fiscalPeriod sql.NullString
	var ocf, icf, fcf, ncf, dep, div, repo, quality sql.NullFloat64
	var filedDate, accession, form sql.NullString
	if err := row.Scan(&cf.ID, &cf.SecurityID, &cf.PeriodType, &reportDate, &cf.FiscalYear, &fiscalPeriod,
		&ocf, &icf, &fcf, &ncf, &dep, &div, &repo, &quality, &cf.Meta.Source, &filedDate, &accession, &form); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest annual cash flow for %d: %w", securityID, err)
	}
	d, err := parseDate(reportDate)
	if err != nil {
		return nil, err
	}
	cf.ReportDate = d
	if fiscalPeriod.Valid {
		cf.FiscalPeriod = FiscalPeriod(fiscalPeriod.String)
	}
	cf.OperatingCashFlow = nullFloatPtr(ocf)
	cf.InvestingCashFlow = nullFloatPtr(icf)
	cf.FinancingCashFlow = nullFloatPtr(fcf)
	cf.NetCashFlow = nullFloatPtr(ncf)
	cf.DepreciationExpense = nullFloatPtr(dep)
	cf.DividendsPaid = nullFloatPtr(div)
	cf.ShareRepurchases = nullFloatPtr(repo)
	cf.QualityScore = nullFloatPtr(quality)
	applyMetaNullables(&cf.Meta, filedDate, accession, form)
	return &cf, nil
}

// ---- FilingIndex -----------------------------------------------------------

// UpsertFilingIndex idempotently writes the companion filing-index entries
// extracted alongside statement records (spec §4.7, §4.9).
func (s *Store) UpsertFilingIndex(ctx context.Context, q querier, securityID int64, entries []FilingIndexEntry) error {
	if q == nil {
		q = s.conn
	}
	stmt := `
		INSERT INTO filing_index (security_id, filing_date, report_end_date, form, accession)
		VALUES (?,?,?,?,?)
		ON CONFLICT(security_id, accession) DO UPDATE SET
			filing_date = excluded.filing_date, report_end_date = excluded.report_end_date, form = excluded.form`
	for _, e := range entries {
		if _, err := q.ExecContext(ctx, stmt, securityID, fmtDate(e.FilingDate), fmtDate(e.ReportEndDate), e.Form, e.Accession); err != nil {
			return fmt.Errorf("upsert filing index entry %d %s: %w", securityID, e.Accession, err)
		}
	}
	return nil
}

// FindFilingMatch looks up the best FilingIndex match for a report end date,
// preferring the given form (spec §4.9's reconciliation step).
func (s *Store) FindFilingMatch(ctx context.Context, securityID int64, reportEndDate time.Time, preferredForm string) (*FilingIndexEntry, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT security_id, filing_date, report_end_date, form, accession
		FROM filing_index
		WHERE security_id = ? AND report_end_date = ?
		ORDER BY (form = ?) DESC, filing_date DESC LIMIT 1`,
		securityID, fmtDate(reportEndDate), preferredForm)

	var e FilingIndexEntry
	var filingDate, reportDate string
	if err := row.Scan(&e.SecurityID, &filingDate, &reportDate, &e.Form, &e.Accession); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find filing match for %d %s: %w", securityID, fmtDate(reportEndDate), err)
	}
	fd, err := parseDate(filingDate)
	if err != nil {
		return nil, err
	}
	rd, err := parseDate(reportDate)
	if err != nil {
		return nil, err
	}
	e.FilingDate, e.ReportEndDate = fd, rd
	return &e, nil
}

// DeleteUnmatchedStatements removes statement rows of the given kind for a
// security that still have no filing metadata after reconciliation. Only
// invoked when the Filing Fetcher's configurable delete-unmatched option is
// enabled; the default is to retain (spec §4.9).
func (s *Store) DeleteUnmatchedStatements(ctx context.Context, q querier, kind string, securityID int64) error {
	if q == nil {
		q = s.conn
	}
	table := map[string]string{
		"income":    "income_statements",
		"balance":   "balance_sheets",
		"cash_flow": "cash_flow_statements",
	}[kind]
	if table == "" {
		return fmt.Errorf("unknown statement kind %q", kind)
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE security_id = ? AND accession IS NULL AND source = ?`, table), securityID, SourceFilings)
	if err != nil {
		return fmt.Errorf("delete unmatched %s statements for %d: %w", kind, securityID, err)
	}
	return nil
}
