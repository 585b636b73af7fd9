package store

import "time"

// PeriodType is one of Quarterly, Annual, TTM (spec §3).
type PeriodType string

const (
	Quarterly PeriodType = "quarterly"
	Annual    PeriodType = "annual"
	TTM       PeriodType = "ttm"
)

// FiscalPeriod is Q1..Q4 for Quarterly records, empty for Annual/TTM.
type FiscalPeriod string

const (
	Q1     FiscalPeriod = "Q1"
	Q2     FiscalPeriod = "Q2"
	Q3     FiscalPeriod = "Q3"
	Q4     FiscalPeriod = "Q4"
	NoneFP FiscalPeriod = ""
)

// StatementSource tags where a statement record came from.
const (
	SourceFilings      = "filings"
	SourceCalculatedTTM = "calculated_ttm"
)

// Security is the tracked-universe entity (spec §3).
type Security struct {
	ID               int64
	Symbol           string
	Name             string
	Sector           *string
	Industry         *string
	CIK              *string
	InUniverse       bool
	ListingDate      *time.Time
	EarliestDate     *time.Time
	LatestDate       *time.Time
	TotalTradingDays int
}

// DailyBar is one (security, date) OHLCV row (spec §3).
type DailyBar struct {
	SecurityID int64
	Date       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
}

// StatementMeta carries the filing metadata every statement kind shares.
type StatementMeta struct {
	Source    string
	FiledDate *time.Time
	Accession *string
	Form      *string
}

// IncomeStatement is one (security, period_type, report_date,
// fiscal_period) income-statement row (spec §3, §6.2).
type IncomeStatement struct {
	ID              int64
	SecurityID      int64
	PeriodType      PeriodType
	ReportDate      time.Time
	FiscalYear      int
	FiscalPeriod    FiscalPeriod
	Revenue         *float64
	NetIncome       *float64
	OperatingIncome *float64
	SharesBasic     *float64
	SharesDiluted   *float64
	Meta            StatementMeta
}

// BalanceSheet is one balance-sheet row (spec §3, §6.2).
type BalanceSheet struct {
	ID                  int64
	SecurityID          int64
	PeriodType          PeriodType
	ReportDate          time.Time
	FiscalYear          int
	FiscalPeriod        FiscalPeriod
	TotalAssets         *float64
	TotalDebt           *float64
	TotalEquity         *float64
	CashAndEquivalents  *float64
	SharesOutstanding   *float64
	Meta                StatementMeta
}

// CashFlowStatement is one cash-flow-statement row (spec §3, §4.10, §6.2).
type CashFlowStatement struct {
	ID                  int64
	SecurityID          int64
	PeriodType          PeriodType
	ReportDate          time.Time
	FiscalYear          int
	FiscalPeriod        FiscalPeriod
	OperatingCashFlow   *float64
	InvestingCashFlow   *float64
	FinancingCashFlow   *float64
	NetCashFlow         *float64
	DepreciationExpense *float64
	DividendsPaid       *float64
	ShareRepurchases    *float64
	QualityScore        *float64
	Meta                StatementMeta
}

// FilingIndexEntry is one (filing date, report end date, form, accession)
// row from the companion filing-index extraction (spec §4.7, §4.9).
type FilingIndexEntry struct {
	SecurityID    int64
	FilingDate    time.Time
	ReportEndDate time.Time
	Form          string
	Accession     string
}

// ValuationRatios is one (security, as-of date) derived-ratio row (spec §3, §4.11).
type ValuationRatios struct {
	SecurityID      int64
	Date            time.Time
	Price           *float64
	MarketCap       *float64
	EnterpriseValue *float64
	PSRatio         *float64
	EVSRatio        *float64
	PBRatio         *float64
	PCFRatio        *float64
	PERatio         *float64
	// RevenueTTM is the latest Annual income statement's revenue, not a
	// trailing-twelve-month sum of quarterly revenue.
	RevenueTTM      *float64
	Completeness    float64
}

// SessionStatus is a RefreshSession lifecycle state (spec §3).
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// RefreshSession mirrors an in-flight or completed Orchestrator run (spec §3, §4.12).
type RefreshSession struct {
	SessionID             string
	Mode                  string
	Initiator             string
	StartTime             time.Time
	EndTime               *time.Time
	TotalSteps            int
	CompletedSteps        int
	CurrentStepName       *string
	Status                SessionStatus
	SourcesRefreshedJSON  string
	SourcesFailedJSON     string
	TotalRecords          int
}

// DataStatus is a per-source freshness summary (spec §3, §4.5).
type DataStatus struct {
	Source      string
	LastRefresh *time.Time
	LatestDate  *time.Time
	Records     int
	LastError   *string
}
