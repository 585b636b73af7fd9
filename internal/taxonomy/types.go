// Package taxonomy implements the Taxonomy Extractor (spec §4.7, C7): it
// pulls period-indexed numeric facts out of a nested XBRL-shaped company
// facts document via a prioritized field-mapping pipeline, and produces the
// companion filing-index entries (spec §4.9).
package taxonomy

import "github.com/aristath/equityrefresh/internal/store"

// FactValue is one reported datapoint for a concept (spec §6.1).
type FactValue struct {
	Start *string  `json:"start,omitempty"`
	End   string   `json:"end"`
	Val   float64  `json:"val"`
	Accn  string   `json:"accn,omitempty"`
	FY    *int     `json:"fy,omitempty"`
	FP    string   `json:"fp,omitempty"`
	Form  string   `json:"form,omitempty"`
	Filed string   `json:"filed,omitempty"`
	Frame string   `json:"frame,omitempty"`
}

// Concept is one taxonomy concept's reported values, grouped by unit tag.
type Concept struct {
	Label       string               `json:"label,omitempty"`
	Description string               `json:"description,omitempty"`
	Units       map[string][]FactValue `json:"units"`
}

// FactsDocument is the root of the filings facts JSON (spec §6.1).
type FactsDocument struct {
	CIK        any                        `json:"cik"`
	EntityName string                     `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"`
}

const (
	namespaceUSGAAP = "us-gaap"
	namespaceDEI    = "dei"

	unitUSD    = "USD"
	unitShares = "shares"

	formTenK = "10-K"
	formTenQ = "10-Q"
)

// Extracted is the Extractor's output: ordered statement records for all
// three kinds, plus the companion filing-index entries. SecurityID is left
// zero; the Filing Fetcher (C9) passes the security's id to the Store's
// upsert calls, which key the rows by it.
type Extracted struct {
	Income      []store.IncomeStatement
	Balance     []store.BalanceSheet
	CashFlow    []store.CashFlowStatement
	FilingIndex []store.FilingIndexEntry
}

// period identifies one (fiscal-year, fiscal-period, report-end-date)
// triple encountered in the document, with its resolved period type.
type period struct {
	fiscalYear   int
	fiscalPeriod store.FiscalPeriod
	reportDate   string // ISO date string, as reported
	periodType   store.PeriodType
	form         string
}

// periodKey is the map key for deduplicating periods.
type periodKey struct {
	fiscalYear   int
	fiscalPeriod store.FiscalPeriod
	reportDate   string
}
