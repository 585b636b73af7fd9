package taxonomy

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/equityrefresh/internal/store"
)

const dateLayout = "2006-01-02"

// Extract walks a facts document and produces ordered statement records and
// filing-index entries (spec §4.7, §4.9). It never returns an error for
// data that is merely sparse; absent fields surface as nil pointers and
// statement kinds with zero populated fields for a period are simply
// omitted, per the component's documented failure mode.
func Extract(doc *FactsDocument) (*Extracted, error) {
	if doc == nil {
		return nil, fmt.Errorf("taxonomy: nil facts document")
	}

	periods := collectPeriods(doc)
	out := &Extracted{}

	for _, p := range periods {
		key := periodKey{p.fiscalYear, p.fiscalPeriod, p.reportDate}
		reportDate, err := time.Parse(dateLayout, p.reportDate)
		if err != nil {
			continue // malformed date on this period only; skip it, keep the rest
		}

		meta := store.StatementMeta{Source: store.SourceFilings}
		if p.form != "" {
			form := p.form
			meta.Form = &form
		}

		if fields, n := extractKind(doc, incomeFields, key); n > 0 {
			out.Income = append(out.Income, store.IncomeStatement{
				PeriodType:      p.periodType,
				ReportDate:      reportDate,
				FiscalYear:      p.fiscalYear,
				FiscalPeriod:    p.fiscalPeriod,
				Revenue:         fields["revenue"],
				NetIncome:       fields["net_income"],
				OperatingIncome: fields["operating_income"],
				SharesBasic:     fields["shares_basic"],
				SharesDiluted:   fields["shares_diluted"],
				Meta:            meta,
			})
		}

		if fields, n := extractKind(doc, balanceFields, key); n > 0 {
			out.Balance = append(out.Balance, store.BalanceSheet{
				PeriodType:         p.periodType,
				ReportDate:         reportDate,
				FiscalYear:         p.fiscalYear,
				FiscalPeriod:       p.fiscalPeriod,
				TotalAssets:        fields["total_assets"],
				TotalDebt:          fields["total_debt"],
				TotalEquity:        fields["total_equity"],
				CashAndEquivalents: fields["cash_and_equivalents"],
				SharesOutstanding:  fields["shares_outstanding"],
				Meta:               meta,
			})
		}

		if fields, n := extractKind(doc, cashFlowFields, key); n > 0 {
			out.CashFlow = append(out.CashFlow, store.CashFlowStatement{
				PeriodType:          p.periodType,
				ReportDate:          reportDate,
				FiscalYear:          p.fiscalYear,
				FiscalPeriod:        p.fiscalPeriod,
				OperatingCashFlow:   fields["operating_cash_flow"],
				InvestingCashFlow:   fields["investing_cash_flow"],
				FinancingCashFlow:   fields["financing_cash_flow"],
				NetCashFlow:         fields["net_cash_flow"],
				DepreciationExpense: fields["depreciation_expense"],
				DividendsPaid:       fields["dividends_paid"],
				ShareRepurchases:    fields["share_repurchases"],
				Meta:                meta,
			})
		}
	}

	out.FilingIndex = collectFilingIndex(doc)
	return out, nil
}

// collectPeriods walks the us-gaap namespace and resolves every distinct
// (fiscal year, fiscal period, report end date) triple into a period with
// a concrete period type, discarding triples whose type cannot be resolved
// unambiguously (spec §4.7 step 2).
func collectPeriods(doc *FactsDocument) []period {
	seen := make(map[periodKey]*period)

	concepts := doc.Facts[namespaceUSGAAP]
	for _, concept := range concepts {
		for _, values := range concept.Units {
			for _, v := range values {
				if v.FY == nil || v.End == "" {
					continue
				}
				fy := *v.FY
				pt, fp, ok := resolvePeriodType(v.FP, v.Form, v.Start, v.End)
				if !ok {
					continue
				}
				key := periodKey{fy, fp, v.End}
				if existing, present := seen[key]; present {
					if existing.form == "" && v.Form != "" {
						existing.form = v.Form
					}
					continue
				}
				seen[key] = &period{
					fiscalYear:   fy,
					fiscalPeriod: fp,
					reportDate:   v.End,
					periodType:   pt,
					form:         v.Form,
				}
			}
		}
	}

	out := make([]period, 0, len(seen))
	for _, p := range seen {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fiscalYear != out[j].fiscalYear {
			return out[i].fiscalYear < out[j].fiscalYear
		}
		return fiscalPeriodRank(out[i]) < fiscalPeriodRank(out[j])
	})
	return out
}

func fiscalPeriodRank(p period) int {
	switch p.fiscalPeriod {
	case store.Q1:
		return 1
	case store.Q2:
		return 2
	case store.Q3:
		return 3
	case store.Q4:
		return 4
	default:
		return 5 // Annual
	}
}

// resolvePeriodType implements the form-tag-first, duration-fallback
// resolution rule (spec §4.7 step 2). A false return means the triple's
// type could not be pinned down without ambiguity, most commonly a
// trailing-twelve-month-length duration with no fiscal period tag — those
// are never materialized as filed statement rows (spec invariant: TTM rows
// come only from the Derivator).
func resolvePeriodType(fpRaw, form string, start *string, end string) (store.PeriodType, store.FiscalPeriod, bool) {
	fp := mapFiscalPeriod(fpRaw)

	switch form {
	case formTenK:
		return store.Annual, store.NoneFP, true
	case formTenQ:
		if fp == store.NoneFP {
			return "", "", false
		}
		return store.Quarterly, fp, true
	}

	if fp != store.NoneFP {
		return store.Quarterly, fp, true
	}
	if fpRaw == "FY" {
		return store.Annual, store.NoneFP, true
	}

	if start == nil {
		return store.Annual, store.NoneFP, true
	}
	days, err := durationDays(*start, end)
	if err != nil {
		return store.Annual, store.NoneFP, true
	}
	switch {
	case days >= 350 && days <= 380:
		return "", "", false // TTM-candidate window, no fiscal period tag: ambiguous, drop
	case days >= 85 && days <= 95:
		return "", "", false // quarter-length window but no fiscal period tag: can't satisfy invariant
	default:
		return store.Annual, store.NoneFP, true
	}
}

func mapFiscalPeriod(fp string) store.FiscalPeriod {
	switch fp {
	case "Q1":
		return store.Q1
	case "Q2":
		return store.Q2
	case "Q3":
		return store.Q3
	case "Q4":
		return store.Q4
	default:
		return store.NoneFP
	}
}

func durationDays(start, end string) (int, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return 0, err
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return 0, err
	}
	return int(e.Sub(s).Hours() / 24), nil
}

// extractKind resolves every field in a mapping list for one period,
// returning the populated subset and how many fields were found.
func extractKind(doc *FactsDocument, fields []fieldMapping, key periodKey) (map[string]*float64, int) {
	out := make(map[string]*float64, len(fields))
	populated := 0
	for _, fm := range fields {
		v, ok := extractField(doc, fm, key)
		out[fm.field] = v
		if ok {
			populated++
		}
	}
	return out, populated
}

// extractField walks a field's ordered concept-name candidates across both
// the us-gaap and dei namespaces (the latter covers entity-level fallbacks
// such as cover-page share counts), returning the first concept with a
// matching value. Spec §4.7 step 4: when a concept reports more than one
// value for the same triple, the most recently filed wins, accession
// number breaking ties.
func extractField(doc *FactsDocument, fm fieldMapping, key periodKey) (*float64, bool) {
	for _, name := range fm.concepts {
		for _, ns := range [...]string{namespaceUSGAAP, namespaceDEI} {
			concept, ok := doc.Facts[ns][name]
			if !ok {
				continue
			}
			values, ok := concept.Units[fm.unit]
			if !ok {
				continue
			}
			var best *FactValue
			for i := range values {
				v := &values[i]
				if v.End != key.reportDate {
					continue
				}
				if v.FY == nil || *v.FY != key.fiscalYear {
					continue
				}
				if mapFiscalPeriod(v.FP) != key.fiscalPeriod {
					continue
				}
				if best == nil || isBetterValue(v, best) {
					best = v
				}
			}
			if best != nil {
				val := best.Val
				if fm.magnitude && val < 0 {
					val = -val
				}
				return &val, true
			}
		}
	}
	return nil, false
}

func isBetterValue(candidate, current *FactValue) bool {
	if candidate.Filed != current.Filed {
		return candidate.Filed > current.Filed
	}
	return candidate.Accn > current.Accn
}

// collectFilingIndex extracts the companion (filing date, report end date,
// form, accession) rows from every concept in the document, restricted to
// 10-K and 10-Q forms (spec §4.9), deduplicated by accession number.
func collectFilingIndex(doc *FactsDocument) []store.FilingIndexEntry {
	seen := make(map[string]store.FilingIndexEntry)
	for _, concepts := range doc.Facts {
		for _, concept := range concepts {
			for _, values := range concept.Units {
				for _, v := range values {
					if v.Form != formTenK && v.Form != formTenQ {
						continue
					}
					if v.Accn == "" || v.Filed == "" || v.End == "" {
						continue
					}
					if _, present := seen[v.Accn]; present {
						continue
					}
					filed, err := time.Parse(dateLayout, v.Filed)
					if err != nil {
						continue
					}
					end, err := time.Parse(dateLayout, v.End)
					if err != nil {
						continue
					}
					seen[v.Accn] = store.FilingIndexEntry{
						FilingDate:    filed,
						ReportEndDate: end,
						Form:          v.Form,
						Accession:     v.Accn,
					}
				}
			}
		}
	}
	out := make([]store.FilingIndexEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingDate.Before(out[j].FilingDate) })
	return out
}
