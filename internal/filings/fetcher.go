// Package filings implements the Filing Fetcher (spec §4.9, C9): fetches a
// security's company facts document, hands it to the taxonomy Extractor,
// and commits the resulting statement records and filing-index entries in
// one transaction, reconciling each statement to its originating filing.
package filings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityrefresh/internal/httpfetch"
	"github.com/aristath/equityrefresh/internal/ratelimit"
	"github.com/aristath/equityrefresh/internal/store"
	"github.com/aristath/equityrefresh/internal/taxonomy"
)

// Endpoint builds the filings request URL and headers for one security's
// CIK (spec §6.4).
type Endpoint func(cik string) (url string, headers map[string]string)

// Config toggles the Filing Fetcher's optional strict-reconciliation mode.
type Config struct {
	// DeleteUnmatched removes statement rows that have no FilingIndex match
	// after reconciliation. Default false: unmatched rows are retained
	// (spec §4.9).
	DeleteUnmatched bool
}

// Fetcher drives the per-security filings refresh.
type Fetcher struct {
	store    *store.Store
	http     *httpfetch.Fetcher
	limiter  *ratelimit.Limiter
	endpoint Endpoint
	cfg      Config
	cache    *taxonomy.Cache
	log      zerolog.Logger
}

func New(s *store.Store, http *httpfetch.Fetcher, limiter *ratelimit.Limiter, endpoint Endpoint, cfg Config, log zerolog.Logger) *Fetcher {
	return &Fetcher{store: s, http: http, limiter: limiter, endpoint: endpoint, cfg: cfg,
		log: log.With().Str("component", "filings").Logger()}
}

// WithCache attaches a parsed-facts-document disk cache, skipping the JSON
// parse (but never the fetch) when a later run observes byte-identical
// facts for the same CIK.
func (f *Fetcher) WithCache(c *taxonomy.Cache) *Fetcher {
	f.cache = c
	return f
}

// Result summarizes one security's filings refresh.
type Result struct {
	SecurityID      int64
	IncomeWritten   int
	BalanceWritten  int
	CashFlowWritten int
}

// RefreshSecurity fetches and commits one security's statement records. An
// HTTP or parse failure is per-security terminal (spec §4.9 failure mode);
// it returns an error and writes nothing.
func (f *Fetcher) RefreshSecurity(ctx context.Context, sec *store.Security) (*Result, error) {
	if sec.CIK == nil || *sec.CIK == "" {
		return nil, fmt.Errorf("filings: security %s has no CIK on record", sec.Symbol)
	}

	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("filings: rate limit acquire for %s: %w", sec.Symbol, err)
	}

	url, headers := f.endpoint(*sec.CIK)
	body, _, err := f.http.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("filings: fetch facts document for %s: %w", sec.Symbol, err)
	}

	doc, err := f.parse(*sec.CIK, body)
	if err != nil {
		return nil, fmt.Errorf("filings: parse facts document for %s: %w", sec.Symbol, err)
	}

	extracted, err := taxonomy.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("filings: extract statements for %s: %w", sec.Symbol, err)
	}

	index := newFilingIndex(extracted.FilingIndex)
	for i := range extracted.Income {
		reconcile(index, extracted.Income[i].PeriodType, extracted.Income[i].ReportDate, &extracted.Income[i].Meta)
	}
	for i := range extracted.Balance {
		reconcile(index, extracted.Balance[i].PeriodType, extracted.Balance[i].ReportDate, &extracted.Balance[i].Meta)
	}
	for i := range extracted.CashFlow {
		reconcile(index, extracted.CashFlow[i].PeriodType, extracted.CashFlow[i].ReportDate, &extracted.CashFlow[i].Meta)
	}

	res := &Result{SecurityID: sec.ID}
	err = f.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := f.store.UpsertFilingIndex(ctx, tx, sec.ID, extracted.FilingIndex); err != nil {
			return err
		}
		if err := f.store.UpsertIncomeStatements(ctx, tx, sec.ID, extracted.Income); err != nil {
			return err
		}
		if err := f.store.UpsertBalanceSheets(ctx, tx, sec.ID, extracted.Balance); err != nil {
			return err
		}
		if err := f.store.UpsertCashFlowStatements(ctx, tx, sec.ID, extracted.CashFlow); err != nil {
			return err
		}

		if f.cfg.DeleteUnmatched {
			if err := f.store.DeleteUnmatchedStatements(ctx, tx, "income", sec.ID); err != nil {
				return err
			}
			if err := f.store.DeleteUnmatchedStatements(ctx, tx, "balance", sec.ID); err != nil {
				return err
			}
			if err := f.store.DeleteUnmatchedStatements(ctx, tx, "cash_flow", sec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filings: commit statements for %s: %w", sec.Symbol, err)
	}

	res.IncomeWritten = len(extracted.Income)
	res.BalanceWritten = len(extracted.Balance)
	res.CashFlowWritten = len(extracted.CashFlow)
	return res, nil
}

// parse decodes a facts document, consulting the disk cache first when one
// is attached. A cache miss or disabled cache falls through to a normal
// JSON decode, which is then written back to the cache for next time.
func (f *Fetcher) parse(cik string, body []byte) (*taxonomy.FactsDocument, error) {
	if f.cache == nil {
		var doc taxonomy.FactsDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}

	hash := taxonomy.HashBody(body)
	if doc, ok := f.cache.Get(cik, hash); ok {
		return doc, nil
	}

	var doc taxonomy.FactsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if err := f.cache.Put(cik, hash, &doc); err != nil {
		f.log.Warn().Err(err).Str("cik", cik).Msg("failed to write facts document to cache")
	}
	return &doc, nil
}

// filingIndex groups a document's companion filing-index rows by report
// end date, so reconciliation can run in memory against the rows about to
// be written rather than re-querying the Store mid-transaction.
type filingIndex map[time.Time][]store.FilingIndexEntry

func newFilingIndex(entries []store.FilingIndexEntry) filingIndex {
	idx := make(filingIndex, len(entries))
	for _, e := range entries {
		idx[e.ReportEndDate] = append(idx[e.ReportEndDate], e)
	}
	return idx
}

// reconcile finds the best FilingIndex match for one statement record's
// report-end-date, preferring form "10-K" when the record is Annual and
// "10-Q" otherwise (spec §4.9). Unmatched records are left with absent
// filing metadata.
func reconcile(idx filingIndex, periodType store.PeriodType, reportDate time.Time, meta *store.StatementMeta) {
	candidates := idx[reportDate]
	if len(candidates) == 0 {
		return
	}
	preferred := "10-Q"
	if periodType == store.Annual {
		preferred = "10-K"
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterMatch(c, best, preferred) {
			best = c
		}
	}

	filed := best.FilingDate
	accn := best.Accession
	form := best.Form
	meta.FiledDate = &filed
	meta.Accession = &accn
	meta.Form = &form
}

func betterMatch(candidate, current store.FilingIndexEntry, preferredForm string) bool {
	cMatch := candidate.Form == preferredForm
	curMatch := current.Form == preferredForm
	if cMatch != curMatch {
		return cMatch
	}
	return candidate.FilingDate.After(current.FilingDate)
}
