// Package prices implements the Price Fetcher (spec §4.8, C8): per-symbol
// incremental OHLCV ingestion, sliced against the Planner's missing ranges.
package prices

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityrefresh/internal/calendar"
	"github.com/aristath/equityrefresh/internal/httpfetch"
	"github.com/aristath/equityrefresh/internal/planner"
	"github.com/aristath/equityrefresh/internal/ratelimit"
	"github.com/aristath/equityrefresh/internal/store"
)

// rawResponse is the brokerage daily-bars response shape (spec §6.3): a
// meta section and a time-series section keyed by date string, decimal
// fields reported as strings.
type rawResponse struct {
	MetaData   map[string]any            `json:"meta"`
	TimeSeries map[string]rawBar         `json:"time_series"`
}

type rawBar struct {
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// Endpoint builds the brokerage request URL and auth header for one
// (symbol, range) fetch. Supplied by the caller so the package stays
// agnostic of the concrete brokerage API and its token-refresh mechanism
// (spec §6.4: "token refresh handled by an external collaborator").
type Endpoint func(symbol string, start, end time.Time) (url string, headers map[string]string)

// Fetcher drives the per-symbol price refresh.
type Fetcher struct {
	store    *store.Store
	http     *httpfetch.Fetcher
	limiter  *ratelimit.Limiter
	endpoint Endpoint
	log      zerolog.Logger
}

func New(s *store.Store, http *httpfetch.Fetcher, limiter *ratelimit.Limiter, endpoint Endpoint, log zerolog.Logger) *Fetcher {
	return &Fetcher{store: s, http: http, limiter: limiter, endpoint: endpoint, log: log.With().Str("component", "prices").Logger()}
}

// Result summarizes one symbol's fetch for the Orchestrator's session
// bookkeeping.
type Result struct {
	SecurityID   int64
	RecordsWritten int
	MaxDate      *time.Time
	Skipped      bool
	Warnings     []string
}

// RefreshSymbol runs the Planner, fetches each missing range, and commits
// the resulting bars in one transaction per symbol (spec §4.8).
func (f *Fetcher) RefreshSymbol(ctx context.Context, sec *store.Security, defaultStart, end time.Time) (*Result, error) {
	plan, err := planner.Compute(ctx, f.store, sec, defaultStart, end)
	if err != nil {
		return nil, fmt.Errorf("prices: plan for %s: %w", sec.Symbol, err)
	}
	if plan.Fully() {
		return &Result{SecurityID: sec.ID, Skipped: true}, nil
	}

	res := &Result{SecurityID: sec.ID}
	var allBars []store.DailyBar

	for _, rng := range plan.MissingRanges {
		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("prices: rate limit acquire for %s: %w", sec.Symbol, err)
		}

		url, headers := f.endpoint(sec.Symbol, rng.Start, rng.End)
		body, status, err := f.http.Get(ctx, url, headers)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("range %s..%s: %v", fmtDate(rng.Start), fmtDate(rng.End), err))
			continue
		}

		bars, warn, err := parseBars(body, sec.ID, rng.Start, rng.End)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("range %s..%s: malformed response (status %d): %v", fmtDate(rng.Start), fmtDate(rng.End), status, err))
			continue
		}
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		allBars = append(allBars, bars...)
	}

	if len(allBars) == 0 {
		return res, nil
	}

	earliest, latest := allBars[0].Date, allBars[0].Date
	for _, b := range allBars[1:] {
		if b.Date.Before(earliest) {
			earliest = b.Date
		}
		if b.Date.After(latest) {
			latest = b.Date
		}
	}
	if sec.EarliestDate != nil && sec.EarliestDate.Before(earliest) {
		earliest = *sec.EarliestDate
	}
	if sec.LatestDate != nil && sec.LatestDate.After(latest) {
		latest = *sec.LatestDate
	}
	totalDays := len(calendar.TradingDays(earliest, latest))

	err = f.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := f.store.UpsertDailyBars(ctx, tx, sec.ID, allBars); err != nil {
			return err
		}
		return f.store.UpdateSecurityCoverage(ctx, tx, sec.ID, &earliest, &latest, totalDays)
	})
	if err != nil {
		return nil, fmt.Errorf("prices: commit bars for %s: %w", sec.Symbol, err)
	}

	res.RecordsWritten = len(allBars)
	res.MaxDate = &latest
	return res, nil
}

// parseBars decodes the brokerage response, discards malformed or
// out-of-range bars, and sorts the remainder by date ascending (spec §6.3,
// §4.8 failure modes).
func parseBars(body []byte, securityID int64, rangeStart, rangeEnd time.Time) ([]store.DailyBar, string, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", fmt.Errorf("decode time series: %w", err)
	}
	if len(raw.TimeSeries) == 0 {
		return nil, fmt.Sprintf("empty response for non-empty missing range %s..%s", fmtDate(rangeStart), fmtDate(rangeEnd)), nil
	}

	bars := make([]store.DailyBar, 0, len(raw.TimeSeries))
	malformed := 0
	for dateStr, rb := range raw.TimeSeries {
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			malformed++
			continue
		}
		if d.Before(rangeStart) || d.After(rangeEnd) {
			continue // per-bar date outside requested range: discard
		}
		open, errO := strconv.ParseFloat(rb.Open, 64)
		high, errH := strconv.ParseFloat(rb.High, 64)
		low, errL := strconv.ParseFloat(rb.Low, 64)
		close_, errC := strconv.ParseFloat(rb.Close, 64)
		volume, errV := strconv.ParseInt(rb.Volume, 10, 64)
		if errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
			malformed++
			continue
		}
		if !calendar.IsTradingDay(d) {
			continue
		}
		bars = append(bars, store.DailyBar{
			SecurityID: securityID, Date: d, Open: open, High: high, Low: low, Close: close_, Volume: volume,
		})
	}

	var warn string
	if malformed > 0 {
		warn = fmt.Sprintf("skipped %d malformed bar(s) in range %s..%s", malformed, fmtDate(rangeStart), fmtDate(rangeEnd))
	}
	sortBarsByDate(bars)
	return bars, warn, nil
}

func sortBarsByDate(bars []store.DailyBar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].Date.Before(bars[j-1].Date); j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}

func fmtDate(t time.Time) string { return t.Format("2006-01-02") }
