// Package engine implements the Orchestrator (spec §4.12, C12): mode-driven
// step sequencing, bounded per-step worker pools, progress-tick writes, and
// session/error aggregation across the Freshness Checker, Planner, Price
// Fetcher, Filing Fetcher, and the two Derivators.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/equityrefresh/internal/derive"
	"github.com/aristath/equityrefresh/internal/filings"
	"github.com/aristath/equityrefresh/internal/freshness"
	"github.com/aristath/equityrefresh/internal/prices"
	"github.com/aristath/equityrefresh/internal/store"
)

// Mode selects the set of steps a refresh session runs (spec §4.12).
type Mode string

const (
	ModeMarket     Mode = "market"
	ModeRatios     Mode = "ratios"
	ModeFinancials Mode = "financials"
)

// Step names a pipeline stage; each corresponds to one Freshness Checker
// source (spec §4.5, §4.12).
type Step string

const (
	StepDailyPrices         Step = "daily_prices"
	StepPERatios            Step = "pe_ratios"
	StepCompanyMetadata     Step = "company_metadata"
	StepPSEVSRatios         Step = "ps_evs_ratios"
	StepFinancialStatements Step = "financial_statements"
)

// stepsForMode returns the ordered step list for a mode (spec §4.12:
// "Market: {daily_prices, pe_ratios, company_metadata}. Ratios: Market ∪
// {ps_evs_ratios}. Financials: Ratios ∪ {financial_statements}."). Steps
// run in this order; a later step only ever sees the committed output of
// an earlier one in the same session, so financial_statements — appended
// last per the spec's literal union order — feeds the *next* session's
// ratio computation rather than this one's.
func stepsForMode(mode Mode) []Step {
	market := []Step{StepDailyPrices, StepPERatios, StepCompanyMetadata}
	switch mode {
	case ModeMarket:
		return market
	case ModeRatios:
		return append(market, StepPSEVSRatios)
	case ModeFinancials:
		return append(append(market, StepPSEVSRatios), StepFinancialStatements)
	default:
		return market
	}
}

func (s Step) freshnessSource() freshness.Source {
	switch s {
	case StepDailyPrices:
		return freshness.SourceDailyPrices
	case StepPERatios:
		return freshness.SourcePERatios
	case StepCompanyMetadata:
		return freshness.SourceCompanyMetadata
	case StepPSEVSRatios:
		return freshness.SourcePSEVSRatios
	case StepFinancialStatements:
		return freshness.SourceFinancialStatements
	default:
		return ""
	}
}

// Config tunes worker-pool sizing and batching (spec §4.12 step 4-5, §5).
type Config struct {
	DefaultStart      time.Time
	PriceWorkers      int           // default 3
	FilingWorkers     int           // default 8
	DerivationWorkers int           // default 10, no network I/O
	BatchSize         int           // default 50
	TickInterval      time.Duration // default 3s
	Force             map[string]bool
}

func (c Config) withDefaults() Config {
	if c.PriceWorkers <= 0 {
		c.PriceWorkers = 3
	}
	if c.FilingWorkers <= 0 {
		c.FilingWorkers = 8
	}
	if c.DerivationWorkers <= 0 {
		c.DerivationWorkers = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 3 * time.Second
	}
	if c.Force == nil {
		c.Force = map[string]bool{}
	}
	return c
}

// Orchestrator drives refresh sessions end to end.
type Orchestrator struct {
	store   *store.Store
	prices  *prices.Fetcher
	filings *filings.Fetcher
	ttm     *derive.TTM
	ratios  *derive.Ratios
	cfg     Config
	log     zerolog.Logger
}

func New(s *store.Store, p *prices.Fetcher, fl *filings.Fetcher, ttm *derive.TTM, r *derive.Ratios, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: s, prices: p, filings: fl, ttm: ttm, ratios: r, cfg: cfg.withDefaults(),
		log: log.With().Str("component", "engine").Logger()}
}

// StepResult summarizes one step's outcome for session bookkeeping.
type StepResult struct {
	Step       Step
	Succeeded  int
	Failed     int
	Skipped    bool
	LatestDate *time.Time
	Errors     *multierror.Error
}

// RunResult summarizes a completed (or cancelled) session.
type RunResult struct {
	SessionID    string
	Status       store.SessionStatus
	StepResults  []StepResult
	TotalRecords int
}

// Run executes one refresh session of the given mode. symbols, if
// non-empty, restricts enumeration to those tickers (spec §4.12 step 3);
// otherwise the tracked-universe membership flag is authoritative (spec
// invariant 6). cancel, if closed, requests cooperative cancellation at
// the next batch boundary (spec §4.12 Cancellation).
func (o *Orchestrator) Run(ctx context.Context, mode Mode, symbols []string, cancel <-chan struct{}) (*RunResult, error) {
	sessionID := uuid.NewString()
	steps := stepsForMode(mode)
	now := time.Now().UTC()

	sess := store.RefreshSession{
		SessionID: sessionID, Mode: string(mode), Initiator: "cli",
		StartTime: now, TotalSteps: len(steps), Status: store.SessionRunning,
		SourcesRefreshedJSON: marshalSources(nil), SourcesFailedJSON: marshalSources(nil),
	}
	if err := o.store.UpsertRefreshSession(ctx, nil, sess); err != nil {
		return nil, fmt.Errorf("engine: create session %s: %w", sessionID, err)
	}

	report, err := freshness.Check(ctx, o.store, now)
	if err != nil {
		return nil, fmt.Errorf("engine: freshness check: %w", err)
	}

	securities, err := o.enumerate(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("engine: enumerate securities: %w", err)
	}

	result := &RunResult{SessionID: sessionID}
	allFailed := true
	anyFailed := false
	var sourcesRefreshed, sourcesFailed []string

	// sessMu guards sess's fields against the concurrent progress-ticker
	// goroutine runStep starts below, which reads sess.CompletedSteps and
	// sess.TotalRecords on every tick while Run is still free to mutate
	// them here between steps (spec §5 tolerates the persisted outcome
	// racing last-writer-wins, but the in-memory access itself must not).
	var sessMu sync.Mutex

	for _, step := range steps {
		select {
		case <-cancel:
			sessMu.Lock()
			sess.Status = store.SessionCancelled
			endTime := time.Now().UTC()
			sess.EndTime = &endTime
			sess.SourcesRefreshedJSON = marshalSources(sourcesRefreshed)
			sess.SourcesFailedJSON = marshalSources(sourcesFailed)
			snapshot := sess
			sessMu.Unlock()
			_ = o.store.UpsertRefreshSession(ctx, nil, snapshot)
			result.Status = store.SessionCancelled
			return result, nil
		default:
		}

		src := step.freshnessSource()
		if r, ok := report.Sources[src]; ok && r.Status == freshness.Current && !o.cfg.Force[string(src)] {
			sessMu.Lock()
			sess.CompletedSteps++
			cur := string(step)
			sess.CurrentStepName = &cur
			snapshot := sess
			sessMu.Unlock()
			_ = o.store.UpsertRefreshSession(ctx, nil, snapshot)
			result.StepResults = append(result.StepResults, StepResult{Step: step, Skipped: true})
			allFailed = false
			continue
		}

		sr := o.runStep(ctx, step, securities, cancel, &sess, &sessMu, sessionID)
		result.StepResults = append(result.StepResults, sr)
		result.TotalRecords += sr.Succeeded

		if sr.Succeeded > 0 {
			allFailed = false
			sourcesRefreshed = append(sourcesRefreshed, string(src))
		}
		if sr.Failed > 0 {
			anyFailed = true
			sourcesFailed = append(sourcesFailed, string(src))
		}

		ds := store.DataStatus{Source: string(src), Records: sr.Succeeded}
		now2 := time.Now().UTC()
		ds.LastRefresh = &now2
		ds.LatestDate = sr.LatestDate
		if sr.Errors != nil && sr.Errors.Len() > 0 {
			msg := sr.Errors.Error()
			ds.LastError = &msg
		}
		if err := o.store.UpsertDataStatus(ctx, nil, ds); err != nil {
			o.log.Warn().Err(err).Str("step", string(step)).Msg("failed to write data status")
		}

		sessMu.Lock()
		sess.CompletedSteps++
		cur := string(step)
		sess.CurrentStepName = &cur
		sess.TotalRecords += sr.Succeeded
		sess.SourcesRefreshedJSON = marshalSources(sourcesRefreshed)
		sess.SourcesFailedJSON = marshalSources(sourcesFailed)
		snapshot := sess
		sessMu.Unlock()
		if err := o.store.UpsertRefreshSession(ctx, nil, snapshot); err != nil {
			o.log.Warn().Err(err).Msg("failed to write session progress")
		}
	}

	sessMu.Lock()
	endTime := time.Now().UTC()
	sess.EndTime = &endTime
	switch {
	case allFailed && len(steps) > 0:
		sess.Status = store.SessionFailed
	default:
		sess.Status = store.SessionCompleted
	}
	snapshot := sess
	sessMu.Unlock()
	if err := o.store.UpsertRefreshSession(ctx, nil, snapshot); err != nil {
		return nil, fmt.Errorf("engine: finalize session %s: %w", sessionID, err)
	}

	result.Status = snapshot.Status
	if anyFailed && snapshot.Status == store.SessionCompleted {
		// partial failure: session still completed, caller maps this to exit code 1
	}
	return result, nil
}

// marshalSources JSON-encodes a step's accumulated source names for the
// RefreshSession row's sources_refreshed_json/sources_failed_json columns
// (spec §3, §4.12 step 8: "per-step successes/failures array"). Encoding
// failures never happen for a []string but are handled defensively rather
// than ignored, falling back to an empty array literal.
func marshalSources(sources []string) string {
	if len(sources) == 0 {
		return "[]"
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (o *Orchestrator) enumerate(ctx context.Context, symbols []string) ([]store.Security, error) {
	if len(symbols) == 0 {
		return o.store.ListUniverseSecurities(ctx)
	}
	out := make([]store.Security, 0, len(symbols))
	for _, sym := range symbols {
		sec, err := o.store.GetSecurityBySymbol(ctx, sym)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			out = append(out, *sec)
		}
	}
	return out, nil
}

// runStep dispatches one step's per-symbol work across a bounded worker
// pool, draining one batch at a time, with a background ticker writing
// progress to the session row every TickInterval (spec §4.12 steps 4-6).
func (o *Orchestrator) runStep(ctx context.Context, step Step, securities []store.Security, cancel <-chan struct{}, sess *store.RefreshSession, sessMu *sync.Mutex, sessionID string) StepResult {
	var succeeded, failed int64
	var errs multierror.Error
	var errMu sync.Mutex
	var latestDate *time.Time
	var dateMu sync.Mutex

	recordLatest := func(d *time.Time) {
		if d == nil {
			return
		}
		dateMu.Lock()
		defer dateMu.Unlock()
		if latestDate == nil || d.After(*latestDate) {
			latestDate = d
		}
	}
	recordErr := func(symbol string, err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs.Errors = append(errs.Errors, fmt.Errorf("%s: %w", symbol, err))
	}

	workers := o.workersFor(step)

	tickCtx, stopTick := context.WithCancel(ctx)
	defer stopTick()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				sessMu.Lock()
				snapshot := *sess
				sessMu.Unlock()
				snapshot.TotalRecords += int(atomic.LoadInt64(&succeeded))
				_ = o.store.UpsertRefreshSession(context.Background(), nil, snapshot)
			}
		}
	}()

	for start := 0; start < len(securities); start += o.cfg.BatchSize {
		select {
		case <-cancel:
			stopTick()
			wg.Wait()
			return StepResult{Step: step, Succeeded: int(succeeded), Failed: int(failed), Errors: &errs, LatestDate: latestDate}
		default:
		}

		end := start + o.cfg.BatchSize
		if end > len(securities) {
			end = len(securities)
		}
		batch := securities[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range batch {
			sec := batch[i]
			g.Go(func() error {
				d, err := o.runOne(gctx, step, &sec)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					recordErr(sec.Symbol, err)
					return nil // per-symbol failures do not abort the batch
				}
				atomic.AddInt64(&succeeded, 1)
				recordLatest(d)
				return nil
			})
		}
		_ = g.Wait()
	}

	stopTick()
	wg.Wait()
	return StepResult{Step: step, Succeeded: int(succeeded), Failed: int(failed), Errors: &errs, LatestDate: latestDate}
}

func (o *Orchestrator) workersFor(step Step) int {
	switch step {
	case StepDailyPrices:
		return o.cfg.PriceWorkers
	case StepFinancialStatements:
		return o.cfg.FilingWorkers
	default:
		return o.cfg.DerivationWorkers
	}
}

// runOne performs one symbol's work for a step, returning the most recent
// date the work produced (if any), for DataStatus bookkeeping.
func (o *Orchestrator) runOne(ctx context.Context, step Step, sec *store.Security) (*time.Time, error) {
	switch step {
	case StepDailyPrices:
		res, err := o.prices.RefreshSymbol(ctx, sec, o.cfg.DefaultStart, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		return res.MaxDate, nil

	case StepFinancialStatements:
		if _, err := o.filings.RefreshSecurity(ctx, sec); err != nil {
			return nil, err
		}
		row, err := o.ttm.Derive(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			d := row.ReportDate
			return &d, nil
		}
		return nil, nil

	case StepPERatios, StepPSEVSRatios:
		row, err := o.ratios.Derive(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			d := row.Date
			return &d, nil
		}
		return nil, nil

	case StepCompanyMetadata:
		// No dedicated metadata source is fetched over the network; this
		// step only confirms the security's tracked-universe membership is
		// current, which UpsertSecurity already keeps authoritative.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown step %q", step)
	}
}
