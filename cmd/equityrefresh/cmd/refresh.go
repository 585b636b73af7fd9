package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/equityrefresh/internal/derive"
	"github.com/aristath/equityrefresh/internal/engine"
	"github.com/aristath/equityrefresh/internal/filings"
	"github.com/aristath/equityrefresh/internal/httpfetch"
	"github.com/aristath/equityrefresh/internal/prices"
	"github.com/aristath/equityrefresh/internal/ratelimit"
	"github.com/aristath/equityrefresh/internal/scheduler"
	"github.com/aristath/equityrefresh/internal/statusserver"
	"github.com/aristath/equityrefresh/internal/storebackup"
	"github.com/aristath/equityrefresh/internal/store"
	"github.com/aristath/equityrefresh/internal/taxonomy"
)

var (
	refreshDaemonSchedule string
	refreshStatusAddr     string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <mode>",
	Short: "Run a refresh session (mode: market, financials, ratios)",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		mode, err := parseMode(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitInvalidArgs)
		}

		orchestrator := buildOrchestrator()

		if refreshDaemonSchedule != "" {
			return runDaemon(c.Context(), mode, orchestrator)
		}
		return runOnce(c.Context(), mode, orchestrator)
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshDaemonSchedule, "daemon", "", "run forever, re-triggering on this cron schedule instead of once")
	refreshCmd.Flags().StringVar(&refreshStatusAddr, "http-status-addr", "", "listen address for the optional read-only status endpoint in daemon mode (overrides ENGINE_STATUS_ADDR)")
	rootCmd.AddCommand(refreshCmd)
}

func parseMode(raw string) (engine.Mode, error) {
	switch raw {
	case "market":
		return engine.ModeMarket, nil
	case "financials":
		return engine.ModeFinancials, nil
	case "ratios":
		return engine.ModeRatios, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of market, financials, ratios", raw)
	}
}

func buildOrchestrator() *engine.Orchestrator {
	filingsHTTP := httpfetch.New(httpfetch.DefaultConfig(cfg.FilingsUserAgent), log)
	brokerageHTTP := httpfetch.New(httpfetch.DefaultConfig("equityrefresh/1.0"), log)

	filingsLimiter := ratelimit.New(ratelimit.Filings, cfg.FilingsRateRPS, cfg.FilingsRateBurst)
	brokerageLimiter := ratelimit.New(ratelimit.Brokerage, cfg.BrokerageRateRPS, cfg.BrokerageRateBurst)

	priceFetcher := prices.New(db, brokerageHTTP, brokerageLimiter, brokerageEndpoint(cfg.BrokerageAPIBaseURL, cfg.BrokerageAPIToken), log)
	filingFetcher := filings.New(db, filingsHTTP, filingsLimiter, filingsEndpoint(cfg.FilingsAPIBaseURL, cfg.FilingsUserAgent), filings.Config{DeleteUnmatched: false}, log)
	if cache, err := taxonomy.NewCache(filepath.Join(cfg.DataDir, "taxonomy_cache"), log); err != nil {
		log.Warn().Err(err).Msg("taxonomy cache disabled")
	} else {
		filingFetcher = filingFetcher.WithCache(cache)
	}

	ttm := derive.NewTTM(db)
	ratios := derive.NewRatios(db)

	engineCfg := engine.Config{DefaultStart: cfg.DefaultHistoryStart}
	if flags.workers > 0 {
		engineCfg.PriceWorkers = flags.workers
		engineCfg.FilingWorkers = flags.workers
	} else {
		engineCfg.PriceWorkers = cfg.PriceWorkerCount
		engineCfg.FilingWorkers = cfg.FilingsWorkerCount
	}
	if flags.batchSize > 0 {
		engineCfg.BatchSize = flags.batchSize
	} else {
		engineCfg.BatchSize = cfg.FilingsBatchSize
	}
	if len(flags.force) > 0 {
		engineCfg.Force = map[string]bool{}
		for _, src := range flags.force {
			engineCfg.Force[src] = true
		}
	}

	return engine.New(db, priceFetcher, filingFetcher, ttm, ratios, engineCfg, log)
}

func runOnce(ctx context.Context, mode engine.Mode, orchestrator *engine.Orchestrator) error {
	cancel := make(chan struct{})

	result, err := orchestrator.Run(ctx, mode, flags.symbols, cancel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "refresh failed:", err)
		os.Exit(ExitHardFailure)
	}

	anyFailed := false
	for _, sr := range result.StepResults {
		if sr.Skipped {
			fmt.Printf("%-24s skipped (current)\n", sr.Step)
			continue
		}
		fmt.Printf("%-24s succeeded=%d failed=%d\n", sr.Step, sr.Succeeded, sr.Failed)
		if sr.Failed > 0 {
			anyFailed = true
		}
	}
	fmt.Printf("session %s: %s, %d total records\n", result.SessionID, result.Status, result.TotalRecords)

	maybeBackup(ctx, result.SessionID)

	switch {
	case result.Status == store.SessionFailed:
		os.Exit(ExitHardFailure)
	case anyFailed:
		os.Exit(ExitPartialFailure)
	}
	return nil
}

func runDaemon(ctx context.Context, mode engine.Mode, orchestrator *engine.Orchestrator) error {
	sched := scheduler.New(log)
	job := &refreshJob{ctx: ctx, mode: mode, orchestrator: orchestrator}
	if err := sched.AddJob(refreshDaemonSchedule, job); err != nil {
		return fmt.Errorf("register daemon schedule: %w", err)
	}

	statusAddr := cfg.StatusAddr
	if refreshStatusAddr != "" {
		statusAddr = refreshStatusAddr
	}
	if statusAddr != "" {
		srv := statusserver.New(db, cfg.DataDir, log)
		go func() {
			log.Info().Str("addr", statusAddr).Msg("starting status server")
			if err := http.ListenAndServe(statusAddr, srv.Handler()); err != nil {
				log.Error().Err(err).Msg("status server exited")
			}
		}()
	}

	sched.Start()
	log.Info().Str("schedule", refreshDaemonSchedule).Str("mode", string(mode)).Msg("daemon started")
	<-ctx.Done()
	sched.Stop()
	return nil
}

type refreshJob struct {
	ctx          context.Context
	mode         engine.Mode
	orchestrator *engine.Orchestrator
}

func (j *refreshJob) Name() string { return "refresh_" + string(j.mode) }

func (j *refreshJob) Run() error {
	cancel := make(chan struct{})
	result, err := j.orchestrator.Run(j.ctx, j.mode, flags.symbols, cancel)
	if err != nil {
		return err
	}
	maybeBackup(j.ctx, result.SessionID)
	return nil
}

func maybeBackup(ctx context.Context, sessionID string) {
	if cfg.R2BackupBucket == "" {
		return
	}
	svc, err := storebackup.New(storebackup.Config{
		Bucket: cfg.R2BackupBucket, Endpoint: cfg.R2BackupEndpoint, Region: cfg.R2BackupRegion,
		AccessKey: cfg.R2BackupAccessKey, SecretKey: cfg.R2BackupSecretKey,
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build backup service")
		return
	}
	if err := svc.Upload(ctx, sessionID, cfg.DatabasePath); err != nil {
		log.Warn().Err(err).Msg("store backup failed")
	}
}
