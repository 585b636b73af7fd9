// Package cmd implements the CLI surface of spec §6.5, built on
// github.com/spf13/cobra the way the pack's penny-vault/pvdata and
// NimbleMarkets/dbn-go CLIs structure a multi-command data-refresh tool:
// a root command wiring global flags, one file per subcommand.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/equityrefresh/internal/config"
	"github.com/aristath/equityrefresh/internal/store"
	"github.com/aristath/equityrefresh/pkg/logger"
)

var (
	cfg   *config.Config
	log   zerolog.Logger
	db    *store.Store
	flags struct {
		workers   int
		batchSize int
		symbols   []string
		force     []string
		verbose   bool
	}
)

// Exit codes (spec §6.5).
const (
	ExitSuccess       = 0
	ExitPartialFailure = 1
	ExitHardFailure   = 2
	ExitInvalidArgs   = 3
)

var rootCmd = &cobra.Command{
	Use:   "equityrefresh",
	Short: "equityrefresh maintains a local store of equity fundamentals and prices",
	Long: `equityrefresh incrementally refreshes a local SQLite store of U.S. equity
daily prices, financial statements, and derived valuation ratios from a
regulatory filings archive and a brokerage market-data API.`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, "configuration error:", err)
			os.Exit(ExitInvalidArgs)
		}
		level := cfg.LogLevel
		if flags.verbose {
			level = "debug"
		}
		log = logger.New(logger.Config{Level: level, Pretty: true})

		db, err = store.Open(store.Config{Path: cfg.DatabasePath})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(c *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

// Execute runs the root command, exiting the process with the code the
// executed subcommand set via os.Exit (subcommands never return a plain
// error for exit-code-bearing outcomes; Cobra's default non-zero exit
// only covers usage/parse failures).
func Execute() {
	rootCmd.PersistentFlags().IntVar(&flags.workers, "workers", 0, "override worker pool size for this run")
	rootCmd.PersistentFlags().IntVar(&flags.batchSize, "batch-size", 0, "override batch size for this run")
	rootCmd.PersistentFlags().StringSliceVar(&flags.symbols, "symbols", nil, "restrict to these symbols (comma-separated)")
	rootCmd.PersistentFlags().StringSliceVar(&flags.force, "force", nil, "force refresh of these sources even if current")
	rootCmd.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidArgs)
	}
}
