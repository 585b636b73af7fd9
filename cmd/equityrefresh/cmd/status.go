package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"

	"github.com/aristath/equityrefresh/internal/freshness"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report per-source freshness and screening readiness",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		report, err := freshness.Check(ctx, db, time.Now().UTC())
		if err != nil {
			fmt.Fprintln(os.Stderr, "status check failed:", err)
			os.Exit(ExitHardFailure)
		}

		anyError := false
		for _, src := range []freshness.Source{
			freshness.SourceDailyPrices, freshness.SourceFinancialStatements,
			freshness.SourcePERatios, freshness.SourcePSEVSRatios, freshness.SourceCompanyMetadata,
		} {
			sr := report.Sources[src]
			staleness := "n/a"
			if sr.StalenessDays >= 0 {
				staleness = humanize.Time(time.Now().Add(-time.Duration(sr.StalenessDays) * 24 * time.Hour))
			}
			fmt.Printf("%-24s %-8s priority=%-8s staleness=%s  %s\n", src, sr.Status, sr.Priority, staleness, sr.Message)
			if sr.Status == freshness.Error {
				anyError = true
			}
		}
		fmt.Println()
		fmt.Printf("value screening ready:   %v\n", report.ValueScreeningReady)
		fmt.Printf("pe ratio screening ready: %v\n", report.PERatioScreeningReady)

		if usage, err := disk.Usage(cfg.DataDir); err == nil {
			fmt.Printf("data dir free space:     %s of %s\n", humanize.Bytes(usage.Free), humanize.Bytes(usage.Total))
		}

		if anyError {
			os.Exit(ExitPartialFailure)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
