package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/equityrefresh/internal/planner"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the Planner's update plan per symbol without fetching anything",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()

		securities, err := enumerateSecurities(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "preview failed:", err)
			os.Exit(ExitHardFailure)
		}
		if len(securities) == 0 {
			fmt.Println("no tracked-universe securities to preview")
			os.Exit(ExitHardFailure)
		}

		now := time.Now().UTC()
		for i := range securities {
			sec := securities[i]
			plan, err := planner.Compute(ctx, db, &sec, cfg.DefaultHistoryStart, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: plan failed: %v\n", sec.Symbol, err)
				continue
			}
			fmt.Printf("%-8s coverage=%6.2f%% missing=%d/%d range=[%s..%s]\n",
				sec.Symbol, plan.CoveragePercent, plan.MissingCount, plan.ExpectedCount,
				plan.EffectiveStart.Format("2006-01-02"), plan.EffectiveEnd.Format("2006-01-02"))
			for _, r := range plan.MissingRanges {
				fmt.Printf("    missing %s .. %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}
