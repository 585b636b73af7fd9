package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/equityrefresh/internal/screen/stats"
	"github.com/aristath/equityrefresh/internal/store"
)

// coverageCmd reports, per security, which valuation-ratio inputs (spec
// §4.11) are currently absent, so an operator can see why a
// completeness score is low — a read-only analog of the original's
// improve-piotroski-data-coverage.rs sweep, narrowed to diagnostics.
var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report per-security valuation-ratio input gaps",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		securities, err := db.ListUniverseSecurities(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "coverage check failed:", err)
			os.Exit(ExitHardFailure)
		}

		peQuery := stats.NewPEQuery(db)

		for _, sec := range securities {
			ratios, err := db.GetLatestValuationRatios(ctx, sec.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: coverage lookup failed: %v\n", sec.Symbol, err)
				continue
			}
			if ratios == nil {
				fmt.Printf("%-8s no valuation ratios computed yet\n", sec.Symbol)
				continue
			}

			missing := missingInputs(ratios)
			if len(missing) == 0 {
				fmt.Printf("%-8s complete (completeness=%.0f)\n", sec.Symbol, ratios.Completeness)
			} else {
				fmt.Printf("%-8s completeness=%.0f missing=%v\n", sec.Symbol, ratios.Completeness, missing)
			}

			if pos, err := peQuery.Position(ctx, sec.ID); err == nil && pos.Current != nil && pos.InBottomDecile {
				fmt.Printf("%-8s P/E %.1f is in its own historical bottom decile (z=%.2f)\n", sec.Symbol, *pos.Current, pos.ZScore)
			}
		}
		return nil
	},
}

func missingInputs(r *store.ValuationRatios) []string {
	var missing []string
	if r.MarketCap == nil {
		missing = append(missing, "market_cap")
	}
	if r.EnterpriseValue == nil {
		missing = append(missing, "enterprise_value")
	}
	if r.PSRatio == nil {
		missing = append(missing, "ps_ratio")
	}
	if r.EVSRatio == nil {
		missing = append(missing, "evs_ratio")
	}
	if r.PBRatio == nil {
		missing = append(missing, "pb_ratio")
	}
	if r.PCFRatio == nil {
		missing = append(missing, "pcf_ratio")
	}
	if r.PERatio == nil {
		missing = append(missing, "pe_ratio")
	}
	return missing
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
