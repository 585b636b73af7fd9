package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/equityrefresh/internal/filings"
	"github.com/aristath/equityrefresh/internal/prices"
	"github.com/aristath/equityrefresh/internal/store"
)

// enumerateSecurities returns the symbols passed via --symbols, or the
// whole tracked universe when none were given (spec §4.12 step 3,
// invariant 6).
func enumerateSecurities(ctx context.Context) ([]store.Security, error) {
	if len(flags.symbols) == 0 {
		return db.ListUniverseSecurities(ctx)
	}
	out := make([]store.Security, 0, len(flags.symbols))
	for _, sym := range flags.symbols {
		sec, err := db.GetSecurityBySymbol(ctx, sym)
		if err != nil {
			return nil, err
		}
		if sec == nil {
			return nil, fmt.Errorf("unknown symbol %q", sym)
		}
		out = append(out, *sec)
	}
	return out, nil
}

// filingsEndpoint builds the SEC-style company-facts request (spec §6.4):
// GET https://…/api/xbrl/companyfacts/CIK{padded10}.json.
func filingsEndpoint(baseURL, userAgent string) filings.Endpoint {
	return func(cik string) (string, map[string]string) {
		url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%010s.json", baseURL, cik)
		return url, map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		}
	}
}

// brokerageEndpoint builds the daily-bars request (spec §6.4): query
// parameters for symbol and date range, bearer token in the Authorization
// header.
func brokerageEndpoint(baseURL, token string) prices.Endpoint {
	return func(symbol string, start, end time.Time) (string, map[string]string) {
		url := fmt.Sprintf("%s/query?function=TIME_SERIES_DAILY&symbol=%s&outputsize=full&start=%s&end=%s",
			baseURL, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
		headers := map[string]string{"Accept": "application/json"}
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
		return url, headers
	}
}
