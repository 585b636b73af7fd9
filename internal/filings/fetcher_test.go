package filings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityrefresh/internal/httpfetch"
	"github.com/aristath/equityrefresh/internal/ratelimit"
	"github.com/aristath/equityrefresh/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const sampleFactsDoc = `{
  "cik": 320193,
  "entityName": "ACME CORP",
  "facts": {
    "us-gaap": {
      "Revenues": {
        "units": {
          "USD": [
            {"start": "2023-01-01", "end": "2023-12-31", "val": 5000, "accn": "0001-24-1", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2024-02-15"}
          ]
        }
      },
      "NetIncomeLoss": {
        "units": {
          "USD": [
            {"start": "2023-01-01", "end": "2023-12-31", "val": 400, "accn": "0001-24-1", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2024-02-15"}
          ]
        }
      }
    }
  }
}`

func TestRefreshSecurity_CommitsStatementsAndReconciles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleFactsDoc))
	}))
	defer srv.Close()

	s := newTestStore(t)
	ctx := context.Background()
	cik := "0000320193"
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true, CIK: &cik})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, id, sec.ID)

	fetcher := New(s, httpfetch.New(httpfetch.DefaultConfig("test/1.0"), zerolog.Nop()),
		ratelimit.New(ratelimit.Filings, 1000, 1000),
		func(cik string) (string, map[string]string) { return srv.URL, nil },
		Config{}, zerolog.Nop())

	res, err := fetcher.RefreshSecurity(ctx, sec)
	require.NoError(t, err)
	require.Equal(t, 1, res.IncomeWritten)

	income, err := s.GetLatestAnnualIncome(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, income)
	require.NotNil(t, income.Revenue)
	require.Equal(t, 5000.0, *income.Revenue)
	require.NotNil(t, income.Meta.Form)
	require.Equal(t, "10-K", *income.Meta.Form)
	require.NotNil(t, income.Meta.Accession)
	require.Equal(t, "0001-24-1", *income.Meta.Accession)
}

func TestRefreshSecurity_RequiresCIK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "NOCIK", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "NOCIK")
	require.NoError(t, err)

	fetcher := New(s, httpfetch.New(httpfetch.DefaultConfig("test/1.0"), zerolog.Nop()),
		ratelimit.New(ratelimit.Filings, 1000, 1000),
		func(cik string) (string, map[string]string) { return "", nil },
		Config{}, zerolog.Nop())

	_, err = fetcher.RefreshSecurity(ctx, sec)
	require.Error(t, err)
}
