package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

func TestRefreshSymbol_ParsesAndCommitsBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"meta": {"symbol": "ACME"},
			"time_series": {
				"2024-01-02": {"open": "10.0", "high": "11.0", "low": "9.5", "close": "10.5", "volume": "1000"},
				"2024-01-03": {"open": "10.5", "high": "11.5", "low": "10.0", "close": "11.0", "volume": "1200"}
			}
		}`))
	}))
	defer srv.Close()

	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, id, sec.ID)

	fetcher := New(s, httpfetch.New(httpfetch.DefaultConfig("test/1.0"), zerolog.Nop()),
		ratelimit.New(ratelimit.Filings, 1000, 1000),
		func(symbol string, start, end time.Time) (string, map[string]string) { return srv.URL, nil },
		zerolog.Nop())

	start, _ := time.Parse("2006-01-02", "2024-01-02")
	end, _ := time.Parse("2006-01-02", "2024-01-03")
	res, err := fetcher.RefreshSymbol(ctx, sec, start, end)
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Equal(t, 2, res.RecordsWritten)

	dates, err := s.GetBarDatesInRange(ctx, id, start, end)
	require.NoError(t, err)
	require.Len(t, dates, 2)
}

func TestParseBars_DiscardsOutOfRangeAndMalformed(t *testing.T) {
	body := []byte(`{
		"meta": {},
		"time_series": {
			"2024-01-02": {"open": "10", "high": "11", "low": "9", "close": "10.5", "volume": "100"},
			"2024-01-10": {"open": "10", "high": "11", "low": "9", "close": "10.5", "volume": "100"},
			"2024-01-03": {"open": "not-a-number", "high": "11", "low": "9", "close": "10.5", "volume": "100"}
		}
	}`)
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-05")
	bars, warn, err := parseBars(body, 1, start, end)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Contains(t, warn, "malformed")
}

func TestParseBars_EmptyResponseProducesWarningNoError(t *testing.T) {
	body := []byte(`{"meta": {}, "time_series": {}}`)
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-05")
	bars, warn, err := parseBars(body, 1, start, end)
	require.NoError(t, err)
	require.Empty(t, bars)
	require.Contains(t, warn, "empty response")
}

func TestRefreshSymbol_SkipsWhenFullyCovered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true})
	require.NoError(t, err)
	sec, err := s.GetSecurityBySymbol(ctx, "ACME")
	require.NoError(t, err)

	d, _ := time.Parse("2006-01-02", "2024-01-02")
	require.NoError(t, s.UpsertDailyBars(ctx, nil, id, []store.DailyBar{
		{SecurityID: id, Date: d, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}))

	fetcher := New(s, httpfetch.New(httpfetch.DefaultConfig("test/1.0"), zerolog.Nop()),
		ratelimit.New(ratelimit.Filings, 1000, 1000),
		func(symbol string, start, end time.Time) (string, map[string]string) { return "", nil },
		zerolog.Nop())

	res, err := fetcher.RefreshSymbol(ctx, sec, d, d)
	require.NoError(t, err)
	require.True(t, res.Skipped)
}
