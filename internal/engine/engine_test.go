package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityrefresh/internal/derive"
	"github.com/aristath/equityrefresh/internal/filings"
	"github.com/aristath/equityrefresh/internal/httpfetch"
	"github.com/aristath/equityrefresh/internal/prices"
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

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func newOrchestrator(t *testing.T, s *store.Store, priceServer, filingServer *httptest.Server) *Orchestrator {
	t.Helper()
	log := zerolog.Nop()
	hf := httpfetch.New(httpfetch.Config{Timeout: 5 * time.Second, MaxRetries: 1}, log)
	priceLimiter := ratelimit.New(ratelimit.Brokerage, 100, 10)
	filingLimiter := ratelimit.New(ratelimit.Filings, 100, 10)

	priceEndpoint := func(symbol string, start, end time.Time) (string, map[string]string) {
		return priceServer.URL, nil
	}
	p := prices.New(s, hf, priceLimiter, priceEndpoint, log)

	filingEndpoint := func(cik string) (string, map[string]string) {
		return filingServer.URL, nil
	}
	fl := filings.New(s, hf, filingLimiter, filingEndpoint, filings.Config{}, log)

	ttm := derive.NewTTM(s)
	ratios := derive.NewRatios(s)

	return New(s, p, fl, ttm, ratios, Config{
		DefaultStart: date(t, "2024-01-01"),
		BatchSize:    10,
		TickInterval: time.Hour,
	}, log)
}

func emptyPriceServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"symbol":"ACME"},"time_series":{}}`))
	}))
}

func emptyFilingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"cik":        "0000000001",
			"entityName": "Acme Corp",
			"facts":      map[string]any{},
		}
		b, _ := json.Marshal(doc)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}))
}

func TestRun_MarketModeSkipsCurrentSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true, CIK: strPtr("0000000001")})
	require.NoError(t, err)
	_ = id

	now := time.Now().UTC()
	require.NoError(t, s.UpsertDataStatus(ctx, nil, store.DataStatus{Source: "daily_prices", LastRefresh: &now, LatestDate: &now, Records: 1}))
	require.NoError(t, s.UpsertDataStatus(ctx, nil, store.DataStatus{Source: "pe_ratios", LastRefresh: &now, LatestDate: &now, Records: 1}))
	require.NoError(t, s.UpsertDataStatus(ctx, nil, store.DataStatus{Source: "company_metadata", LastRefresh: &now, LatestDate: &now, Records: 1}))

	priceSrv := emptyPriceServer(t)
	defer priceSrv.Close()
	filingSrv := emptyFilingServer(t)
	defer filingSrv.Close()

	o := newOrchestrator(t, s, priceSrv, filingSrv)
	result, err := o.Run(ctx, ModeMarket, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.SessionCompleted, result.Status)
	for _, sr := range result.StepResults {
		require.True(t, sr.Skipped, "step %s should be skipped when already current", sr.Step)
	}
}

func TestRun_FinancialsModeRunsAllStepsAndCompletesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true, CIK: strPtr("0000000001")})
	require.NoError(t, err)

	priceSrv := emptyPriceServer(t)
	defer priceSrv.Close()
	filingSrv := emptyFilingServer(t)
	defer filingSrv.Close()

	o := newOrchestrator(t, s, priceSrv, filingSrv)
	result, err := o.Run(ctx, ModeFinancials, []string{"ACME"}, nil)
	require.NoError(t, err)
	require.Equal(t, store.SessionCompleted, result.Status)
	require.Len(t, result.StepResults, 5)

	sess, err := s.GetRefreshSession(ctx, result.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, store.SessionCompleted, sess.Status)
	require.NotNil(t, sess.EndTime)

	// sources_refreshed_json/sources_failed_json must always be valid
	// JSON arrays, never the empty string, so /api/sessions/{id} callers
	// other than the CLI that started the run can parse them.
	var refreshed, failed []string
	require.NoError(t, json.Unmarshal([]byte(sess.SourcesRefreshedJSON), &refreshed))
	require.NoError(t, json.Unmarshal([]byte(sess.SourcesFailedJSON), &failed))
	require.ElementsMatch(t, []string{"daily_prices", "pe_ratios", "ps_evs_ratios", "company_metadata", "financial_statements"}, refreshed)
	require.Empty(t, failed)
}

func TestRun_CancelStopsBeforeRemainingSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertSecurity(ctx, nil, &store.Security{Symbol: "ACME", InUniverse: true, CIK: strPtr("0000000001")})
	require.NoError(t, err)

	priceSrv := emptyPriceServer(t)
	defer priceSrv.Close()
	filingSrv := emptyFilingServer(t)
	defer filingSrv.Close()

	o := newOrchestrator(t, s, priceSrv, filingSrv)
	cancel := make(chan struct{})
	close(cancel)

	result, err := o.Run(ctx, ModeFinancials, []string{"ACME"}, cancel)
	require.NoError(t, err)
	require.Equal(t, store.SessionCancelled, result.Status)
}

func strPtr(s string) *string { return &s }
