package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig("test-tool/1.0 (ops@example.com)")
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.MaxRetries = 3
	return cfg
}

func TestGet_SuccessOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "test-tool")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(fastConfig(), zerolog.Nop())
	body, status, err := f.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGet_PermanentFailureNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fastConfig(), zerolog.Nop())
	_, _, err := f.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	var httpErr *Error
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, OutcomePermanent, httpErr.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_TransientRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(fastConfig(), zerolog.Nop())
	body, status, err := f.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGet_HonorsRetryAfterSecondsHeader(t *testing.T) {
	var calls int32
	var gotWait time.Duration
	var lastCall time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			lastCall = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gotWait = time.Since(lastCall)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxBackoff = 50 * time.Millisecond // well under the header's 1s, so the header's delay is clamped down to this value
	f := New(cfg, zerolog.Nop())

	_, _, err := f.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, gotWait, cfg.MaxBackoff, "a Retry-After of 1s clamped to MaxBackoff should still wait at least MaxBackoff, not the unclamped base backoff")
}

func TestGet_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 1
	f := New(cfg, zerolog.Nop())
	_, _, err := f.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	var httpErr *Error
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, OutcomeTransient, httpErr.Outcome)
}
