// Package httpfetch implements the retrying, user-agent-tagged HTTP GET
// client shared by the filings and brokerage data sources, in the style
// of the teacher's internal/clients/openfigi.Client.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Outcome classifies a response for retry purposes.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

// Error is returned by Fetcher.Get when a request ultimately fails. It
// records the classification so callers (Price Fetcher, Filing Fetcher)
// can map it onto the error taxonomy of spec §7 without re-deriving it
// from the status code.
type Error struct {
	Outcome    Outcome
	StatusCode int
	URL        string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("http fetch %s: status=%d: %v", e.URL, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls retry behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches spec §4.3: 30s timeout, backoff starting at 500ms
// capped at 8s.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:   userAgent,
		Timeout:     30 * time.Second,
		MaxRetries:  5,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
	}
}

// Fetcher performs retrying HTTP GETs. Stateless beyond its configured
// http.Client; emits no state of its own beyond the returned result, per
// spec's C3 contract.
type Fetcher struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New creates a Fetcher. log should already be scoped by the caller
// (e.g. log.With().Str("component", "httpfetch").Logger()).
func New(cfg Config, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// Get issues a GET request, retrying transient failures with exponential
// backoff honoring Retry-After when present. Returns the decoded body
// bytes and the final HTTP status code on success.
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	var lastErr error
	backoff := f.cfg.BaseBackoff

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		body, status, outcome, retryAfterWait, err := f.attempt(ctx, url, headers)
		switch outcome {
		case OutcomeOK:
			return body, status, nil
		case OutcomePermanent:
			return nil, status, &Error{Outcome: OutcomePermanent, StatusCode: status, URL: url, Err: err}
		case OutcomeTransient:
			lastErr = err
			if attempt == f.cfg.MaxRetries {
				break
			}
			// Retry-After, when the upstream sends one, overrides the
			// computed exponential backoff (spec §7: "retry with backoff
			// honoring Retry-After if present"); still capped at
			// MaxBackoff so a large upstream value can't stall a step.
			wait := backoff
			if retryAfterWait != nil {
				wait = *retryAfterWait
				if wait > f.cfg.MaxBackoff {
					wait = f.cfg.MaxBackoff
				}
			}
			f.log.Warn().Str("url", url).Int("attempt", attempt+1).Dur("backoff", wait).Err(err).Msg("transient fetch failure, retrying")
			select {
			case <-ctx.Done():
				return nil, status, ctx.Err()
			case <-time.After(jitter(wait)):
			}
			backoff *= 2
			if backoff > f.cfg.MaxBackoff {
				backoff = f.cfg.MaxBackoff
			}
		}
	}
	return nil, 0, &Error{Outcome: OutcomeTransient, URL: url, Err: fmt.Errorf("exhausted %d retries: %w", f.cfg.MaxRetries, lastErr)}
}

func (f *Fetcher) attempt(ctx context.Context, url string, headers map[string]string) ([]byte, int, Outcome, *time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, OutcomePermanent, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, OutcomeTransient, nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, OutcomeTransient, nil, fmt.Errorf("failed reading body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, OutcomeTransient, retryAfter(resp), fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, OutcomeTransient, retryAfter(resp), fmt.Errorf("upstream server error: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, OutcomePermanent, nil, fmt.Errorf("upstream client error: %d", resp.StatusCode)
	}

	return body, resp.StatusCode, OutcomeOK, nil, nil
}

// retryAfter parses a response's Retry-After header, accepting either the
// delay-seconds form or an HTTP-date, per RFC 7231 §7.1.3. Returns nil
// when the header is absent or unparsable, leaving the caller to fall
// back to its own computed backoff.
func retryAfter(resp *http.Response) *time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		return &d
	}
	if when, err := http.ParseTime(v); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// jitter adds up to 20% random jitter to a backoff duration to avoid
// synchronized retry storms across concurrent workers.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	n := int64(d) / 5
	if n <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(n))
}
