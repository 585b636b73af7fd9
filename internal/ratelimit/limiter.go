// Package ratelimit provides per-host token-bucket rate limiting for
// outbound HTTP calls, built on golang.org/x/time/rate the way the
// penny-vault/pvdata provider package rate-limits its brokerage clients.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Host names the two external hosts the engine talks to.
type Host string

const (
	Filings    Host = "filings"
	Brokerage  Host = "brokerage"
)

// Limiter wraps a token bucket scoped to one host. Safe for concurrent use
// across any number of workers; golang.org/x/time/rate.Limiter already
// provides the required concurrency and (weak) fairness guarantees.
type Limiter struct {
	host    Host
	limiter *rate.Limiter
}

// New creates a Limiter with a steady-state rate of rps requests/second
// and the given burst size.
func New(host Host, rps float64, burst int) *Limiter {
	return &Limiter{
		host:    host,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewFilingsDefault returns the default filings-host limiter: 10 rps, burst 10.
func NewFilingsDefault() *Limiter {
	return New(Filings, 10, 10)
}

// NewBrokerageDefault returns the default brokerage-host limiter: 2 rps, burst 3.
func NewBrokerageDefault() *Limiter {
	return New(Brokerage, 2, 3)
}

// Acquire blocks until a token is available or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Host returns the host this limiter guards.
func (l *Limiter) Host() Host {
	return l.host
}
