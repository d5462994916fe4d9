// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests to one backend with a token bucket plus a backoff
// window set when the backend answers 429.
type Limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
}

// Wait blocks until a request may be issued. It honors any backoff window
// from a previous 429 before drawing from the token bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return l.bucket.Wait(ctx)
}

// RecordRateLimitError opens a backoff window after a 429 response. A zero
// or negative retryAfter falls back to one second.
func (l *Limiter) RecordRateLimitError(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryAt = time.Now().Add(retryAfter)
}

var (
	gatesMu sync.Mutex
	gates   = map[string]*Limiter{}
)

// gateFor returns the process-wide limiter for a backend name, creating it
// on first use. All sessions share one gate per backend; the rate is fixed
// by whichever call creates the gate.
func gateFor(name string, perSecond float64) *Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	gatesMu.Lock()
	defer gatesMu.Unlock()
	g, ok := gates[name]
	if !ok {
		g = &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), 1)}
		gates[name] = g
	}
	return g
}
