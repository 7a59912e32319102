// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether a request from the given client identifier
// may proceed. It is injected so the in-process implementation can be
// replaced by a shared store in a multi-instance deployment.
type Limiter interface {
	// Allow atomically checks and consumes one request slot. When
	// the limit is exhausted it returns false together with the
	// time until the window resets.
	Allow(id string) (bool, time.Duration)
}

type rateWindow struct {
	count int
	reset time.Time
}

// FixedWindowLimiter is a process-local fixed-window counter per
// client identifier. Check-and-increment happens under the mutex, so
// concurrent requests from the same identifier cannot race past the
// limit.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*rateWindow
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*rateWindow),
	}
}

func (l *FixedWindowLimiter) Allow(id string) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[id]
	if !ok || now.After(w.reset) {
		l.windows[id] = &rateWindow{count: 1, reset: now.Add(l.window)}
		return true, 0
	}

	if w.count < l.limit {
		w.count++
		return true, 0
	}

	return false, time.Until(w.reset)
}

// sweep drops windows that have expired, bounding memory growth under
// many distinct client identifiers.
func (l *FixedWindowLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, w := range l.windows {
		if now.After(w.reset) {
			delete(l.windows, id)
		}
	}
}

// Run sweeps expired windows periodically until ctx is cancelled.
func (l *FixedWindowLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

// ClientID derives the rate-limit identifier for a request: the first
// hop of X-Forwarded-For when a trusted proxy set it, otherwise the
// remote address.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
