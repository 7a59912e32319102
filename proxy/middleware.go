// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const cspValue = "default-src 'none'; img-src 'self'; media-src 'self'"

func setSecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", cspValue)
}

// SecurityHeaders stamps the fixed security headers on every
// response, including errors and 304s.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces the per-client fixed-window limit.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ClientID(r)
			ok, retryAfter := limiter.Allow(id)
			if !ok {
				log.WithFields(log.Fields{
					"client": id,
					"uri":    r.RequestURI,
				}).Warn("rate limit exceeded")

				seconds := int(retryAfter.Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, errRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Throttle applies a process-wide requests-per-second ceiling on top
// of the per-client limiter. Zero disables it.
func Throttle(perSecond int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 {
			return next
		}

		store, err := memstore.New(65536)
		if err != nil {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, fmt.Sprintf("throttle error: %v", err), http.StatusInternalServerError)
			})
		}

		quota := throttled.RateQuota{MaxRate: throttled.PerSec(perSecond), MaxBurst: perSecond}
		rateLimiter, err := throttled.NewGCRARateLimiter(store, quota)
		if err != nil {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, fmt.Sprintf("throttle error: %v", err), http.StatusInternalServerError)
			})
		}

		return (&throttled.HTTPRateLimiter{
			RateLimiter: rateLimiter,
			VaryBy:      &throttled.VaryBy{Method: true},
		}).RateLimit(next)
	}
}

// CORS returns the permissive read-only CORS policy appropriate for
// publicly cacheable media.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler
}
