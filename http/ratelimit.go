// Package http provides HTTP client infrastructure for the upload engine:
// per-host rate limiting, circuit breaking, and transient-error
// classification, composed as a RoundTripper under the OAuth and YouTube
// API clients.
package http

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-host request rate limiting using the token bucket
// algorithm. Upload traffic is bulk data on few requests, so conservative
// request rates cost nothing while keeping metadata calls inside quota.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimiterConfig
}

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// APIRPS is requests per second against the YouTube Data API hosts.
	APIRPS float64
	// AuthRPS is requests per second against the OAuth token endpoints.
	AuthRPS float64
	// CustomRates maps hosts to RPS values. A value of 0 disables limiting
	// for that host.
	CustomRates map[string]float64
}

// DefaultRateLimiterConfig returns conservative defaults aligned with the
// Data API quota model.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		APIRPS:      2.0,
		AuthRPS:     1.0,
		CustomRates: make(map[string]float64),
	}
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.APIRPS == 0 {
		cfg.APIRPS = DefaultRateLimiterConfig().APIRPS
	}
	if cfg.AuthRPS == 0 {
		cfg.AuthRPS = DefaultRateLimiterConfig().AuthRPS
	}
	if cfg.CustomRates == nil {
		cfg.CustomRates = make(map[string]float64)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
}

// Wait blocks until the rate limit allows a request to the given URL, or
// the context is done.
func (rl *RateLimiter) Wait(ctx context.Context, u *url.URL) error {
	if rl == nil {
		return nil
	}
	limiter := rl.limiterFor(u.Hostname())
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// limiterFor returns the limiter for a host, creating one if necessary.
// A nil return means the host is unlimited.
func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rps := rl.rpsFor(host)
	if rps == 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[host]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = limiter
	return limiter
}

// rpsFor returns the requests per second for a host.
func (rl *RateLimiter) rpsFor(host string) float64 {
	if rps, ok := rl.config.CustomRates[host]; ok {
		return rps
	}
	switch host {
	case "oauth2.googleapis.com", "accounts.google.com":
		return rl.config.AuthRPS
	default:
		// googleapis.com media and metadata hosts, and anything unknown.
		return rl.config.APIRPS
	}
}

// SetCustomRate sets a custom rate limit for a specific host.
func (rl *RateLimiter) SetCustomRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.config.CustomRates[host] = rps
	// Force recreation with the new rate.
	delete(rl.limiters, host)
}
