package http

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests. Uploads stream large bodies, so
	// this must be generous; zero disables the client-level timeout.
	Timeout time.Duration

	// UserAgent for HTTP requests.
	UserAgent string

	// RateLimiter configuration.
	RateLimiter RateLimiterConfig

	// CircuitBreaker configuration.
	CircuitBreaker CircuitBreakerConfig

	// Transport configures the connection pool.
	Transport TransportConfig
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	// MaxIdleConns is the maximum number of idle connections across all hosts.
	MaxIdleConns int
	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int
	// MaxConnsPerHost is the maximum concurrent connections per host.
	MaxConnsPerHost int
	// IdleConnTimeout is how long an idle connection may remain open.
	IdleConnTimeout time.Duration
	// ForceAttemptHTTP2 forces HTTP/2 where the server supports it.
	ForceAttemptHTTP2 bool
}

// DefaultConfig returns sensible defaults for the upload workload.
func DefaultConfig() *Config {
	cbConfig := DefaultCircuitBreakerConfig()
	cbConfig.IsTransientError = IsTransientError
	return &Config{
		Timeout:        0, // uploads may legitimately run for many minutes
		UserAgent:      "clipsync/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: cbConfig,
		Transport: TransportConfig{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// Transport is an http.RoundTripper that applies per-host rate limiting and
// circuit breaking in front of a base transport. The YouTube service and
// the OAuth client are both constructed over it.
type Transport struct {
	// Base is the underlying RoundTripper; http.DefaultTransport when nil.
	Base http.RoundTripper

	userAgent string
	limiter   *RateLimiter
	breaker   *CircuitBreaker
}

// NewTransport builds a resilient transport from cfg.
func NewTransport(cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Transport{
		Base: &http.Transport{
			MaxIdleConns:        cfg.Transport.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.Transport.MaxConnsPerHost,
			IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
			ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
		},
		userAgent: cfg.UserAgent,
		limiter:   NewRateLimiter(cfg.RateLimiter),
		breaker:   NewCircuitBreaker(cfg.CircuitBreaker),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()

	if err := t.breaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.limiter.Wait(req.Context(), req.URL); err != nil {
		return nil, err
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		t.breaker.RecordFailure(host, err)
		return nil, err
	}

	if IsTransientStatus(resp.StatusCode) {
		t.breaker.RecordFailure(host, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	} else {
		t.breaker.RecordSuccess(host)
	}
	return resp, nil
}

// NewClient builds an *http.Client over a resilient Transport.
func NewClient(cfg *Config) *http.Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewTransport(cfg),
	}
}
