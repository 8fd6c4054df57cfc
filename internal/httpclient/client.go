// Package httpclient builds the HTTP clients the transport runs on.
// Sync exchanges and stream/poll exchanges need different timeout shapes,
// so there are two constructors.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config holds the tunable client settings.
type Config struct {
	// Timeout bounds a whole request including the body read. Applied to
	// sync clients only; it would cut long-lived streams short.
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers. This is
	// the knob that protects streaming requests from a hung provider.
	ResponseHeaderTimeout time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
}

// DefaultConfig returns settings sized for LLM providers: generation can
// legitimately take minutes. Overridable via environment (plain integers
// are seconds, otherwise Go duration syntax):
//
//	LLMDISPATCH_HTTP_TIMEOUT         overall sync request timeout (default 600)
//	LLMDISPATCH_HTTP_HEADER_TIMEOUT  wait for response headers (default 120)
func DefaultConfig() Config {
	return Config{
		Timeout:               envDuration("LLMDISPATCH_HTTP_TIMEOUT", 600*time.Second),
		ResponseHeaderTimeout: envDuration("LLMDISPATCH_HTTP_HEADER_TIMEOUT", 120*time.Second),
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
}

// New builds a client for single JSON exchanges.
func New(cfg Config) *http.Client {
	return &http.Client{
		Transport: newTransport(cfg),
		Timeout:   cfg.Timeout,
	}
}

// NewStreaming builds a client for stream and poll exchanges. There is no
// overall timeout: streams stay open as long as the provider generates,
// bounded by the caller's context and the header timeout.
func NewStreaming(cfg Config) *http.Client {
	return &http.Client{
		Transport: newTransport(cfg),
	}
}

func newTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: time.Second,
	}
}

// envDuration reads a duration override. Plain integers are seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return fallback
}
