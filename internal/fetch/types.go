// Package fetch implements the politeness-aware HTTP client used to probe
// resource availability. Every request passes through redirect resolution,
// ignorelist and robots policy checks, a global concurrency gate, and a
// retry loop with respectful backoff. Transport failures never escape to the
// caller; they degrade to the sentinel response instead.
package fetch

import "time"

// SentinelStatus marks a response for which no usable answer was obtained:
// policy-denied, unreachable, or retry-exhausted.
const SentinelStatus = -1

// Response is the normalized result of a GET or HEAD request. SourceURL holds
// the final URL observed after transport-level redirects; for sentinel
// responses it is the originally requested URL.
type Response struct {
	SourceURL  string
	StatusCode int
	Body       string
}

// IsSentinel reports whether the response carries no usable result.
func (r Response) IsSentinel() bool {
	return r.StatusCode == SentinelStatus
}

// Sentinel builds the fixed "no usable response" value for a URL.
func Sentinel(url string) Response {
	return Response{SourceURL: url, StatusCode: SentinelStatus}
}

// acceptedStatus is the set of status codes that terminate the retry loop.
// Several 4xx codes are deliberately included: for link checking, "reachable
// but rejected" is a definitive answer that must not burn retries, even
// though the analysis stage will still count it as broken.
var acceptedStatus = map[int]struct{}{
	200: {}, 202: {}, 400: {}, 401: {}, 403: {},
	404: {}, 410: {}, 429: {}, 451: {}, 503: {},
}

func hasAcceptedStatus(code int) bool {
	_, ok := acceptedStatus[code]
	return ok
}

// Config captures the fetcher knobs fixed at construction. UserAgent,
// Ignorelist, and DomainsOnly remain mutable afterwards through setters.
type Config struct {
	// UserAgent is sent on every request and matched against robots groups.
	UserAgent string
	// Headers are extra headers included with each request.
	Headers map[string]string
	// MaxConcurrent caps simultaneously in-flight wire requests.
	MaxConcurrent int
	// MaxRetries bounds retry attempts per request beyond the first.
	MaxRetries int
	// MaxWait bounds the total time spent on one wire request.
	MaxWait time.Duration
	// DomainRPS limits request rate per domain; <= 0 disables the limiter.
	DomainRPS float64
	// Ignorelist holds domains that are always denied.
	Ignorelist []string
	// EnforceIgnorelist toggles ignorelist checks.
	EnforceIgnorelist bool
	// EnforceRobots toggles robots.txt policy checks.
	EnforceRobots bool
	// DomainsOnly short-circuits requests to a synthetic response derived
	// from the domain's policy decision, skipping the real payload.
	DomainsOnly bool
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.UserAgent == "" {
		cfg.UserAgent = "kb-linkcheck/0.1"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 60 * time.Second
	}
	return cfg
}
