package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Client issues GET and HEAD requests under a global concurrency ceiling
// while enforcing per-domain crawl policy and retry discipline. All methods
// are safe for concurrent use; the underlying connection pool is shared for
// the lifetime of the client.
type Client struct {
	logger     *zap.Logger
	engine     *engine
	sem        *semaphore.Weighted
	limiter    *domainLimiter
	maxRetries int

	mu                sync.RWMutex
	userAgent         string
	headers           map[string]string
	ignorelist        *Ignorelist
	enforceIgnorelist bool
	enforceRobots     bool
	domainsOnly       bool

	policies policyCache
}

// NewClient constructs a Client from cfg. Zero or negative limits fall back
// to conservative defaults.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	c := &Client{
		logger:            logger,
		engine:            newEngine(cfg.MaxConcurrent, cfg.MaxWait),
		sem:               semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:           newDomainLimiter(cfg.DomainRPS),
		maxRetries:        cfg.MaxRetries,
		userAgent:         cfg.UserAgent,
		headers:           headers,
		ignorelist:        NewIgnorelist(cfg.Ignorelist),
		enforceIgnorelist: cfg.EnforceIgnorelist,
		enforceRobots:     cfg.EnforceRobots,
		domainsOnly:       cfg.DomainsOnly,
		policies:          newPolicyCache(),
	}
	logger.Debug("initialized politeness fetcher",
		zap.String("user_agent", cfg.UserAgent),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("max_wait", cfg.MaxWait),
		zap.Bool("enforce_ignorelist", cfg.EnforceIgnorelist),
		zap.Bool("enforce_robots", cfg.EnforceRobots),
		zap.Bool("domains_only", cfg.DomainsOnly))
	return c
}

// Get probes a URL with an HTTP GET and returns the normalized response, or
// the sentinel response when access was denied or no usable answer arrived.
func (c *Client) Get(ctx context.Context, rawURL string) Response {
	return c.request(ctx, http.MethodGet, rawURL)
}

// Head behaves like Get using an HTTP HEAD request.
func (c *Client) Head(ctx context.Context, rawURL string) Response {
	return c.request(ctx, http.MethodHead, rawURL)
}

// Close releases idle connections. The client may still be used afterwards;
// new connections are opened lazily.
func (c *Client) Close() {
	c.engine.Close()
}

// SetUserAgent swaps the outbound User-Agent header.
func (c *Client) SetUserAgent(userAgent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userAgent == userAgent {
		return
	}
	c.userAgent = userAgent
	c.logger.Debug("fetcher user agent changed", zap.String("user_agent", userAgent))
}

// SetIgnorelist replaces the denied-domain set.
func (c *Client) SetIgnorelist(domains []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignorelist = NewIgnorelist(domains)
	c.logger.Debug("fetcher ignorelist changed", zap.Strings("domains", domains))
}

// SetDomainsOnly toggles domain-only checking.
func (c *Client) SetDomainsOnly(domainsOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.domainsOnly == domainsOnly {
		return
	}
	c.domainsOnly = domainsOnly
	c.logger.Debug("fetcher check type changed", zap.Bool("domains_only", domainsOnly))
}

// SetHeader sets or replaces one extra request header.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

func (c *Client) request(ctx context.Context, method, rawURL string) Response {
	allowed, target := c.resolveAccess(ctx, method, rawURL)
	if !allowed {
		sentinelsTotal.Inc()
		return Sentinel(rawURL)
	}
	if c.domainsOnlyEnabled() {
		return c.domainOnlyResponse(rawURL, target)
	}
	return c.send(ctx, method, rawURL, true)
}

// resolveAccess decides whether the URL may be requested at all, returning
// the redirect-resolved target the decision was made against.
func (c *Client) resolveAccess(ctx context.Context, method, rawURL string) (bool, string) {
	enforceIgnore, enforceRobots := c.enforcement()
	if !enforceIgnore && !enforceRobots {
		return true, rawURL
	}

	target := c.resolveRedirect(ctx, rawURL)
	domain := RegisteredDomain(target)
	c.logger.Debug("resolved request target",
		zap.String("url", rawURL),
		zap.String("target", target),
		zap.String("domain", domain))

	if enforceIgnore && c.ignored(domain) {
		c.logger.Warn("request denied: domain is ignorelisted",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.String("domain", domain))
		policyDenialsTotal.WithLabelValues("ignorelist").Inc()
		return false, target
	}
	if enforceRobots && !c.robotsAllowed(ctx, target) {
		c.logger.Warn("request denied: domain disallows crawling",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.String("domain", domain))
		policyDenialsTotal.WithLabelValues("robots").Inc()
		return false, target
	}
	return true, target
}

// domainOnlyResponse synthesizes a response from the cached policy decision
// of the effective domain, skipping the real payload request.
func (c *Client) domainOnlyResponse(rawURL, target string) Response {
	if c.cachedRobotsDecision(RegisteredDomain(target)) {
		return Response{SourceURL: rawURL, StatusCode: http.StatusOK}
	}
	sentinelsTotal.Inc()
	return Sentinel(rawURL)
}

// send runs the retry loop for one logical request. The loop ends as soon as
// a response has an accepted status code and, for GET requests within the
// retry budget, a non-empty body. An exhausted budget without an accepted
// status degrades to the sentinel response.
func (c *Client) send(ctx context.Context, method, rawURL string, allowRetries bool) Response {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		c.logger.Warn("refusing request: URL is not a fetchable link",
			zap.String("method", method), zap.String("url", rawURL))
		sentinelsTotal.Inc()
		return Sentinel(rawURL)
	}

	for attempt := 0; ; attempt++ {
		res, headers := c.dispatch(ctx, method, rawURL)
		if hasAcceptedStatus(res.StatusCode) && hasContent(res, method) {
			return res
		}
		if !allowRetries {
			return res
		}
		if attempt >= c.maxRetries {
			if hasAcceptedStatus(res.StatusCode) {
				// Content requirement is waived once the budget is spent.
				return res
			}
			c.logger.Warn("request failed: no accepted response within retry budget",
				zap.String("method", method),
				zap.String("url", rawURL),
				zap.Int("attempts", attempt+1))
			sentinelsTotal.Inc()
			return Sentinel(rawURL)
		}
		retriesTotal.Inc()
		if !sleepCtx(ctx, retryDelay(headers.Get("Retry-After"), attempt+1)) {
			sentinelsTotal.Inc()
			return Sentinel(rawURL)
		}
	}
}

// dispatch performs exactly one wire request under the rate limiter and the
// global admission gate.
func (c *Client) dispatch(ctx context.Context, method, rawURL string) (Response, http.Header) {
	if err := c.limiter.Wait(ctx, RegisteredDomain(rawURL)); err != nil {
		return Sentinel(rawURL), nil
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Sentinel(rawURL), nil
	}
	defer c.sem.Release(1)

	requestsTotal.WithLabelValues(method).Inc()
	c.logger.Debug("sending request", zap.String("method", method), zap.String("url", rawURL))

	raw := c.engine.do(ctx, method, rawURL, c.requestHeaders())
	if raw.err != nil {
		c.logger.Warn("request failed at transport",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Error(raw.err))
		return Sentinel(rawURL), nil
	}

	finalURL := raw.finalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	res := Response{
		SourceURL:  finalURL,
		StatusCode: raw.statusCode,
		Body:       responseText(raw, method, c.logger),
	}
	c.logger.Debug("received response",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", res.StatusCode))
	return res, raw.headers
}

func (c *Client) enforcement() (ignorelist, robots bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enforceIgnorelist, c.enforceRobots
}

func (c *Client) ignored(domain string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ignorelist.Contains(domain)
}

func (c *Client) domainsOnlyEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domainsOnly
}

func (c *Client) currentUserAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userAgent
}

func (c *Client) requestHeaders() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	headers := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["User-Agent"] = c.userAgent
	return headers
}

func hasContent(res Response, method string) bool {
	if method == http.MethodHead {
		return true
	}
	return len(res.Body) > 0
}

// responseText decodes the payload for GET responses. Unknown content types
// yield an empty body; invalid UTF-8 sequences are replaced, never fatal.
func responseText(raw rawResult, method string, logger *zap.Logger) string {
	if method == http.MethodHead || len(raw.body) == 0 {
		return ""
	}
	contentType := raw.headers.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	switch {
	case contentType == "", contentType == "application/json", contentType == "application/octet-stream":
	case strings.HasPrefix(contentType, "text/"):
	default:
		logger.Warn("unable to decode response body",
			zap.String("url", raw.finalURL),
			zap.String("content_type", contentType))
		return ""
	}
	return strings.ToValidUTF8(string(raw.body), "�")
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
