package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// policyCache holds the per-domain crawl decisions for one run. Entries are
// created lazily and never invalidated: once a domain's redirect or robots
// verdict is recorded it stays fixed until the client is discarded. The
// singleflight group coalesces concurrent first lookups for a domain onto a
// single probe instead of racing duplicates.
type policyCache struct {
	mu        sync.Mutex
	redirects map[string]bool
	robots    map[string]bool
	flight    singleflight.Group
}

func newPolicyCache() policyCache {
	return policyCache{
		redirects: make(map[string]bool),
		robots:    make(map[string]bool),
	}
}

// resolveRedirect determines the effective target of rawURL. Persistent
// identifiers often report themselves as final even though they forward
// elsewhere, so the first URL seen for a domain is probed with a HEAD
// request; domains observed to not redirect skip the probe on later URLs,
// while redirecting domains resolve each URL to its own destination.
func (c *Client) resolveRedirect(ctx context.Context, rawURL string) string {
	domain := RegisteredDomain(rawURL)
	if domain == "" {
		return rawURL
	}

	c.policies.mu.Lock()
	redirects, known := c.policies.redirects[domain]
	c.policies.mu.Unlock()
	if known && !redirects {
		return rawURL
	}
	if known {
		return c.probeRedirect(ctx, rawURL)
	}

	v, _, _ := c.policies.flight.Do("redirect:"+domain, func() (any, error) {
		target := c.probeRedirect(ctx, rawURL)
		c.policies.mu.Lock()
		if _, ok := c.policies.redirects[domain]; !ok {
			c.policies.redirects[domain] = target != rawURL
		}
		c.policies.mu.Unlock()
		return redirectVerdict{source: rawURL, target: target}, nil
	})
	verdict, ok := v.(redirectVerdict)
	if !ok {
		return rawURL
	}
	if verdict.source == rawURL {
		return verdict.target
	}
	// A coalesced caller holding a different URL: the shared probe only
	// settled the domain verdict, so resolve this URL on its own if the
	// domain turned out to redirect.
	c.policies.mu.Lock()
	redirects = c.policies.redirects[domain]
	c.policies.mu.Unlock()
	if !redirects {
		return rawURL
	}
	return c.probeRedirect(ctx, rawURL)
}

type redirectVerdict struct {
	source string
	target string
}

func (c *Client) probeRedirect(ctx context.Context, rawURL string) string {
	redirectProbesTotal.Inc()
	resp := c.send(ctx, http.MethodHead, rawURL, false)
	if resp.IsSentinel() || resp.SourceURL == "" {
		return rawURL
	}
	return resp.SourceURL
}

// robotsAllowed reports whether the target may be fetched per its domain's
// robots rules. The robots file is fetched at most once per domain per run;
// concurrent callers for an unseen domain wait on the same in-flight fetch.
func (c *Client) robotsAllowed(ctx context.Context, target string) bool {
	domain := RegisteredDomain(target)
	if domain == "" {
		c.logger.Warn("cannot locate robots.txt for URL with no domain",
			zap.String("url", target))
		return true
	}

	c.policies.mu.Lock()
	if allowed, ok := c.policies.robots[domain]; ok {
		c.policies.mu.Unlock()
		c.logger.Debug("reused cached robots decision",
			zap.String("domain", domain), zap.Bool("allowed", allowed))
		return allowed
	}
	c.policies.mu.Unlock()

	v, _, _ := c.policies.flight.Do("robots:"+domain, func() (any, error) {
		allowed := c.fetchRobots(ctx, target)
		c.policies.mu.Lock()
		c.policies.robots[domain] = allowed
		c.policies.mu.Unlock()
		c.logger.Debug("recorded robots decision",
			zap.String("domain", domain), zap.Bool("allowed", allowed))
		return allowed, nil
	})
	allowed, ok := v.(bool)
	return !ok || allowed
}

// fetchRobots retrieves and evaluates robots.txt for the target's host. An
// unreachable or unparseable robots file defaults to allow; a client-error
// status on the robots fetch itself defaults to deny.
func (c *Client) fetchRobots(ctx context.Context, target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		c.logger.Warn("cannot build robots.txt URL",
			zap.String("url", target), zap.Error(err))
		return true
	}
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	if robotsURL.Scheme == "" {
		robotsURL.Scheme = "https"
	}

	robotsFetchesTotal.Inc()
	resp := c.send(ctx, http.MethodGet, robotsURL.String(), false)
	switch {
	case resp.StatusCode == http.StatusOK:
		data, perr := robotstxt.FromBytes([]byte(resp.Body))
		if perr != nil {
			c.logger.Warn("failed to parse robots.txt; allowing access",
				zap.String("url", robotsURL.String()), zap.Error(perr))
			return true
		}
		group := data.FindGroup(c.currentUserAgent())
		if group == nil {
			return true
		}
		return group.Test(u.RequestURI())
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return false
	default:
		c.logger.Debug("robots.txt unavailable; allowing access",
			zap.String("url", robotsURL.String()), zap.Int("status", resp.StatusCode))
		return true
	}
}

// cachedRobotsDecision returns the recorded robots verdict for a domain, or
// allow when no verdict was needed to admit the request.
func (c *Client) cachedRobotsDecision(domain string) bool {
	c.policies.mu.Lock()
	defer c.policies.mu.Unlock()
	allowed, ok := c.policies.robots[domain]
	return !ok || allowed
}
