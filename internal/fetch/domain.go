package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegisteredDomain extracts the policy-cache key for a URL: the registered
// domain under the public suffix (example.com for about.example.com). Hosts
// that carry no public suffix, such as IP addresses or bare hostnames, fall
// back to the full host including any port so distinct local endpoints do not
// share cache entries. Returns "" when the URL has no usable host.
func RegisteredDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if domain, derr := publicsuffix.EffectiveTLDPlusOne(host); derr == nil {
		return domain
	}
	return strings.ToLower(u.Host)
}
