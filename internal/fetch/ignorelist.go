package fetch

import "strings"

// Ignorelist matches domains that operators never want probed, regardless of
// robots policy. It stores exact hosts plus suffix wildcards ("*.example.com"
// or ".example.com" both match any subdomain of example.com).
type Ignorelist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewIgnorelist builds a matcher from raw patterns. Empty entries are
// dropped; duplicate suffixes collapse to one.
func NewIgnorelist(patterns []string) *Ignorelist {
	matcher := &Ignorelist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	return matcher
}

func (l *Ignorelist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range l.suffixes {
		if existing == suffix {
			return
		}
	}
	l.suffixes = append(l.suffixes, suffix)
}

// Contains reports whether the domain is denied by the ignorelist.
func (l *Ignorelist) Contains(domain string) bool {
	if l == nil {
		return false
	}
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return false
	}
	if _, ok := l.exact[domain]; ok {
		return true
	}
	for _, suffix := range l.suffixes {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return true
		}
	}
	return false
}
