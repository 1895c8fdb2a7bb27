package fetch

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

const maxBackoff = 60 * time.Second

// retryDelay computes how long to wait before the next attempt. A parseable
// Retry-After header wins: an HTTP date becomes the interval until that
// moment, a literal second count is honored with a little jitter so callers
// sharing a limit do not reawaken in lockstep. Without a usable header the
// delay is exponential (2^attempt seconds plus jitter) capped at 60s.
func retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if at, err := http.ParseTime(retryAfter); err == nil {
			delta := time.Until(at)
			if delta < 0 {
				delta = 0
			}
			return delta
		}
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs)*time.Second + jitter()
		}
	}
	backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if backoff += jitter(); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}
