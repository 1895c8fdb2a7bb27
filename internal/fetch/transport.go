package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// rawResult carries the unprocessed outcome of one wire request.
type rawResult struct {
	finalURL   string
	statusCode int
	body       []byte
	headers    http.Header
	err        error
}

// engine issues the actual GET/HEAD requests through a shared Colly backend.
// The transport's connection pool is reused for the whole run; collectors are
// cloned per request so callbacks never leak between calls.
type engine struct {
	base      *colly.Collector
	transport *http.Transport
}

func newEngine(maxConcurrent int, maxWait time.Duration) *engine {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     maxConcurrent * 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	base := colly.NewCollector(colly.Async(true))
	// The same URL is revisited on retries, and robots enforcement happens in
	// the policy layer against the redirect-resolved domain, not in Colly.
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.ParseHTTPErrorResponse = true
	base.WithTransport(transport)
	base.SetRequestTimeout(maxWait)
	return &engine{base: base, transport: transport}
}

// do performs one request and normalizes both the response and error paths
// into a rawResult. Responses with a usable status code are returned as data
// even when Colly reports them as errors (4xx/5xx).
func (e *engine) do(ctx context.Context, method, rawURL string, headers map[string]string) rawResult {
	collector := e.base.Clone()
	resultCh := make(chan rawResult, 1)
	var once sync.Once
	send := func(res rawResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(normalizeRaw(r))
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			send(normalizeRaw(r))
			return
		}
		if err == nil {
			err = errors.New("unknown transport error")
		}
		send(rawResult{err: err})
	})

	var visitErr error
	if method == http.MethodHead {
		visitErr = collector.Head(rawURL)
	} else {
		visitErr = collector.Visit(rawURL)
	}
	if visitErr != nil {
		return rawResult{err: visitErr}
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return rawResult{err: err}
		}
		return res
	default:
		return rawResult{err: errors.New("fetch produced no result")}
	}
}

// Close releases idle connections held by the shared transport.
func (e *engine) Close() {
	e.transport.CloseIdleConnections()
}

func normalizeRaw(r *colly.Response) rawResult {
	headers := http.Header{}
	if r.Headers != nil {
		for k, v := range *r.Headers {
			cp := make([]string, len(v))
			copy(cp, v)
			headers[k] = cp
		}
	}
	finalURL := ""
	if r.Request != nil && r.Request.URL != nil {
		finalURL = r.Request.URL.String()
	}
	return rawResult{
		finalURL:   finalURL,
		statusCode: r.StatusCode,
		body:       append([]byte(nil), r.Body...),
		headers:    headers,
	}
}
