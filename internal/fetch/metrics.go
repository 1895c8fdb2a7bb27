package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal tracks wire requests dispatched, by method.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkcheck_requests_total",
		Help: "The total number of HTTP requests sent, by method.",
	}, []string{"method"})
	// retriesTotal tracks retry attempts beyond the first request.
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkcheck_retries_total",
		Help: "The total number of request retries.",
	})
	// policyDenialsTotal tracks requests denied before any payload fetch.
	policyDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkcheck_policy_denials_total",
		Help: "The total number of requests denied by crawl policy, by reason.",
	}, []string{"reason"})
	// robotsFetchesTotal tracks robots.txt lookups that hit the network.
	robotsFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkcheck_robots_fetches_total",
		Help: "The total number of robots.txt files fetched.",
	})
	// redirectProbesTotal tracks HEAD probes used to resolve redirect targets.
	redirectProbesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkcheck_redirect_probes_total",
		Help: "The total number of redirect-resolution probes sent.",
	})
	// sentinelsTotal tracks requests that degraded to the sentinel response.
	sentinelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkcheck_sentinel_responses_total",
		Help: "The total number of requests that produced no usable response.",
	})
)
