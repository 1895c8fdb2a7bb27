package sinks

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
)

// PrometheusSink exports pipeline progress counts via Prometheus.
type PrometheusSink struct {
	events   *prometheus.CounterVec
	failures prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_pipeline_events_total",
			Help: "Pipeline progress events partitioned by stage and kind.",
		}, []string{"stage", "kind"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_pipeline_failures_total",
			Help: "Runs that could not proceed past the discover stage.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.failures} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume counts the event by stage and kind.
func (s *PrometheusSink) Consume(evt progress.Event) {
	s.events.WithLabelValues(string(evt.Stage), string(evt.Kind)).Inc()
	if evt.Kind == progress.KindFailure {
		s.failures.Inc()
	}
}
