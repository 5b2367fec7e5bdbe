// Package metrics owns the prometheus registry for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	QueueClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitescope",
		Subsystem: "queue",
		Name:      "claims_total",
		Help:      "Claim attempts by queue and outcome (claimed, lost, empty).",
	}, []string{"queue", "outcome"})

	QueueReleases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitescope",
		Subsystem: "queue",
		Name:      "releases_total",
		Help:      "Task completions by queue and outcome (done, retry, failed).",
	}, []string{"queue", "outcome"})

	FusionBranches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitescope",
		Subsystem: "fusion",
		Name:      "branches_total",
		Help:      "Vision provider branch outcomes by provider and status.",
	}, []string{"provider", "status"})

	SummaryCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitescope",
		Subsystem: "summary",
		Name:      "cache_total",
		Help:      "Findings summary cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		QueueClaims,
		QueueReleases,
		FusionBranches,
		SummaryCache,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
