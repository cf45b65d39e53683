// Package metrics registers the coordinator's Prometheus collectors. The
// /metrics endpoint itself is wired in the api package via promhttp.Handler;
// this package only owns the collector definitions so every component
// increments through a single shared instance instead of redeclaring gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the gauge for the number of scan_queue rows per status.
	// No code in the coordinator sets it.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reconmc",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of scan queue rows by status.",
	}, []string{"status"})

	// AgentsOnline is the gauge for the count of agents considered online.
	// No code in the coordinator sets it.
	AgentsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "reconmc",
		Subsystem: "agents",
		Name:      "online",
		Help:      "Number of agents that heartbeated within the liveness window.",
	})

	// ScansCompleted counts completed scans by outcome (completed, failed).
	ScansCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconmc",
		Subsystem: "scans",
		Name:      "completed_total",
		Help:      "Total scans that reached a terminal state, by outcome.",
	}, []string{"outcome"})

	// ScansReclaimed counts rows the recovery sweep force-failed after
	// finding them stuck in processing past the threshold.
	ScansReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconmc",
		Subsystem: "scans",
		Name:      "reclaimed_total",
		Help:      "Total scan_queue rows reclaimed by the recovery sweep.",
	})

	// ResourcePoolUsage is the gauge for current_usage/max_concurrent
	// utilization of proxies and accounts. No code in the coordinator sets it.
	ResourcePoolUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reconmc",
		Subsystem: "allocator",
		Name:      "pool_usage_ratio",
		Help:      "Fraction of max_concurrent currently in use, by pool.",
	}, []string{"pool"})
)
