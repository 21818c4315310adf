// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for the hyphagw
// router.  It exposes typed collectors so that router/registry/cluster code
// can remain import-cycle-free.  The package registers with the global
// prometheus.DefaultRegisterer, which callers typically expose via the
// /metrics HTTP handler from the Prometheus client library.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// Gauge metrics ---------------------------------------------------------
	ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hypha",
		Subsystem: "router",
		Name:      "connected_peers",
		Help:      "Number of peers currently connected to this router instance.",
	})

	ActiveWorkspaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hypha",
		Subsystem: "router",
		Name:      "active_workspaces",
		Help:      "Number of workspaces currently held in memory.",
	})

	RegisteredServices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hypha",
		Subsystem: "registry",
		Name:      "registered_services",
		Help:      "Number of services currently registered across all workspaces.",
	})

	ClusterActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hypha",
		Subsystem: "cluster",
		Name:      "coordinator_active",
		Help:      "1 if the cluster coordinator is connected to its store, 0 otherwise.",
	})

	// Counter metrics -------------------------------------------------------
	FramesRoutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hypha",
		Subsystem: "router",
		Name:      "frames_routed_total",
		Help:      "Total number of frames routed, partitioned by outcome.",
	}, []string{"outcome"})

	FramesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hypha",
		Subsystem: "router",
		Name:      "frames_dropped_total",
		Help:      "Total number of frames dropped, partitioned by reason.",
	}, []string{"reason"})

	HTTPInvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hypha",
		Subsystem: "httpgw",
		Name:      "invocations_total",
		Help:      "Total number of HTTP-proxied service invocations, partitioned by status class.",
	}, []string{"status_class"})

	ClusterForwardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hypha",
		Subsystem: "cluster",
		Name:      "forwards_total",
		Help:      "Total number of frames forwarded to a sibling router.",
	})
)

// Register exports all metrics; safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ConnectedPeers,
			ActiveWorkspaces,
			RegisteredServices,
			ClusterActive,
			FramesRoutedTotal,
			FramesDroppedTotal,
			HTTPInvocationsTotal,
			ClusterForwardsTotal,
		)
	})
}
