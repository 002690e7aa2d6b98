// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LatencyBuckets are the default histogram buckets from spec §4.4, in
// seconds.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Histograms lazily creates and caches one cumulative latency histogram per
// (proxy,target), and exposes the backing registry so the (out-of-scope)
// Prometheus exporter collaborator can scrape it — this package never
// starts its own metrics HTTP server.
type Histograms struct {
	registry *prometheus.Registry
	vec      *prometheus.HistogramVec
}

// NewHistograms creates an empty set of latency histograms.
func NewHistograms() *Histograms {
	registry := prometheus.NewRegistry()
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "l4lb",
		Subsystem: "health",
		Name:      "probe_latency_seconds",
		Help:      "Health probe latency in seconds, labeled by proxy and target.",
		Buckets:   LatencyBuckets,
	}, []string{"proxy", "target"})
	registry.MustRegister(vec)
	return &Histograms{registry: registry, vec: vec}
}

// Observe records one probe's latency for (proxy,target).
func (h *Histograms) Observe(proxy, target string, seconds float64) {
	h.vec.WithLabelValues(proxy, target).Observe(seconds)
}

// Registerer exposes the backing prometheus.Registry for an external
// exporter to scrape.
func (h *Histograms) Registerer() *prometheus.Registry { return h.registry }
