// Package metrics exposes the handoff manager's observation points as
// Prometheus gauges and counters, kept out of the core algorithm and
// wired in as a side collaborator instead, the way other services in
// this codebase wire github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Handoff bundles the gauges and counters the manager updates as it
// runs. A nil *Handoff is safe to call methods on (all become no-ops),
// so callers that don't care about metrics can pass nil.
type Handoff struct {
	MirroredPartitions prometheus.Gauge
	Followers          prometheus.Gauge
	PendingOps         prometheus.Gauge
	OpRetries          prometheus.Counter
	OpsDropped         prometheus.Counter
	DuplicatesDestroyed prometheus.Counter
}

// NewHandoff registers a fresh set of collectors against reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a
// prometheus.NewRegistry() in tests.
func NewHandoff(reg prometheus.Registerer, silo string) *Handoff {
	labels := prometheus.Labels{"silo": silo}
	h := &Handoff{
		MirroredPartitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "silodir",
			Name:        "mirrored_partitions",
			Help:        "Number of other silos' partitions this silo currently mirrors.",
			ConstLabels: labels,
		}),
		Followers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "silodir",
			Name:        "followers",
			Help:        "Number of successors currently mirroring this silo's partition.",
			ConstLabels: labels,
		}),
		PendingOps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "silodir",
			Name:        "pending_ops",
			Help:        "Depth of the handoff operation queue.",
			ConstLabels: labels,
		}),
		OpRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "silodir",
			Name:        "op_retries_total",
			Help:        "Number of handoff operation retry attempts.",
			ConstLabels: labels,
		}),
		OpsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "silodir",
			Name:        "ops_dropped_total",
			Help:        "Number of handoff operations dropped after exhausting retries.",
			ConstLabels: labels,
		}),
		DuplicatesDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "silodir",
			Name:        "duplicates_destroyed_total",
			Help:        "Number of duplicate activations destroyed after losing a registration race.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(h.MirroredPartitions, h.Followers, h.PendingOps, h.OpRetries, h.OpsDropped, h.DuplicatesDestroyed)
	}
	return h
}

func (h *Handoff) SetMirroredPartitions(n int) {
	if h == nil {
		return
	}
	h.MirroredPartitions.Set(float64(n))
}

func (h *Handoff) SetFollowers(n int) {
	if h == nil {
		return
	}
	h.Followers.Set(float64(n))
}

func (h *Handoff) SetPendingOps(n int) {
	if h == nil {
		return
	}
	h.PendingOps.Set(float64(n))
}

func (h *Handoff) IncRetry() {
	if h == nil {
		return
	}
	h.OpRetries.Inc()
}

func (h *Handoff) IncDropped() {
	if h == nil {
		return
	}
	h.OpsDropped.Inc()
}

func (h *Handoff) AddDuplicatesDestroyed(n int) {
	if h == nil || n <= 0 {
		return
	}
	h.DuplicatesDestroyed.Add(float64(n))
}
