// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/hlid/pkg/workunit"
)

// Metrics is a Prometheus Observer exposing dispatcher progress as gauges
// and counters on the HTTP endpoint named by the metrics_addr setting.
type Metrics struct {
	registry *prometheus.Registry

	completed       prometheus.Counter
	aborted         prometheus.Counter
	giveups         prometheus.Counter
	resurrections   prometheus.Counter
	allocatedGauge  prometheus.Gauge
	freeGauge       prometheus.Gauge
	packedGauge     prometheus.Gauge
	unpackedGauge   prometheus.Gauge
	abortedGauge    prometheus.Gauge
	abandonedGauge  prometheus.Gauge
}

// NewMetrics registers a fresh metric set on its own registry, isolated
// from any global default registry so multiple dispatcher instances in the
// same process don't collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		completed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hlid_computations_completed_total",
			Help: "Total work units the engine completed.",
		}),
		aborted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hlid_computations_aborted_total",
			Help: "Total work units moved to the aborted store.",
		}),
		giveups: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hlid_computations_giveup_total",
			Help: "Total work units written to the giveup log.",
		}),
		resurrections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hlid_computations_resurrected_total",
			Help: "Total aborted work units reassigned at a higher memory cap.",
		}),
		allocatedGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_memory_allocated_mb",
			Help: "Megabytes currently allocated across all workers.",
		}),
		freeGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_memory_free_mb",
			Help: "Megabytes remaining in the total budget.",
		}),
		packedGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_templates_packed_remaining",
			Help: "Remaining cardinality of queued templates.",
		}),
		unpackedGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_ready_set_size",
			Help: "Work units currently in the ready set.",
		}),
		abortedGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_aborted_store_size",
			Help: "Work units currently in the aborted store.",
		}),
		abandonedGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hlid_abandoned_total",
			Help: "Work units abandoned to the giveup log so far.",
		}),
	}
	return m
}

// Handler returns the HTTP handler to mount at the metrics_addr address.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ComputationsAdded(int, int) {}
func (m *Metrics) ThreadStarted(int)          {}
func (m *Metrics) ThreadStopped(int)          {}

func (m *Metrics) BadComputation(workunit.Unit, int, bool) {
	m.aborted.Inc()
}

func (m *Metrics) FinishedComputations(n int, _ int) {
	m.completed.Add(float64(n))
}

func (m *Metrics) Unpacking()        {}
func (m *Metrics) Unpacked(int)      {}
func (m *Metrics) RemovedInDB(int)   {}
func (m *Metrics) RemovedPrecalculated(int) {}
func (m *Metrics) LoadedComputations(string) {}

func (m *Metrics) AbortedToGiveup(n int) {
	m.giveups.Add(float64(n))
}

func (m *Metrics) Resurrected(n int, _ int) {
	m.resurrections.Add(float64(n))
}

func (m *Metrics) Assigned(int) {}

func (m *Metrics) Tick(packed, unpacked, bad, abandoned int) {
	m.packedGauge.Set(float64(packed))
	m.unpackedGauge.Set(float64(unpacked))
	m.abortedGauge.Set(float64(bad))
	m.abandonedGauge.Set(float64(abandoned))
}

func (m *Metrics) UpdateBadSummary([]CapCount) {}

func (m *Metrics) DisplayMemory(_, _, allocated, free int) {
	m.allocatedGauge.Set(float64(allocated))
	m.freeGauge.Set(float64(free))
}
