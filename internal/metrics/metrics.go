// Package metrics exposes Prometheus instrumentation for the scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the scheduler's Prometheus metrics.
type Collector struct {
	ticks           prometheus.Counter
	completions     prometheus.Counter
	aborts          prometheus.Counter
	controlOps      *prometheus.CounterVec
	persistFailures prometheus.Counter
	activeMissions  prometheus.Gauge
}

// NewCollector creates and registers the metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_ticks_total",
			Help: "Total number of simulation ticks executed",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_missions_completed_total",
			Help: "Total number of missions driven to completion",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_missions_aborted_total",
			Help: "Total number of missions aborted",
		}),
		controlOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sched_control_operations_total",
			Help: "Control operations by operation and result",
		}, []string{"op", "result"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_persist_failures_total",
			Help: "Total number of store write failures observed during ticks",
		}),
		activeMissions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sched_active_missions",
			Help: "Number of missions with a running timer",
		}),
	}
	reg.MustRegister(c.ticks, c.completions, c.aborts, c.controlOps, c.persistFailures, c.activeMissions)
	return c
}

// NewNopCollector returns a collector registered nowhere, for tests.
func NewNopCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

// RecordTick counts one executed simulation tick.
func (c *Collector) RecordTick() {
	c.ticks.Inc()
}

// RecordCompletion counts one completed mission.
func (c *Collector) RecordCompletion() {
	c.completions.Inc()
}

// RecordAbort counts one aborted mission.
func (c *Collector) RecordAbort() {
	c.aborts.Inc()
}

// RecordControl counts a control operation outcome.
func (c *Collector) RecordControl(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.controlOps.WithLabelValues(op, result).Inc()
}

// RecordPersistFailure counts one store write failure during a tick.
func (c *Collector) RecordPersistFailure() {
	c.persistFailures.Inc()
}

// SetActiveMissions updates the running-timer gauge.
func (c *Collector) SetActiveMissions(n int) {
	c.activeMissions.Set(float64(n))
}
