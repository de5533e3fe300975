// Package metrics implements the fleet-health observability surface
// (SPEC_FULL §4.9): Prometheus counters/gauges fed by the Worker Runtime,
// the Dispatcher and the Supervisor, served on /metrics alongside the
// Control Surface. Grounded on the teacher's own
// `github.com/prometheus/client_golang` usage (carried as ambient
// observability plumbing since spec.md's Non-goals name no exclusion for
// it).
/*
 * Copyright (c) 2024, argussight authors.
 */
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics satisfies both workers.Metrics (frame/command counters) and
// dispatch.Metrics (dispatch-wait histogram) structurally, without either
// package importing this one.
type Metrics struct {
	framesProcessed *prometheus.CounterVec
	framesMissed    *prometheus.CounterVec
	commandsHandled *prometheus.CounterVec
	activeWorkers   prometheus.Gauge
	dispatchWait    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argusd_frames_processed_total",
			Help: "Frames processed by a worker.",
		}, []string{"worker"}),
		framesMissed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argusd_frames_missed_total",
			Help: "Frames missed (sequence gaps) by a worker.",
		}, []string{"worker"}),
		commandsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argusd_commands_handled_total",
			Help: "Commands handled by a worker, labeled by outcome.",
		}, []string{"worker", "command", "outcome"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "argusd_active_workers",
			Help: "Number of currently running workers.",
		}),
		dispatchWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argusd_dispatch_wait_seconds",
			Help:    "Time a dispatched command spent from submission to outcome.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.framesProcessed, m.framesMissed, m.commandsHandled, m.activeWorkers, m.dispatchWait)
	return m
}

func (m *Metrics) FrameProcessed(worker string) { m.framesProcessed.WithLabelValues(worker).Inc() }

func (m *Metrics) FramesMissed(worker string, n int64) {
	m.framesMissed.WithLabelValues(worker).Add(float64(n))
}

func (m *Metrics) CommandHandled(worker, command string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.commandsHandled.WithLabelValues(worker, command, outcome).Inc()
}

func (m *Metrics) SetActiveWorkers(n int) { m.activeWorkers.Set(float64(n)) }

func (m *Metrics) ObserveDispatchWait(d time.Duration) { m.dispatchWait.Observe(d.Seconds()) }
