// Package metrics exposes Prometheus instrumentation for a homie node:
// peer counts, job throughput, and history log size, plus a generic
// Timer helper used to record operation durations across packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PeersKnown is the number of peers currently considered live by discovery.
	PeersKnown = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homie",
		Subsystem: "discovery",
		Name:      "peers_known",
		Help:      "Number of peers currently marked live in the discovery table.",
	})

	// PeersSeenTotal counts peer joins since startup: each time a name is
	// added to the live table, including a peer that rejoins after eviction.
	PeersSeenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "discovery",
		Name:      "peers_seen_total",
		Help:      "Total number of peer joins (including rejoins after eviction) since process start.",
	})

	// HeartbeatsReceivedTotal counts accepted heartbeat gossip packets.
	HeartbeatsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "discovery",
		Name:      "heartbeats_received_total",
		Help:      "Total number of heartbeat packets accepted after signature verification.",
	})

	// HeartbeatsRejectedTotal counts heartbeats dropped for a malformed or invalid signature.
	HeartbeatsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "discovery",
		Name:      "heartbeats_rejected_total",
		Help:      "Total number of heartbeat packets rejected for signature failures.",
	})

	// JobsRunning is the number of jobs currently executing in the sandbox.
	JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "jobs_running",
		Help:      "Number of jobs currently executing on this node.",
	})

	// JobsAcceptedTotal counts jobs accepted for execution.
	JobsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "jobs_accepted_total",
		Help:      "Total number of jobs accepted for execution.",
	})

	// JobsSucceededTotal counts jobs that exited with status 0.
	JobsSucceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "jobs_succeeded_total",
		Help:      "Total number of jobs that completed with exit code 0.",
	})

	// JobsFailedTotal counts jobs that exited non-zero or errored before running.
	JobsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "jobs_failed_total",
		Help:      "Total number of jobs that completed with a non-zero exit code or failed to start.",
	})

	// JobsKilledTotal counts jobs terminated by an explicit kill request.
	JobsKilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "jobs_killed_total",
		Help:      "Total number of jobs terminated via a kill request.",
	})

	// JobDuration observes wall-clock job execution time.
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "homie",
		Subsystem: "sandbox",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock job duration as reported in each job's result, measured from the start of the executor's run.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// HistoryEntries is the current number of entries retained in the history log.
	HistoryEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homie",
		Subsystem: "history",
		Name:      "entries",
		Help:      "Number of entries currently retained in the job history log.",
	})

	// ResourceCPUPercent is this node's most recently sampled CPU utilization.
	ResourceCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homie",
		Subsystem: "resources",
		Name:      "cpu_percent",
		Help:      "Most recently sampled CPU utilization percentage for this node.",
	})

	// ResourceRAMFreeMB is this node's most recently sampled free RAM in megabytes.
	ResourceRAMFreeMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homie",
		Subsystem: "resources",
		Name:      "ram_free_mb",
		Help:      "Most recently sampled free RAM in megabytes for this node.",
	})
)

func init() {
	prometheus.MustRegister(
		PeersKnown,
		PeersSeenTotal,
		HeartbeatsReceivedTotal,
		HeartbeatsRejectedTotal,
		JobsRunning,
		JobsAcceptedTotal,
		JobsSucceededTotal,
		JobsFailedTotal,
		JobsKilledTotal,
		JobDuration,
		HistoryEntries,
		ResourceCPUPercent,
		ResourceRAMFreeMB,
	)
}

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for an in-flight operation and reports it to
// a histogram once the operation completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
