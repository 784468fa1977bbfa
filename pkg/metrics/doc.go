/*
Package metrics provides Prometheus instrumentation for a homie node.

Metrics are registered at package init and exposed via an HTTP handler for
scraping. The Collector samples gauges (live peer count, running job count,
history log size) from the discovery, sandbox, and history subsystems on a
fixed interval; counters and histograms are updated directly by the callers
that observe the underlying event (a heartbeat verified, a job finished).

# Metrics Catalog

homie_discovery_peers_known: current size of the live peer table.
homie_discovery_peers_seen_total: peer joins since start, rejoins included.
homie_discovery_heartbeats_received_total / heartbeats_rejected_total:
accepted vs. signature-rejected gossip packets.
homie_sandbox_jobs_running: jobs currently executing.
homie_sandbox_jobs_accepted_total / jobs_succeeded_total / jobs_failed_total /
jobs_killed_total: job outcome counters.
homie_sandbox_job_duration_seconds: job wall-clock duration histogram.
homie_history_entries: current size of the history log.
homie_resources_cpu_percent / ram_free_mb: this node's last-sampled load.

# Usage

	import "github.com/cuemby/homie/pkg/metrics"

	metrics.JobsAcceptedTotal.Inc()
	timer := metrics.NewTimer()
	runJob()
	timer.ObserveDuration(metrics.JobDuration)

	http.Handle("/metrics", metrics.Handler())

Collector wiring:

	c := metrics.NewCollector(disc, exec, hist)
	c.Start()
	defer c.Stop()

disc, exec, and hist need only satisfy PeerSource, JobSource, and
HistorySource respectively; pass nil for any source not in use.
*/
package metrics
