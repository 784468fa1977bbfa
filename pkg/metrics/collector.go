package metrics

import "time"

// PeerSource reports how many peers discovery currently considers live.
type PeerSource interface {
	LiveCount() int
}

// JobSource reports how many jobs the sandbox executor currently has running.
type JobSource interface {
	RunningCount() int
}

// HistorySource reports how many entries the history log currently retains.
type HistorySource interface {
	Count() int
}

// Collector samples gauges from the discovery, sandbox, and history
// subsystems on a fixed interval. Any source left nil is skipped.
type Collector struct {
	peers   PeerSource
	jobs    JobSource
	history HistorySource
	stopCh  chan struct{}
}

// NewCollector creates a metrics collector over the given sources.
func NewCollector(peers PeerSource, jobs JobSource, history HistorySource) *Collector {
	return &Collector{
		peers:   peers,
		jobs:    jobs,
		history: history,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds, sampling immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector's background ticker.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.peers != nil {
		PeersKnown.Set(float64(c.peers.LiveCount()))
	}
	if c.jobs != nil {
		JobsRunning.Set(float64(c.jobs.RunningCount()))
	}
	if c.history != nil {
		HistoryEntries.Set(float64(c.history.Count()))
	}
}
