/*
Package probe samples local resource state (CPU%, free/total RAM, and
an optional GPU name + free VRAM) on its own ticker and caches the
latest Reading, so pkg/discovery's broadcaster never blocks on a
syscall while building a heartbeat.

The sampling reads /proc/stat and /proc/meminfo directly and shells out
to nvidia-smi when present, so the package carries no third-party
system-stats dependency.

	p := probe.New(2 * time.Second)
	p.Start()
	defer p.Stop()
	reading := p.Latest()
*/
package probe
