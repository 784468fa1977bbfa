/*
Package log provides structured logging for homie using zerolog.

The log package wraps zerolog to provide JSON or console structured
logging with component-specific child loggers, configurable severity
levels, and helper functions for common logging patterns.

# Usage

	import "github.com/cuemby/homie/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("homie node starting")

	discLog := log.WithComponent("discovery")
	discLog.Trace().Err(err).Msg("heartbeat receive failed")

	jobLog := log.WithJobID(job.ID)
	jobLog.Info().Msg("job dispatched")

# Log Levels

Trace is used for best-effort, high-volume noise that isn't worth a
line at Debug; discovery's swallowed socket errors are the canonical
example. Debug,
Info, Warn, and Error follow the usual severity ladder; Fatal logs and
calls os.Exit(1).

# Context Loggers

WithComponent attaches a component field ("discovery", "sandbox",
"server", "history", ...). WithPeer and WithJobID attach the peer name
or job_id respectively, for log lines scoped to one connection or job.

# Design

Global Logger variable, initialized once via Init() before any other
package logs. Child loggers copy the parent's fields and level, so
creating one per request/job is cheap and adds no locking.
*/
package log
