/*
Package sandbox orchestrates one job's full lifecycle on the executor
side: materialize a workspace, launch a constrained
container via pkg/runtime, stream its output, enforce the per-job
timeout, collect output artifacts, and clean up, regardless of how the
job ended.

Executor owns the running-jobs table; the worker (pkg/server) reaches
it only through List and Kill, never through a container handle. Kill
cancels the job's context, which the run loop observes on its next
iteration and converts into a stopped container and a non-nil
JobResult.Error. After Kill returns true the job never completes
normally.

Run never returns a Go error: every failure mode (bad image, failed
container start, timeout, non-zero exit) converges on a populated
job.JobResult, matching the wire contract a connection's 'R' frame
always carries exactly one of.
*/
package sandbox
