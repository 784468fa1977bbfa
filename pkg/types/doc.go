/*
Package types defines the small set of plain structs and enums shared
across homie's packages: Role (sender/executor, for history records),
JobState (a job's executor-side lifecycle), ContainerState (the
runtime driver's view of a container), Resources (the caps enforced on
a sandboxed container), and Container (the description pkg/runtime
turns into a real one).

Most domain types (Job, JobResult, Peer, Config, HistoryEntry) live
in their own packages (pkg/job, pkg/discovery, pkg/config, pkg/history)
since they are each owned and mutated by exactly one component. Only
the handful of shapes genuinely passed between packages live here.
*/
package types
