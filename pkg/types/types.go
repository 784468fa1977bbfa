// Package types holds the small set of plain structs and enums shared
// across homie's packages, so discovery, sandbox, and history all speak
// the same vocabulary instead of each defining near-duplicate shapes.
package types

import "time"

// Role identifies which side of a job a history record was written from.
type Role string

const (
	RoleSender   Role = "sender"
	RoleExecutor Role = "executor"
)

// JobState is the lifecycle state of a job on the executor side.
type JobState string

const (
	JobStateNew       JobState = "new"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateKilled    JobState = "killed"
)

// ContainerState is the lifecycle state of a sandboxed container as
// reported by the runtime driver.
type ContainerState string

const (
	ContainerStatePending  ContainerState = "pending"
	ContainerStateRunning  ContainerState = "running"
	ContainerStateComplete ContainerState = "complete"
	ContainerStateFailed   ContainerState = "failed"
)

// Resources describes the resource caps enforced on a sandboxed container.
type Resources struct {
	CPUCores    float64 // cores, e.g. 1.5
	MemoryBytes int64
	PIDs        int64
	TimeoutSecs int
	NetworkMode string // "none" or "host"; any other value behaves as "none"
	UID         uint32
	GID         uint32
}

// Container describes a sandboxed job container for the runtime driver
// to create and start. It carries the full security posture a sandbox
// for untrusted code needs: read-only rootfs, a tmpfs /tmp, non-root
// uid, all capabilities dropped, no-new-privileges, and optional GPU
// attachment.
type Container struct {
	ID              string
	Image           string
	Command         []string
	Env             []string
	WorkspaceHostPath string
	Resources       *Resources
	ReadOnlyRootfs  bool
	GPU             bool
	CreatedAt       time.Time
}
