package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/homie/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace homie's sandboxed job
	// containers run in, isolating them from any other containerd tenant
	// sharing the same daemon.
	DefaultNamespace = "homie"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// tmpfsSize bounds the tmpfs mounted at /tmp inside every job
	// container.
	tmpfsSize = "size=64m"
)

// ContainerdRuntime drives containerd to create, start, monitor, and tear
// down the sandboxed containers a job runs in. Every container it creates
// gets a tmpfs /tmp, all capabilities dropped and no-new-privileges; the
// read-only rootfs follows Container.ReadOnlyRootfs, and the non-root uid,
// resource limits and network isolation follow Container.Resources.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string

	mu   sync.Mutex
	logs map[string]*io.PipeReader
}

// NewContainerdRuntime creates a new containerd runtime client.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
		logs:      make(map[string]*io.PipeReader),
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ContainerdRuntime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// Ready reports whether the containerd daemon is reachable.
func (r *ContainerdRuntime) Ready(ctx context.Context) error {
	ctx = r.ctx(ctx)
	serving, err := r.client.IsServing(ctx)
	if err != nil {
		return fmt.Errorf("containerd health check: %w", err)
	}
	if !serving {
		return fmt.Errorf("containerd is not serving")
	}
	return nil
}

// EnsureImage checks whether imageRef is present locally and pulls it on
// a miss.
func (r *ContainerdRuntime) EnsureImage(ctx context.Context, imageRef string) error {
	ctx = r.ctx(ctx)

	if _, err := r.client.GetImage(ctx, imageRef); err == nil {
		return nil
	}

	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("Docker image not found: %s: %w", imageRef, err)
	}
	return nil
}

// CreateContainer materializes a containerd container from c: the entry
// command, environment, workspace bind mount, and the hardened OCI spec
// (read-only rootfs, tmpfs /tmp, dropped caps, no-new-privileges, resource
// caps, and GPU attachment when requested).
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, c *types.Container) (string, error) {
	ctx = r.ctx(ctx)

	image, err := r.client.GetImage(ctx, c.Image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", c.Image, err)
	}

	opts, err := specOpts(c, image)
	if err != nil {
		return "", fmt.Errorf("build oci spec for %s: %w", c.ID, err)
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		c.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(c.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return ctrdContainer.ID(), nil
}

// specOpts builds the OCI spec options for a sandboxed job container.
// Every option here is part of the system's only defense against
// untrusted code. The tmpfs, dropped capabilities and no-new-privileges
// are always applied; the read-only rootfs is applied when
// c.ReadOnlyRootfs is set, and the limits and uid:gid when c.Resources is
// non-nil (pkg/sandbox always sets both).
func specOpts(c *types.Container, image containerd.Image) ([]oci.SpecOpts, error) {
	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(c.Env),
		oci.WithProcessCwd("/workspace"),
	}
	if len(c.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(c.Command...))
	}

	if c.ReadOnlyRootfs {
		opts = append(opts, oci.WithRootFSReadonly())
	}

	mounts := []specs.Mount{
		{
			Source:      c.WorkspaceHostPath,
			Destination: "/workspace",
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		},
		{
			Source:      "tmpfs",
			Destination: "/tmp",
			Type:        "tmpfs",
			Options:     []string{"nosuid", "nodev", "rw", tmpfsSize},
		},
	}
	opts = append(opts, oci.WithMounts(mounts))

	if c.Resources != nil {
		res := c.Resources
		if res.CPUCores > 0 {
			shares := uint64(res.CPUCores * 1024)
			quota := int64(res.CPUCores * 100000)
			period := uint64(100000)
			opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, period))
		}
		if res.MemoryBytes > 0 {
			opts = append(opts, oci.WithMemoryLimit(uint64(res.MemoryBytes)))
		}
		if res.PIDs > 0 {
			opts = append(opts, oci.WithPidsLimit(res.PIDs))
		}
		opts = append(opts, oci.WithUIDGID(res.UID, res.GID))

		switch res.NetworkMode {
		case "host":
			opts = append(opts, oci.WithHostNamespace(specs.NetworkNamespace), oci.WithHostHostsFile, oci.WithHostResolvconf)
		default:
			// "none" (the default) and any unrecognized mode: the
			// container gets its own empty network namespace with no
			// CNI attachment, so only loopback is reachable.
		}
	}

	// Drop every capability; no sandboxed job needs any of them.
	opts = append(opts, oci.WithCapabilities(nil))
	opts = append(opts, oci.WithNoNewPrivileges)

	// GPU attachment sets only the NVIDIA environment variables; no OCI
	// device entry is added, so the GPU is exposed only where the host's
	// container runtime acts on these variables.
	if c.GPU {
		opts = append(opts, oci.WithEnv([]string{
			"NVIDIA_VISIBLE_DEVICES=all",
			"NVIDIA_DRIVER_CAPABILITIES=compute,utility",
		}))
	}

	return opts, nil
}

// StartContainer creates a containerd task for containerID, wires its
// combined stdout+stderr into an io.PipeReader retrievable via
// GetContainerLogs, and starts it. The pipe writer is closed once the
// task exits so streaming readers see a clean EOF. No TTY is ever
// allocated, so stdout and stderr collapse into one stream.
func (r *ContainerdRuntime) StartContainer(ctx context.Context, containerID string) error {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	pr, pw := io.Pipe()
	r.mu.Lock()
	r.logs[containerID] = pr
	r.mu.Unlock()

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, pw, pw)))
	if err != nil {
		pw.Close()
		return fmt.Errorf("failed to create task: %w", err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		pw.Close()
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start task: %w", err)
	}

	go func() {
		<-statusC
		pw.Close()
	}()

	return nil
}

// GetContainerLogs returns the combined stdout+stderr stream attached at
// StartContainer. The stream reaches EOF once the container exits.
func (r *ContainerdRuntime) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	r.mu.Lock()
	pr, ok := r.logs[containerID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no log stream attached for container %s (StartContainer not called)", containerID)
	}
	return pr, nil
}

// StopContainer stops a container's task, trying SIGTERM first and
// falling back to SIGKILL if it does not exit within timeout. The task
// is deleted afterwards whether or not it was still running, so a
// container whose task already exited on its own comes out clean too.
func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task means nothing is running
	}

	status, err := task.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get task status: %w", err)
	}

	if status.Status == containerd.Running || status.Status == containerd.Paused {
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		statusC, err := task.Wait(stopCtx)
		if err != nil {
			return fmt.Errorf("failed to wait for task: %w", err)
		}

		if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to kill task: %w", err)
		}

		select {
		case <-statusC:
		case <-stopCtx.Done():
			if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
				return fmt.Errorf("failed to force kill task: %w", err)
			}
			<-statusC
		}
	}

	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// DeleteContainer stops (if running) and removes a container and its
// snapshot, and forgets its attached log stream.
func (r *ContainerdRuntime) DeleteContainer(ctx context.Context, containerID string) error {
	ctx = r.ctx(ctx)

	defer func() {
		r.mu.Lock()
		delete(r.logs, containerID)
		r.mu.Unlock()
	}()

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil // already gone
	}

	_ = r.StopContainer(ctx, containerID, 10*time.Second) // best effort; continue regardless

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

// GetContainerStatus returns the lifecycle state of a container.
func (r *ContainerdRuntime) GetContainerStatus(ctx context.Context, containerID string) (types.ContainerState, error) {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.ContainerStateFailed, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.ContainerStatePending, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ContainerStateFailed, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.ContainerStateRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.ContainerStateComplete, nil
		}
		return types.ContainerStateFailed, nil
	default:
		return types.ContainerStatePending, nil
	}
}

// ExitCode returns the exit code of a stopped container's task.
func (r *ContainerdRuntime) ExitCode(ctx context.Context, containerID string) (uint32, error) {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get task: %w", err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get task status: %w", err)
	}
	return status.ExitStatus, nil
}

// IsRunning reports whether containerID's task is currently running.
// pkg/sandbox polls this as its liveness check while streaming output.
func (r *ContainerdRuntime) IsRunning(ctx context.Context, containerID string) bool {
	status, err := r.GetContainerStatus(ctx, containerID)
	if err != nil {
		return false
	}
	return status == types.ContainerStateRunning
}
