/*
Package runtime wraps containerd's client API to launch and monitor the
sandboxed containers that run homie jobs.

It handles image pull, OCI spec generation with the full security
posture a sandbox for untrusted code requires, containerd namespace
isolation, graceful-then-forced shutdown, and combined-stream log
streaming for a running container.

# Security posture

Every container CreateContainer builds carries:

  - a small read-write tmpfs at /tmp
  - a bind mount of the job's workspace at /workspace
  - every Linux capability dropped
  - no-new-privileges

and, as the types.Container it is given asks (pkg/sandbox always sets
ReadOnlyRootfs and Resources):

  - a read-only root filesystem when ReadOnlyRootfs is set
  - from Resources: CPU shares + CFS quota, a hard memory limit, a pids
    limit, a fixed non-root uid:gid, and a network namespace isolated
    (no CNI attachment) unless NetworkMode is explicitly "host"

These are the only defense the rest of the system has against a job's
code; pkg/sandbox never builds OCI options itself, only a
types.Container description this package turns into them.

# Usage

	rt, err := runtime.NewContainerdRuntime("")
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	if err := rt.EnsureImage(ctx, "python:3.11-slim"); err != nil {
		log.Fatal(err)
	}

	id, err := rt.CreateContainer(ctx, container)
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.StartContainer(ctx, id); err != nil {
		log.Fatal(err)
	}

	logs, err := rt.GetContainerLogs(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	io.Copy(os.Stdout, logs)

# See also

  - pkg/sandbox for the per-job orchestration built on top of this package
  - pkg/types for Container and Resources
  - containerd documentation: https://containerd.io/
  - OCI runtime spec: https://github.com/opencontainers/runtime-spec
*/
package runtime
