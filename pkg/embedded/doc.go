/*
Package embedded manages the containerd daemon that backs a homie node.

A node either bundles its own containerd binary and supervises it as a
child process, or connects to an already-running system/external
containerd at the system default socket. The embedded path exists so
`homie serve` works out of the box on a bare Linux host with no separate
containerd install.

# Architecture

	┌───────────────── ContainerdManager ─────────────────┐
	│                                                       │
	│  useExternal=false          useExternal=true         │
	│       │                            │                 │
	│       ▼                            ▼                 │
	│  extract binary from         skip straight to         │
	│  go:embed FS, write          /run/containerd/         │
	│  config (CRI disabled),      containerd.sock          │
	│  exec containerd --address                            │
	│  <socket> --root --state                              │
	│       │                                               │
	│       ▼                                               │
	│  poll IsServing until the API answers; one wait       │
	│  goroutine owns the exit status; SIGTERM→SIGKILL      │
	│  on Stop                                              │
	└───────────────────────────────────────────────────────┘

# Core Components

ContainerdManager:
  - Extracts the containerd binary matching runtime.GOOS/GOARCH from the
    embedded FS
  - Writes the daemon config to <data-dir>/containerd-config.toml with
    the CRI plugin disabled: homie drives containerd through the native
    client API (pkg/runtime), and CRI only serves Kubernetes-style
    callers
  - Launches containerd as a child process and polls its API with
    IsServing until the daemon is actually answering
  - A single wait goroutine owns the child's exit status, logging an
    unexpected exit and handing the status to Stop through a channel
  - Graceful shutdown: SIGTERM, 10s grace period, then SIGKILL

Binary Embedding:
  - //go:embed binaries/* bundles one containerd binary per
    GOOS/GOARCH pair built into the homie binary
  - Extracted to <data-dir>/bin/containerd; re-extraction is skipped
    only while the on-disk copy's size matches the bundled one, so
    upgrading homie refreshes the daemon too

# Usage

Embedded containerd:

	mgr, err := embedded.NewContainerdManager("/var/lib/homie", false)
	if err != nil {
		log.Fatal(err)
	}
	if err := mgr.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer mgr.Stop()
	socketPath := mgr.GetSocketPath()

External/system containerd:

	mgr, err := embedded.NewContainerdManager("/var/lib/homie", true)
	// Start is a no-op; GetSocketPath returns /run/containerd/containerd.sock

`cmd/homie serve` additionally accepts --containerd-socket to bypass this
package entirely and dial a caller-chosen socket directly.

# Integration Points

  - pkg/runtime connects to the socket this package exposes
  - pkg/sandbox runs job containers over that connection
  - cmd/homie calls EnsureContainerd once at serve startup, before
    constructing the pkg/runtime client

# Design Patterns

Idempotent operations: Start is a no-op when useExternal is set, Stop
tolerates a manager that was never started, and binary extraction skips
entirely when the staged copy already matches the bundled one.

# Troubleshooting

Binary Not Found:
  - Symptom: "no containerd bundled for <os>/<arch>" error
  - Cause: binary not embedded during build
  - Check: ls pkg/embedded/binaries/

Permission Denied:
  - Symptom: "permission denied" starting containerd
  - Cause: insufficient privileges (need root or containerd group)
  - Check: ls -l /run/containerd/containerd.sock

Socket Not Found:
  - Symptom: timeout waiting for containerd to be ready
  - Check: socket path from GetSocketPath(), containerd process logs

# See Also

  - pkg/runtime for the containerd client
  - containerd documentation: https://containerd.io/
  - runc documentation: https://github.com/opencontainers/runc
*/
package embedded
