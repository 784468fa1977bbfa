package embedded

import (
	"context"
)

// EnsureContainerd starts the embedded containerd manager for dataDir
// (or skips straight to the external socket when useExternal is set) and
// returns it once the daemon is reachable. Callers own the returned
// manager's lifetime and must Stop it on shutdown.
func EnsureContainerd(ctx context.Context, dataDir string, useExternal bool) (*ContainerdManager, error) {
	manager, err := NewContainerdManager(dataDir, useExternal)
	if err != nil {
		return nil, err
	}

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	return manager, nil
}
