package embedded

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/rs/zerolog"

	"github.com/cuemby/homie/pkg/log"
)

//go:embed binaries/*
var binaries embed.FS

const (
	// DefaultDataDir is where homie stores the extracted containerd
	// binary and the daemon's root/state directories when no system
	// containerd is available.
	DefaultDataDir = "/var/lib/homie"

	// ContainerdSocketPath is where the embedded daemon listens. Kept
	// apart from the system default so an embedded homie node never
	// fights a host containerd over the same socket.
	ContainerdSocketPath = "/run/homie-containerd/containerd.sock"

	// systemSocketPath is the system containerd socket used with
	// --external-containerd.
	systemSocketPath = "/run/containerd/containerd.sock"

	// readyTimeout bounds how long Start waits for the daemon's API to
	// answer before giving up.
	readyTimeout = 30 * time.Second

	// stopGracePeriod is how long Stop waits after SIGTERM before
	// killing the daemon outright.
	stopGracePeriod = 10 * time.Second
)

// daemonConfig is the embedded daemon's entire configuration. homie
// drives containerd through the native client API (pkg/runtime), so the
// CRI plugin, which only serves Kubernetes-style callers, is disabled.
const daemonConfig = `version = 2

disabled_plugins = ["io.containerd.grpc.v1.cri"]
`

// ContainerdManager supervises the containerd daemon backing a homie
// node: either the bundled binary run as a child process, or an
// already-running system daemon reached at the default socket.
type ContainerdManager struct {
	dataDir     string
	socketPath  string
	configPath  string
	binaryPath  string
	useExternal bool

	cmd    *exec.Cmd
	waitCh chan error
	logger zerolog.Logger
}

// NewContainerdManager creates a manager rooted at dataDir. With
// useExternal set, the manager is a thin pointer at the system daemon
// and Start/Stop are no-ops.
func NewContainerdManager(dataDir string, useExternal bool) (*ContainerdManager, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	return &ContainerdManager{
		dataDir:     dataDir,
		socketPath:  ContainerdSocketPath,
		configPath:  filepath.Join(dataDir, "containerd-config.toml"),
		useExternal: useExternal,
		logger:      log.WithComponent("embedded-containerd"),
	}, nil
}

// Start extracts the bundled binary, writes the daemon config, launches
// containerd as a child process, and blocks until its API answers a
// health check.
func (cm *ContainerdManager) Start(ctx context.Context) error {
	if cm.useExternal {
		cm.logger.Info().Str("socket", systemSocketPath).Msg("using system containerd")
		return nil
	}

	if err := cm.extractBinary(); err != nil {
		return fmt.Errorf("extract containerd binary: %w", err)
	}
	if err := cm.writeConfig(); err != nil {
		return fmt.Errorf("write containerd config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cm.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	cm.logger.Info().Str("socket", cm.socketPath).Msg("starting embedded containerd")

	cm.cmd = exec.CommandContext(ctx, cm.binaryPath,
		"--config", cm.configPath,
		"--address", cm.socketPath,
		"--root", filepath.Join(cm.dataDir, "containerd"),
		"--state", filepath.Join(cm.dataDir, "containerd-state"),
	)
	cm.cmd.Stdout = &logWriter{logger: cm.logger, level: "debug"}
	cm.cmd.Stderr = &logWriter{logger: cm.logger, level: "error"}

	if err := cm.cmd.Start(); err != nil {
		return fmt.Errorf("start containerd: %w", err)
	}

	// One goroutine owns cmd.Wait; Stop collects the exit status from
	// waitCh rather than calling Wait a second time.
	cm.waitCh = make(chan error, 1)
	go func() {
		err := cm.cmd.Wait()
		cm.waitCh <- err
		select {
		case <-ctx.Done():
			// shutdown in progress, Stop reports it
		default:
			cm.logger.Error().Err(err).Msg("containerd exited; jobs will fail until the node restarts")
		}
	}()

	if err := cm.waitForReady(ctx); err != nil {
		cm.Stop()
		return fmt.Errorf("containerd did not become ready: %w", err)
	}

	cm.logger.Info().Msg("embedded containerd ready")
	return nil
}

// Stop shuts the embedded daemon down: SIGTERM, a grace period, then a
// hard kill. Safe to call on an external or never-started manager.
func (cm *ContainerdManager) Stop() error {
	if cm.useExternal || cm.cmd == nil || cm.cmd.Process == nil {
		return nil
	}

	cm.logger.Info().Msg("stopping embedded containerd")

	if err := cm.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		cm.logger.Error().Err(err).Msg("failed to signal containerd")
	}

	select {
	case <-cm.waitCh:
	case <-time.After(stopGracePeriod):
		cm.logger.Warn().Msg("containerd did not stop in time, killing")
		if err := cm.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill containerd: %w", err)
		}
		<-cm.waitCh
	}

	cm.logger.Info().Msg("embedded containerd stopped")
	return nil
}

// GetSocketPath returns the socket pkg/runtime should dial.
func (cm *ContainerdManager) GetSocketPath() string {
	if cm.useExternal {
		return systemSocketPath
	}
	return cm.socketPath
}

// extractBinary stages the bundled containerd binary under dataDir/bin.
// A previously extracted copy is reused only when its size matches the
// bundled one, so upgrading the homie binary re-extracts.
func (cm *ContainerdManager) extractBinary() error {
	embeddedPath := fmt.Sprintf("binaries/containerd-%s-%s", runtime.GOOS, runtime.GOARCH)

	data, err := binaries.ReadFile(embeddedPath)
	if err != nil {
		return fmt.Errorf("no containerd bundled for %s/%s (stage it under pkg/embedded/binaries before building, or run with --external-containerd): %w", runtime.GOOS, runtime.GOARCH, err)
	}

	binDir := filepath.Join(cm.dataDir, "bin")
	cm.binaryPath = filepath.Join(binDir, "containerd")

	if info, err := os.Stat(cm.binaryPath); err == nil && info.Size() == int64(len(data)) {
		return nil
	}

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("create bin directory: %w", err)
	}
	if err := os.WriteFile(cm.binaryPath, data, 0o755); err != nil {
		return fmt.Errorf("write containerd binary: %w", err)
	}

	cm.logger.Info().Str("path", cm.binaryPath).Msg("extracted containerd binary")
	return nil
}

func (cm *ContainerdManager) writeConfig() error {
	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cm.configPath, []byte(daemonConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// waitForReady polls until the daemon's API answers a health check, not
// merely until the socket file appears.
func (cm *ContainerdManager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for containerd")
		case <-ticker.C:
			if _, err := os.Stat(cm.socketPath); err != nil {
				continue
			}
			client, err := containerd.New(cm.socketPath)
			if err != nil {
				continue
			}
			serving, err := client.IsServing(ctx)
			client.Close()
			if err == nil && serving {
				return nil
			}
		}
	}
}

// logWriter adapts the daemon's stdout/stderr to structured log lines.
// The daemon's stdout lands at debug so it never drowns out homie's own
// logs; its stderr is logged at error.
type logWriter struct {
	logger zerolog.Logger
	level  string
}

func (lw *logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		if lw.level == "error" {
			lw.logger.Error().Msg(msg)
		} else {
			lw.logger.Debug().Msg(msg)
		}
	}
	return len(p), nil
}
