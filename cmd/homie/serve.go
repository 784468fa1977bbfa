package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/discovery"
	"github.com/cuemby/homie/pkg/embedded"
	"github.com/cuemby/homie/pkg/history"
	"github.com/cuemby/homie/pkg/log"
	"github.com/cuemby/homie/pkg/metrics"
	"github.com/cuemby/homie/pkg/probe"
	"github.com/cuemby/homie/pkg/runtime"
	"github.com/cuemby/homie/pkg/sandbox"
	"github.com/cuemby/homie/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run this node's discovery gossip and job worker server",
	Long: `serve starts the full homie node: discovery broadcasts this
host's presence and resource state to the rest of the group, and the
worker server accepts job submissions, kill requests, and list queries
on worker_port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		useExternal, _ := cmd.Flags().GetBool("external-containerd")
		customSocket, _ := cmd.Flags().GetString("containerd-socket")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if metricsAddr == "" {
			metricsAddr = cfg.MetricsAddr
		}

		logger := log.WithComponent("cmd-serve")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var socketPath string
		var containerdMgr *embedded.ContainerdManager
		if customSocket != "" {
			socketPath = customSocket
		} else {
			containerdMgr, err = embedded.EnsureContainerd(ctx, cfg.DataDir, useExternal)
			if err != nil {
				return fmt.Errorf("start containerd: %w", err)
			}
			defer containerdMgr.Stop()
			socketPath = containerdMgr.GetSocketPath()
		}
		logger.Info().Str("socket", socketPath).Msg("containerd ready")

		containerdRuntime, err := runtime.NewContainerdRuntime(socketPath)
		if err != nil {
			return fmt.Errorf("connect to containerd: %w", err)
		}
		defer containerdRuntime.Close()

		workDir := filepath.Join(cfg.DataDir, "jobs")
		executor := sandbox.NewExecutor(cfg.Container, containerdRuntime, workDir)

		if err := executor.Ready(ctx); err != nil {
			logger.Warn().Err(err).Msg("sandbox driver readiness check failed; jobs may fail until containerd is reachable")
		}

		historyLog, err := history.Open(filepath.Join(cfg.DataDir, "job_history.jsonl"))
		if err != nil {
			return fmt.Errorf("open history log: %w", err)
		}

		probeInst := probe.New(time.Duration(cfg.HeartbeatInterval) * time.Second)
		probeInst.Start()
		defer probeInst.Stop()

		store, err := discovery.NewStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open discovery store: %w", err)
		}

		ip, err := localIP()
		if err != nil {
			return fmt.Errorf("resolve local address: %w", err)
		}

		disc, err := discovery.New(discovery.Config{
			Name:              cfg.Name,
			IP:                ip,
			Port:              cfg.WorkerPort,
			GroupSecret:       []byte(cfg.GroupSecret),
			DiscoveryPort:     cfg.DiscoveryPort,
			HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
			PeerTimeout:       time.Duration(cfg.PeerTimeout) * time.Second,
			Probe:             probeInst,
			Store:             store,
			OnPeerJoined: func(p discovery.Peer) {
				metrics.PeersSeenTotal.Inc()
				logger.Info().Str("peer", p.Name).Str("ip", p.IP).Msg("peer joined")
			},
			OnPeerLeft: func(p discovery.Peer) {
				logger.Info().Str("peer", p.Name).Msg("peer left")
			},
		})
		if err != nil {
			return fmt.Errorf("create discovery: %w", err)
		}
		if err := disc.Start(true); err != nil {
			return fmt.Errorf("start discovery: %w", err)
		}
		defer disc.Stop()

		srv := server.New(fmt.Sprintf(":%d", cfg.WorkerPort), []byte(cfg.GroupSecret), executor, historyLog)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()

		collector := metrics.NewCollector(disc, executor, historyLog)
		collector.Start()
		defer collector.Stop()

		go maintainLoop(ctx, disc, probeInst)

		go func() {
			http.Handle("/metrics", metrics.Handler())
			logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()

		logger.Info().Str("name", cfg.Name).Int("worker_port", cfg.WorkerPort).Int("discovery_port", cfg.DiscoveryPort).Msg("homie node running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutdown signal received")
		case err := <-errCh:
			logger.Error().Err(err).Msg("worker server failed")
			cancel()
			return err
		}

		cancel()
		return nil
	},
}

// maintainLoop refreshes the resource gauges and the on-disk peer cache
// every few seconds, so short-lived commands on this host read a fresh
// snapshot instead of binding the discovery port the daemon holds.
func maintainLoop(ctx context.Context, disc *discovery.Discovery, p *probe.Probe) {
	logger := log.WithComponent("cmd-serve")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reading := p.Latest()
			metrics.ResourceCPUPercent.Set(reading.CPUPercentUsed)
			metrics.ResourceRAMFreeMB.Set(reading.RAMFreeGB * 1024)
			if err := disc.WritePeerCache(); err != nil {
				logger.Trace().Err(err).Msg("refresh peer cache")
			}
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	serveCmd.Flags().Bool("external-containerd", false, "Use system containerd instead of the embedded one")
	serveCmd.Flags().String("containerd-socket", "", "Connect directly to this containerd socket, bypassing embedded/external detection")
	serveCmd.Flags().String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (defaults to config's metrics_addr)")
}
