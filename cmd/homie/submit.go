package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/client"
	"github.com/cuemby/homie/pkg/config"
	"github.com/cuemby/homie/pkg/discovery"
	"github.com/cuemby/homie/pkg/history"
	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/selector"
	"github.com/cuemby/homie/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file> [-- args...]",
	Short: "Run a script on a peer and stream its output",
	Long: `submit picks a live peer (by name, or the best-scoring idle
one), uploads the given file, and streams stdout/stderr back until the
job finishes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		filename := args[0]
		scriptArgs := args[1:]

		code, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("read %s: %w", filename, err)
		}

		peerName, _ := cmd.Flags().GetString("peer")
		requireGPU, _ := cmd.Flags().GetBool("require-gpu")
		image, _ := cmd.Flags().GetString("image")
		waitSecs, _ := cmd.Flags().GetInt("discover-wait")
		extraFiles, _ := cmd.Flags().GetStringArray("file")

		if image == "" {
			image = job.DefaultImage(requireGPU)
		}

		files := map[string][]byte{}
		for _, path := range extraFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files[filepath.Base(path)] = data
		}

		peer, err := discoverPeer(cfg, peerName, requireGPU, time.Duration(waitSecs)*time.Second)
		if err != nil {
			return err
		}

		j, err := job.New(cfg.Name, filepath.Base(filename), code, scriptArgs, files, requireGPU, image)
		if err != nil {
			return fmt.Errorf("build job: %w", err)
		}

		fmt.Fprintf(os.Stderr, "submitting %s to %s (%s:%d)\n", j.Filename, peer.Name, peer.IP, peer.Port)

		historyLog, err := history.Open(filepath.Join(cfg.DataDir, "job_history.jsonl"))
		if err != nil {
			return fmt.Errorf("open history log: %w", err)
		}
		start := time.Now()
		if err := historyLog.AppendStart(history.HistoryEntry{
			JobID:      j.ID,
			Sender:     j.Sender,
			Peer:       peer.Name,
			Filename:   j.Filename,
			Args:       j.Args,
			Image:      j.Image,
			RequireGPU: j.RequireGPU,
			Role:       types.RoleSender,
			StartTime:  start,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to append history start entry: %v\n", err)
		}

		c := client.New([]byte(cfg.GroupSecret), client.DefaultTimeout)
		addr := fmt.Sprintf("%s:%d", peer.IP, peer.Port)

		result := c.Submit(context.Background(), addr, j,
			func(chunk []byte) { os.Stdout.Write(chunk) },
			func(chunk []byte) { os.Stderr.Write(chunk) },
		)

		success := result.Error == nil && result.ExitCode == 0
		if err := historyLog.PatchCompletion(j.ID, types.RoleSender, time.Now(), result.RuntimeSeconds, result.ExitCode, success, result.Error, len(result.OutputFiles)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to patch history completion entry: %v\n", err)
		}

		for name, data := range result.OutputFiles {
			if err := os.WriteFile(name, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write output file %s: %v\n", name, err)
			}
		}

		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "job failed: %s\n", *result.Error)
		}
		fmt.Fprintf(os.Stderr, "exit code %d, runtime %.2fs\n", result.ExitCode, result.RuntimeSeconds)

		if result.ExitCode != 0 {
			os.Exit(1)
		}
		return nil
	},
}

// discoverPeer collects the current live-peer snapshot and applies peer
// selection to it.
func discoverPeer(cfg *config.Config, peerName string, requireGPU bool, wait time.Duration) (discovery.Peer, error) {
	store, err := discovery.NewStore(cfg.DataDir)
	if err != nil {
		return discovery.Peer{}, fmt.Errorf("open discovery store: %w", err)
	}

	peers, err := queryPeers(cfg, store, wait)
	if err != nil {
		return discovery.Peer{}, err
	}

	peer, err := selector.Select(peers, selector.Constraints{
		SpecificName: peerName,
		RequireGPU:   requireGPU,
	})
	if err != nil {
		return discovery.Peer{}, fmt.Errorf("select peer: %w", err)
	}
	return peer, nil
}

// queryPeers returns the current live-peer snapshot. When a daemon runs
// on this host its freshly written peer cache is used directly;
// otherwise discovery listens on the gossip port for a short window and
// leaves its own snapshot behind in the cache.
func queryPeers(cfg *config.Config, store *discovery.Store, wait time.Duration) ([]discovery.Peer, error) {
	if peers, fresh, err := store.ReadPeerCache(); err == nil && fresh {
		return peers, nil
	}

	if wait <= 0 {
		wait = 2 * time.Second
	}

	disc, err := discovery.New(discovery.Config{
		Name:              cfg.Name + "-query",
		Port:              cfg.WorkerPort,
		GroupSecret:       []byte(cfg.GroupSecret),
		DiscoveryPort:     cfg.DiscoveryPort,
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
		PeerTimeout:       time.Duration(cfg.PeerTimeout) * time.Second,
		Store:             store,
	})
	if err != nil {
		return nil, fmt.Errorf("create discovery: %w", err)
	}
	if err := disc.Start(true); err != nil {
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	defer disc.Stop()

	time.Sleep(wait)

	peers := disc.GetPeers()
	if err := disc.WritePeerCache(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write peer cache: %v\n", err)
	}
	return peers, nil
}

func init() {
	submitCmd.Flags().String("peer", "", "Submit to this specific peer by name instead of auto-selecting")
	submitCmd.Flags().Bool("require-gpu", false, "Only select peers advertising a GPU")
	submitCmd.Flags().String("image", "", "Container image to run the job in (defaults by job type)")
	submitCmd.Flags().StringArray("file", nil, "Additional file to upload alongside the script (repeatable)")
	submitCmd.Flags().Int("discover-wait", 2, "Seconds to wait for peer heartbeats before selecting")
}
