package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/client"
)

var killCmd = &cobra.Command{
	Use:   "kill <job_id>",
	Short: "Request that a running job be terminated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		jobID := args[0]
		peerName, _ := cmd.Flags().GetString("peer")
		waitSecs, _ := cmd.Flags().GetInt("discover-wait")

		if peerName == "" {
			return fmt.Errorf("--peer is required: a kill request targets one specific peer")
		}

		peer, err := discoverPeer(cfg, peerName, false, time.Duration(waitSecs)*time.Second)
		if err != nil {
			return err
		}

		c := client.New([]byte(cfg.GroupSecret), client.DefaultTimeout)
		addr := fmt.Sprintf("%s:%d", peer.IP, peer.Port)

		if !c.Kill(context.Background(), addr, jobID, cfg.Name) {
			return fmt.Errorf("kill request for job %s was rejected or failed", jobID)
		}
		fmt.Printf("kill request for %s sent to %s\n", jobID, peer.Name)
		return nil
	},
}

func init() {
	killCmd.Flags().String("peer", "", "Peer the job is running on (required)")
	killCmd.Flags().Int("discover-wait", 2, "Seconds to wait for peer heartbeats before connecting")
}
