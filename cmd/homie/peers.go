package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/discovery"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List live peers in the group",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		waitSecs, _ := cmd.Flags().GetInt("discover-wait")

		store, err := discovery.NewStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open discovery store: %w", err)
		}

		peers, err := queryPeers(cfg, store, time.Duration(waitSecs)*time.Second)
		if err != nil {
			return err
		}

		fmt.Printf("%-20s %-16s %-6s %-8s %-10s %-10s %s\n", "NAME", "IP", "PORT", "STATUS", "CPU%", "RAM FREE", "GPU")
		fmt.Println(strings.Repeat("-", 90))
		for _, p := range peers {
			gpu := "-"
			if p.HasGPU {
				gpu = p.GPUName
			}
			fmt.Printf("%-20s %-16s %-6d %-8s %-10.1f %-10.1f %s\n",
				p.Name, p.IP, p.Port, p.Status, p.CPUPercentUsed, p.RAMFreeGB, gpu)
		}
		if len(peers) == 0 {
			fmt.Println("no peers seen yet")
		}
		return nil
	},
}

func init() {
	peersCmd.Flags().Int("discover-wait", 2, "Seconds to listen for heartbeats before printing")
}
