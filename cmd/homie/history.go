package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/homie/pkg/history"
	"github.com/cuemby/homie/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query this node's job history log",
	Long: `history reads job_history.jsonl directly: every job this node
has sent or executed, whether still running or completed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		historyLog, err := history.Open(filepath.Join(cfg.DataDir, "job_history.jsonl"))
		if err != nil {
			return fmt.Errorf("open history log: %w", err)
		}

		showStats, _ := cmd.Flags().GetBool("stats")
		if showStats {
			stats, err := historyLog.Stats()
			if err != nil {
				return fmt.Errorf("compute stats: %w", err)
			}
			fmt.Printf("total: %d  succeeded: %d  failed: %d  success rate: %.1f%%  mean runtime: %.2fs\n",
				stats.Total, stats.Succeeded, stats.Failed, stats.SuccessRate*100, stats.MeanRuntimeSeconds)
			return nil
		}

		filter := history.QueryFilter{}
		if role, _ := cmd.Flags().GetString("role"); role != "" {
			r := types.Role(role)
			filter.Role = &r
		}
		if peer, _ := cmd.Flags().GetString("peer"); peer != "" {
			filter.Peer = peer
		}
		if cmd.Flags().Changed("success") {
			success, _ := cmd.Flags().GetBool("success")
			filter.Success = &success
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}

		entries, err := historyLog.Query(filter)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}

		fmt.Printf("%-10s %-8s %-20s %-24s %-8s %-10s %s\n", "JOB ID", "ROLE", "PEER", "FILENAME", "EXIT", "RUNTIME", "STATUS")
		fmt.Println(strings.Repeat("-", 90))
		for _, e := range entries {
			exit, runtime, status := "-", "-", "running"
			if e.Completed() {
				exit = fmt.Sprintf("%d", *e.ExitCode)
				runtime = fmt.Sprintf("%.2fs", *e.RuntimeSeconds)
				status = "ok"
				if !*e.Success {
					status = "failed"
				}
			}
			fmt.Printf("%-10s %-8s %-20s %-24s %-8s %-10s %s\n",
				e.JobID, e.Role, e.Peer, e.Filename, exit, runtime, status)
		}
		if len(entries) == 0 {
			fmt.Println("no history entries")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("role", "", "Filter by role (sender, executor)")
	historyCmd.Flags().String("peer", "", "Filter by peer name")
	historyCmd.Flags().Bool("success", false, "Filter by success/failure (set to apply)")
	historyCmd.Flags().Int("limit", 20, "Maximum entries to print (0 for unlimited)")
	historyCmd.Flags().Bool("stats", false, "Print a rollup instead of individual entries")
}
