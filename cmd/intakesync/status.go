package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outreachops/intakesync/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and sync history at a glance",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}

		db, err := openStore(cfg)
		if err != nil {
			exitf("%v", err)
		}
		defer db.Close()

		ctx := context.Background()

		records, err := db.GetRecordCount(ctx)
		if err != nil {
			exitf("%v", err)
		}
		byStatus, err := db.CountRecordsByStatus(ctx)
		if err != nil {
			exitf("%v", err)
		}
		tasks, err := db.GetTaskCount(ctx)
		if err != nil {
			exitf("%v", err)
		}
		syncRuns, err := db.GetSyncLogCount(ctx)
		if err != nil {
			exitf("%v", err)
		}

		fmt.Printf("Store: %s\n", cfg.DBPath)
		fmt.Printf("Records: %d\n", records)
		for _, s := range []types.Status{
			types.StatusNew, types.StatusInProcess, types.StatusScheduled, types.StatusCompleted,
		} {
			if n := byStatus[s]; n > 0 {
				fmt.Printf("  %-11s %d\n", s, n)
			}
		}
		fmt.Printf("Tasks: %d\n", tasks)
		fmt.Printf("Sync runs: %d\n", syncRuns)

		if cfg.RemoteBaseURL == "" {
			fmt.Println("Remote platform: not configured")
		} else {
			fmt.Printf("Remote platform: %s\n", cfg.RemoteBaseURL)
		}
		if cfg.UserRemoteID == "" {
			fmt.Println("Account link: not linked (pull disabled)")
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
