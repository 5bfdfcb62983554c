package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Import and reconcile your platform requests",
	Long: `Fetch the platform's event requests assigned to your linked account
and reconcile them into the local store.

Requests never seen before are imported as new records owned by you.
Requests already imported may only have their status advanced, never
moved backward: local work is authoritative once done. The run is
recorded in the sync audit log either way.`,
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

		syncer, err := newSyncer(cfg, db)
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}
		user, err := currentUser(cfg)
		if err != nil {
			exitf("%v", err)
		}

		result, err := syncer.Pull(context.Background(), user)
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}

		fmt.Printf("Imported %d new, updated %d existing\n", result.Imported, result.Updated)
	},
}

var pushMarkInProcess bool

var pushCmd = &cobra.Command{
	Use:   "push <record-id>",
	Short: "Publish a record's state back to the platform",
	Long: `Send one remote-sourced record's current state to the platform,
with status "scheduled" in the platform's vocabulary.

Push does not change the record locally; set its status to Scheduled
before pushing. Only the record's owner (or an admin) may push it.`,
	Args: cobra.ExactArgs(1),
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

		syncer, err := newSyncer(cfg, db)
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}
		user, err := currentUser(cfg)
		if err != nil {
			exitf("%v", err)
		}

		ctx := context.Background()
		if pushMarkInProcess {
			if err := syncer.MarkInProcess(ctx, args[0], user); err != nil {
				exitf("%s", syncErrorMessage(err))
			}
			fmt.Printf("Marked %s in process on the platform\n", args[0])
			return
		}

		result, err := syncer.Push(ctx, args[0], user)
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}

		fmt.Printf("Pushed %s to platform event %s\n", args[0], result.ExternalEventID)
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <email>",
	Short: "Resolve your platform account id from an email address",
	Long: `Look up the platform user id for the given email address.

Put the printed id in your config as user.remote_id (or the
INTAKESYNC_USER_REMOTE_ID environment variable); pull requires it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}

		client, err := newPlatformClient(cfg)
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}

		remoteID, err := client.LookupUserByEmail(context.Background(), args[0])
		if err != nil {
			exitf("%s", syncErrorMessage(err))
		}

		fmt.Printf("Platform user id for %s: %s\n", args[0], remoteID)
		fmt.Fprintln(os.Stderr, "Set user.remote_id to this value to enable pull.")
	},
}

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync activity",
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

		entries, err := db.ListRecentSyncLogs(context.Background(), logLimit)
		if err != nil {
			exitf("%v", err)
		}

		if len(entries) == 0 {
			fmt.Println("No sync activity yet.")
			return
		}

		for _, entry := range entries {
			line := fmt.Sprintf("%s  %-4s  %-7s  %d record(s)",
				entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				entry.Direction, entry.Outcome, entry.RecordCount)
			if entry.Error != "" {
				line += "  " + entry.Error
			}
			fmt.Println(line)
		}
	},
}

func init() {
	pushCmd.Flags().BoolVar(&pushMarkInProcess, "in-process", false, "send the lightweight in_process nudge instead of the full payload")
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "number of entries to show")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(logCmd)
}
