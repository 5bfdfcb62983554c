package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outreachops/intakesync/internal/dashboard"
	"github.com/outreachops/intakesync/internal/logging"
	"github.com/outreachops/intakesync/internal/spool"
	"github.com/outreachops/intakesync/internal/types"
)

var (
	serveNoSpool     bool
	serveNoDashboard bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the spool importer and activity dashboard",
	Long: `Run the long-lived local services:

  - the spool watcher, importing intake JSON files dropped into the
    spool directory
  - the dashboard, broadcasting sync activity over WebSocket and
    serving /api/synclog and /api/stats

Neither service contacts the remote platform; pull and push stay
user-triggered.`,
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

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var server *dashboard.Server
		if !serveNoDashboard {
			server = dashboard.NewServer(db, &dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: logging.New("dashboard", cfg.LogFile),
			})
			if err := server.Start(); err != nil {
				exitf("%v", err)
			}
			defer server.Stop()
			fmt.Printf("Dashboard listening on %s\n", server.GetAddr())
		}

		if serveNoSpool {
			<-ctx.Done()
			return
		}

		spoolCfg := spool.DefaultConfig()
		spoolCfg.DefaultOwnerID = cfg.UserID
		spoolCfg.Logger = logging.New("spool", cfg.LogFile)
		if server != nil {
			spoolCfg.OnImport = func(record *types.IntakeRecord) {
				server.BroadcastRecordImport(record.ID, record.OrgName)
			}
		}

		watcher, err := spool.New(db, cfg.SpoolDir, spoolCfg)
		if err != nil {
			exitf("%v", err)
		}

		fmt.Printf("Watching spool directory %s\n", cfg.SpoolDir)
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			exitf("%v", err)
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoSpool, "no-spool", false, "disable the spool watcher")
	serveCmd.Flags().BoolVar(&serveNoDashboard, "no-dashboard", false, "disable the dashboard")
	rootCmd.AddCommand(serveCmd)
}
