package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outreachops/intakesync/internal/config"
	"github.com/outreachops/intakesync/internal/logging"
	"github.com/outreachops/intakesync/internal/platform"
	"github.com/outreachops/intakesync/internal/store"
	"github.com/outreachops/intakesync/internal/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "intakesync",
	Short: "Coordinate event intake records with the remote platform",
	Long: `intakesync keeps a local store of event intake records and
synchronizes them with the remote event platform.

Pull imports requests assigned to you and advances record statuses
(forward only). Push publishes a scheduled record back to the platform.
Setting a record's event date schedules its follow-up task plan.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: intakesync.yaml)")
}

// loadConfig reads configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the local database and initializes schema.
// The caller must Close the returned DB.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return db, nil
}

// newPlatformClient builds the remote client from config.
func newPlatformClient(cfg *config.Config) (*platform.Client, error) {
	return platform.NewClient(platform.Config{
		BaseURL: cfg.RemoteBaseURL,
		APIKey:  cfg.RemoteAPIKey,
		Logger:  logging.New("platform", cfg.LogFile),
	})
}

// newSyncer wires the store and remote client into a Syncer.
func newSyncer(cfg *config.Config, db *store.DB) (sync.Syncer, error) {
	client, err := newPlatformClient(cfg)
	if err != nil {
		return nil, err
	}
	return sync.New(db, client, logging.New("sync", cfg.LogFile)), nil
}

// currentUser builds the sync identity from config.
func currentUser(cfg *config.Config) (sync.User, error) {
	if cfg.UserID == "" {
		return sync.User{}, fmt.Errorf("user.id is not configured (set INTAKESYNC_USER_ID or user.id)")
	}
	return sync.User{
		ID:       cfg.UserID,
		RemoteID: cfg.UserRemoteID,
		Admin:    cfg.UserAdmin,
	}, nil
}

// exitf prints an error to stderr and exits, the way every command
// reports fatal problems.
func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// syncErrorMessage maps classified sync errors onto operator-facing
// wording. Unclassified errors pass through unchanged.
func syncErrorMessage(err error) string {
	switch {
	case errors.Is(err, platform.ErrNotConfigured):
		return "remote platform is not configured: set remote.base_url and remote.api_key"
	case errors.Is(err, sync.ErrNotLinked):
		return "your account is not linked to the platform: run 'intakesync link <email>' first"
	case errors.Is(err, platform.ErrRemoteUnavailable):
		return "the platform is not responding right now (it may be waking up) - try again shortly"
	case errors.Is(err, platform.ErrRemoteRejected):
		return fmt.Sprintf("the platform rejected the request: %v", err)
	case errors.Is(err, sync.ErrRecordNotFound):
		return err.Error()
	case errors.Is(err, sync.ErrNotRemoteSourced):
		return "only records imported from the platform can be pushed back to it"
	case errors.Is(err, sync.ErrForbidden):
		return "you don't own this record (admins may override)"
	default:
		return err.Error()
	}
}
