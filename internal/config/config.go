// Package config loads intakesync configuration from a YAML file,
// environment variables (INTAKESYNC_ prefix), and an optional .env file,
// in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// Remote platform connection. Both fields are required before any
	// pull or push can attempt a wire call.
	RemoteBaseURL string
	RemoteAPIKey  string

	// Calling user identity.
	UserID       string
	UserRemoteID string
	UserAdmin    bool

	// Local paths and ports.
	DBPath        string
	SpoolDir      string
	DashboardPort int
	LogFile       string
}

// Load reads configuration.
//
// Resolution order: built-in defaults, then the config file (explicit
// path or intakesync.yaml in the working directory or
// ~/.config/intakesync), then INTAKESYNC_* environment variables. A
// .env file in the working directory is folded into the environment
// first; a missing config file is not an error.
func Load(path string) (*Config, error) {
	// Best effort; most setups won't have one.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("db.path", ".intakesync/intake.db")
	v.SetDefault("spool.dir", ".intakesync/spool")
	v.SetDefault("dashboard.port", 8080)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("intakesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/intakesync")
	}

	v.SetEnvPrefix("INTAKESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); path != "" || !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return &Config{
		RemoteBaseURL: v.GetString("remote.base_url"),
		RemoteAPIKey:  v.GetString("remote.api_key"),
		UserID:        v.GetString("user.id"),
		UserRemoteID:  v.GetString("user.remote_id"),
		UserAdmin:     v.GetBool("user.admin"),
		DBPath:        v.GetString("db.path"),
		SpoolDir:      v.GetString("spool.dir"),
		DashboardPort: v.GetInt("dashboard.port"),
		LogFile:       v.GetString("log.file"),
	}, nil
}
