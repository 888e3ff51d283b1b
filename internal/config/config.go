// ABOUTME: Command configuration from flags, environment and .env files
// ABOUTME: Environment variables use the IDBSTORE_ prefix, dashes become underscores

package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nainya/idbstore/pkg/clone"
)

const (
	KeyLogLevel    = "log-level"
	KeyLogPretty   = "log-pretty"
	KeyCloneMode   = "clone-mode"
	KeyMetricsAddr = "metrics-addr"
	KeyHistoryFile = "history-file"
)

// Config is the resolved configuration of one command run.
type Config struct {
	LogLevel    string
	LogPretty   bool
	CloneMode   clone.Mode
	MetricsAddr string // empty disables the metrics endpoint
	HistoryFile string
}

// Init loads .env files and sets up environment lookups.
func Init() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("idbstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Flags adds the shared flags to cmd.
func Flags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	f.Bool(KeyLogPretty, true, "human readable console logs")
	f.String(KeyCloneMode, "strict", "value cloning: strict rejects uncloneable values, lossy drops them")
	f.String(KeyMetricsAddr, "", "serve /metrics and /health on this address")
	f.String(KeyHistoryFile, "", "shell history file")
}

// Bind makes cmd's flags visible to Load.
func Bind(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// Load resolves the configuration.
func Load() (*Config, error) {
	mode, err := clone.ParseMode(viper.GetString(KeyCloneMode))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &Config{
		LogLevel:    viper.GetString(KeyLogLevel),
		LogPretty:   viper.GetBool(KeyLogPretty),
		CloneMode:   mode,
		MetricsAddr: viper.GetString(KeyMetricsAddr),
		HistoryFile: viper.GetString(KeyHistoryFile),
	}, nil
}
