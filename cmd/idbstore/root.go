package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nainya/idbstore/internal/config"
	"github.com/nainya/idbstore/internal/logger"
	"github.com/nainya/idbstore/pkg/clone"
	"github.com/nainya/idbstore/pkg/idb"
)

// Version of the idbstore command.
const Version = "0.3.0"

var (
	cfg *config.Config
	log *logger.Logger

	rootCmd = &cobra.Command{
		Use:   "idbstore",
		Short: "in-memory transactional object store",
		Long: fmt.Sprintf(`idbstore (v%s)

An in-memory object database with named object stores, secondary
indexes, cursors and versioned schema upgrades.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of idbstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "idbstore v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(config.Init)
	config.Flags(rootCmd)
	rootCmd.AddCommand(versionCmd, shellCmd, benchCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.Bind(cmd); err != nil {
		return err
	}
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	log = logger.InitGlobalLogger(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	return nil
}

// newFactory builds an engine from the loaded configuration.
func newFactory(reg prometheus.Registerer) *idb.Factory {
	opts := []idb.Option{
		idb.WithLogger(*log.Zerolog()),
		idb.WithCloner(clone.New(clone.WithMode(cfg.CloneMode))),
	}
	if reg != nil {
		opts = append(opts, idb.WithMetrics(reg))
	}
	return idb.NewFactory(opts...)
}
