package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/printworks/btlink/pkg/config"
)

// loggerFor builds a command's logger through the config logger factory, so
// flags and the config file share one path. Level precedence: --log-level,
// then --verbose, then the config file's log_level.
func loggerFor(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := cfg.LogLevel

	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	if _, err := logrus.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}

	scoped := *cfg
	scoped.LogLevel = level
	return scoped.NewLogger(), nil
}
