package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// devicesCmd lists bonded devices without starting discovery.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List bonded peripherals",
	Long:  `List peripherals already paired at the OS level, without scanning.`,
	RunE:  runDevices,
}

var devicesFormat string

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "", "Output format (table, json; default from config)")
	devicesCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runDevices(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	format := devicesFormat
	if format == "" {
		format = a.cfg.OutputFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	cmd.SilenceUsage = true

	if err := a.loadBonded(cmd.Context()); err != nil {
		return err
	}
	return printDevices(os.Stdout, a.registry.List(), format)
}
