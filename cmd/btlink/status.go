package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd shows the adapter state and any existing connection.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show adapter and connection status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cmd.SilenceUsage = true

	enabled, err := a.gateway.Enabled(cmd.Context())
	if err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Adapter: %s\n", connectedMarker("enabled"))
	} else {
		fmt.Println("Adapter: disabled")
	}

	if err := a.loadBonded(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Bonded devices: %d\n\n", a.registry.Len())
	return printDevices(os.Stdout, a.registry.List(), "table")
}
