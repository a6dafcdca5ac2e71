package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/printworks/btlink/internal/conn"
)

// disconnectCmd tears down the platform-level link to whichever bonded
// device is currently connected.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the connected peripheral",
	Long: `Disconnect the peripheral the platform reports as connected.

Succeeds as a no-op when nothing is connected.`,
	RunE: runDisconnect,
}

func init() {
	disconnectCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if err := a.loadBonded(ctx); err != nil {
		return err
	}

	var active string
	for _, dev := range a.registry.List() {
		if dev.Connected {
			active = dev.Address
			break
		}
	}
	if active == "" {
		fmt.Println("No device is connected.")
		return nil
	}

	manager := conn.NewManager(a.gateway, a.registry, a.logger)
	if err := manager.Adopt(active); err != nil {
		return err
	}
	if err := manager.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Printf("Disconnected %s.\n", active)
	return nil
}
