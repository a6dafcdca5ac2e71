package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/printworks/btlink/internal/conn"
	"github.com/printworks/btlink/internal/scan"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <address>",
	Short: "Connect to a peripheral",
	Long: `Connect to the peripheral with the given address and hold the link.

The address must belong to a bonded device; with --discover, a scan runs
first so unbonded peripherals can be connected too. The link is held until
Ctrl+C, then disconnected cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectDiscover bool
	connectHold     bool
)

func init() {
	connectCmd.Flags().BoolVar(&connectDiscover, "discover", false, "Scan for the device first if it is not bonded")
	connectCmd.Flags().BoolVar(&connectHold, "hold", true, "Hold the link until interrupted, then disconnect")
	connectCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runConnect(cmd *cobra.Command, args []string) error {
	address := args[0]

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.checkPermissions(ctx)

	if err := a.loadBonded(ctx); err != nil {
		return err
	}

	if _, ok := a.registry.Get(address); !ok && connectDiscover {
		if err := discoverAddress(ctx, a, address); err != nil {
			return err
		}
	}

	manager := conn.NewManager(a.gateway, a.registry, a.logger)

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	fmt.Printf("%s %s\n", pendingMarker("Connecting:"), address)
	dev, err := manager.Connect(connectCtx, address)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", connectedMarker("Connected:"), dev.Name, dev.Address)

	if !connectHold {
		return nil
	}

	fmt.Println("Press Ctrl+C to disconnect.")
	<-ctx.Done()
	stop()

	if err := manager.Disconnect(context.Background()); err != nil {
		return err
	}
	fmt.Println("Disconnected.")
	return nil
}

// discoverAddress runs a scan session until the wanted address shows up or
// the window elapses.
func discoverAddress(ctx context.Context, a *app, address string) error {
	session := scan.NewSession(a.gateway, a.registry, a.logger, &scan.Options{Window: a.cfg.ScanWindow})
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop(context.Background())

	progress := startCountdown(fmt.Sprintf("Looking for %s", address), a.cfg.ScanWindow)
	defer progress.Stop()

	deadline := time.After(a.cfg.ScanWindow)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: %s", conn.ErrUnknownDevice, address)
		case ev := <-session.Events():
			if ev.Device.Address == address {
				return nil
			}
		}
	}
}
