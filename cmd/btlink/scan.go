package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/printworks/btlink/internal/scan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby peripherals",
	Long: `Discover nearby Bluetooth peripherals with a bounded scan window.

Previously bonded devices are listed immediately; devices discovered over
the air are added as they are seen. The scan stops on its own when the
window elapses, or earlier on Ctrl+C.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanWatch    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan window (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json; default from config)")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print devices live as they are discovered")
	scanCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	format := scanFormat
	if format == "" {
		format = a.cfg.OutputFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	window := a.cfg.ScanWindow
	if scanDuration > 0 {
		window = scanDuration
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.checkPermissions(ctx)

	session := scan.NewSession(a.gateway, a.registry, a.logger, &scan.Options{Window: window})
	if err := session.Start(ctx); err != nil {
		return err
	}
	// Idempotent with the session's own deadline stop.
	defer session.Stop(context.Background())

	if scanWatch {
		watchScan(ctx, session, window)
	} else {
		var progress *countdownPrinter
		if format == "table" {
			progress = startCountdown("Scanning", window)
		}
		select {
		case <-ctx.Done():
		case <-time.After(window):
		}
		if progress != nil {
			progress.Stop()
		}
	}

	session.Stop(context.Background())
	return printDevices(os.Stdout, a.registry.List(), format)
}

// watchScan prints newly discovered devices as they arrive until the window
// elapses or the user interrupts.
func watchScan(ctx context.Context, session *scan.Session, window time.Duration) {
	deadline := time.After(window)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case ev := <-session.Events():
			if ev.Type != scan.EventNew {
				continue
			}
			fmt.Printf("%s  %s (%s)\n", ev.Device.Address, ev.Device.Name, ev.Device.Kind)
		}
	}
}
