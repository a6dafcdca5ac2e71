package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/registry"
	"github.com/printworks/btlink/pkg/config"
)

// app bundles the pieces every command needs: config, logger, the platform
// gateway, and the device registry the presentation layer renders from.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	gateway  bluetooth.Gateway
	registry *registry.Registry
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	logger, err := loggerFor(cmd, cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := newGateway(logger)
	if err != nil {
		return nil, fmt.Errorf("bluetooth stack unavailable: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway,
		registry: registry.New(logger),
	}, nil
}

// close releases the gateway if the platform implementation holds bus
// resources.
func (a *app) close() {
	if closer, ok := a.gateway.(interface{ Close() }); ok {
		closer.Close()
	}
}

// checkPermissions runs the one-shot permission gate. Denial is advisory:
// scanning stays callable and fails through the gateway if the OS refuses.
func (a *app) checkPermissions(ctx context.Context) {
	gate := newPermissionGate(a.logger)
	res, err := gate.Request(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Permission check failed")
		return
	}
	if !res.Granted {
		fmt.Println("Bluetooth permissions are not granted; scanning may fail.")
	}
}

// loadBonded seeds the registry with the platform's bonded devices.
func (a *app) loadBonded(ctx context.Context) error {
	bonded, err := a.gateway.BondedDevices(ctx)
	if err != nil {
		return fmt.Errorf("enumerate bonded devices: %w", err)
	}

	devices := make([]registry.Device, 0, len(bonded))
	for _, raw := range bonded {
		kind := registry.KindSerialPort
		if raw.LowEnergy {
			kind = registry.KindLowEnergy
		}
		devices = append(devices, registry.Device{
			Address: raw.Address,
			Name:    raw.Name,
			Kind:    kind,
		})
	}
	a.registry.ReplaceAll(devices)

	// Reflect an existing platform-level link, if any. The platform never
	// reports more than one for the profiles this tool manages.
	for _, raw := range bonded {
		if raw.Connected {
			a.registry.MarkConnected(raw.Address)
			break
		}
	}
	return nil
}
