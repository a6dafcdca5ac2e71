//go:build linux

// Package bluez implements the platform gateway on top of the BlueZ D-Bus
// API. One Gateway wraps one adapter (hci0 by default) on the system bus.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/permission"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// Gateway talks to BlueZ over the system bus. Safe for concurrent use;
// Close is idempotent and releases every bus resource acquired.
type Gateway struct {
	bus         *dbus.Conn
	adapterPath dbus.ObjectPath
	logger      *logrus.Logger

	mu      sync.Mutex
	closed  bool
	cleanup []func()
}

// New connects to the system bus and binds to the first adapter BlueZ
// reports.
func New(logger *logrus.Logger) (*Gateway, error) {
	if logger == nil {
		logger = logrus.New()
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	g := &Gateway{
		bus:    bus,
		logger: logger,
	}
	g.cleanup = append(g.cleanup, func() { _ = bus.Close() })

	path, err := g.findAdapter(context.Background())
	if err != nil {
		g.Close()
		return nil, err
	}
	g.adapterPath = path

	logger.WithField("adapter", string(path)).Debug("Bound to BlueZ adapter")
	return g, nil
}

// Close releases bus resources. Safe to call more than once.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	for i := len(g.cleanup) - 1; i >= 0; i-- {
		g.cleanup[i]()
	}
	g.cleanup = nil
}

func (g *Gateway) findAdapter(ctx context.Context) (dbus.ObjectPath, error) {
	objects, err := g.managedObjects(ctx)
	if err != nil {
		return "", err
	}
	for path, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("bluez: no bluetooth adapter found")
}

func (g *Gateway) managedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := g.bus.Object(bluezService, "/")
	if err := root.CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez: get managed objects: %w", err)
	}
	return objects, nil
}

func (g *Gateway) adapter() dbus.BusObject {
	return g.bus.Object(bluezService, g.adapterPath)
}

// devicePath maps a MAC address to the BlueZ device object path, e.g.
// AA:BB:CC:DD:EE:FF -> <adapter>/dev_AA_BB_CC_DD_EE_FF.
func (g *Gateway) devicePath(address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(g.adapterPath) + "/dev_" + strings.ReplaceAll(address, ":", "_"))
}

// Enabled reports the adapter's Powered property.
func (g *Gateway) Enabled(ctx context.Context) (bool, error) {
	variant, err := g.adapter().GetProperty(adapterIface + ".Powered")
	if err != nil {
		return false, fmt.Errorf("bluez: read powered state: %w", err)
	}
	powered, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: unexpected powered value %v", variant.Value())
	}
	return powered, nil
}

// BondedDevices enumerates devices BlueZ has paired on this adapter.
func (g *Gateway) BondedDevices(ctx context.Context) ([]bluetooth.RawDevice, error) {
	objects, err := g.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var devices []bluetooth.RawDevice
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if !strings.HasPrefix(string(path), string(g.adapterPath)+"/") {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		devices = append(devices, rawDeviceFromProps(props))
	}
	return devices, nil
}

func rawDeviceFromProps(props map[string]dbus.Variant) bluetooth.RawDevice {
	raw := bluetooth.RawDevice{}
	if v, ok := props["Address"]; ok {
		raw.Address, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok {
		raw.Name, _ = v.Value().(string)
	}
	if raw.Name == "" {
		if v, ok := props["Name"]; ok {
			raw.Name, _ = v.Value().(string)
		}
	}
	if v, ok := props["AddressType"]; ok {
		addrType, _ := v.Value().(string)
		raw.LowEnergy = addrType == "random"
	}
	if v, ok := props["Connected"]; ok {
		raw.Connected, _ = v.Value().(bool)
	}
	return raw
}

// StartDiscovery puts the adapter into discovery mode.
func (g *Gateway) StartDiscovery(ctx context.Context) error {
	if call := g.adapter().CallWithContext(ctx, adapterIface+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("bluez: start discovery: %w", call.Err)
	}
	return nil
}

// CancelDiscovery takes the adapter out of discovery mode. BlueZ reports
// NotReady if discovery already ended; that is not an error here.
func (g *Gateway) CancelDiscovery(ctx context.Context) error {
	call := g.adapter().CallWithContext(ctx, adapterIface+".StopDiscovery", 0)
	if call.Err == nil {
		return nil
	}
	var dbusErr dbus.Error
	if errors.As(call.Err, &dbusErr) && dbusErr.Name == "org.bluez.Error.NotReady" {
		return nil
	}
	return fmt.Errorf("bluez: stop discovery: %w", call.Err)
}

// OnDeviceDiscovered subscribes to InterfacesAdded signals and forwards each
// new Device1 object to the handler. The returned subscription removes the
// bus match and drains the signal channel; Remove is idempotent.
func (g *Gateway) OnDeviceDiscovered(handler func(bluetooth.RawDevice)) (bluetooth.Subscription, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := g.bus.AddMatchSignal(opts...); err != nil {
		return nil, fmt.Errorf("bluez: add signal match: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	g.bus.Signal(signals)

	go func() {
		for sig := range signals {
			raw, ok := discoveredFromSignal(sig)
			if !ok {
				continue
			}
			g.logger.WithFields(logrus.Fields{
				"address": raw.Address,
				"name":    raw.Name,
			}).Debug("InterfacesAdded device")
			handler(raw)
		}
	}()

	var once sync.Once
	return bluetooth.SubscriptionFunc(func() {
		once.Do(func() {
			if err := g.bus.RemoveMatchSignal(opts...); err != nil {
				g.logger.WithError(err).Warn("Remove signal match failed")
			}
			g.bus.RemoveSignal(signals)
			close(signals)
		})
	}), nil
}

func discoveredFromSignal(sig *dbus.Signal) (bluetooth.RawDevice, bool) {
	if sig == nil || len(sig.Body) < 2 {
		return bluetooth.RawDevice{}, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return bluetooth.RawDevice{}, false
	}
	props, ok := ifaces[deviceIface]
	if !ok {
		return bluetooth.RawDevice{}, false
	}
	raw := rawDeviceFromProps(props)
	if raw.Address == "" {
		return bluetooth.RawDevice{}, false
	}
	return raw, true
}

// Connect calls Device1.Connect on the bonded or discovered device.
func (g *Gateway) Connect(ctx context.Context, address string) (bool, error) {
	obj := g.bus.Object(bluezService, g.devicePath(address))
	if call := obj.CallWithContext(ctx, deviceIface+".Connect", 0); call.Err != nil {
		return false, fmt.Errorf("bluez: connect %s: %w", address, call.Err)
	}
	return true, nil
}

// Disconnect calls Device1.Disconnect.
func (g *Gateway) Disconnect(ctx context.Context, address string) error {
	obj := g.bus.Object(bluezService, g.devicePath(address))
	if call := obj.CallWithContext(ctx, deviceIface+".Disconnect", 0); call.Err != nil {
		return fmt.Errorf("bluez: disconnect %s: %w", address, call.Err)
	}
	return nil
}

// Permissions reports whether the BlueZ service is reachable for this
// process. Linux has no runtime Bluetooth permission prompt; bus
// reachability is the closest equivalent check.
type Permissions struct {
	Logger *logrus.Logger
}

func (p Permissions) Request(ctx context.Context) (permission.Result, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return permission.Result{}, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	var owned bool
	err = bus.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, bluezService).Store(&owned)
	if err != nil {
		return permission.Result{}, fmt.Errorf("bluez: query bus name: %w", err)
	}
	if p.Logger != nil && !owned {
		p.Logger.Warn("BlueZ service is not running")
	}
	return permission.Result{Granted: owned}, nil
}
