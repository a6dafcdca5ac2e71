//go:build darwin

// Package goble implements the platform gateway on top of go-ble's
// CoreBluetooth binding. CoreBluetooth exposes no bonded-device enumeration,
// so BondedDevices always reports an empty list and the registry is
// populated from live discovery alone.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
)

// deviceFactory creates the ble.Device. A variable so tests can substitute.
var deviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, errPoweredOff
			}
			return nil, fmt.Errorf("bluetooth is not ready: %w", err)
		}
		return nil, err
	}
	return dev, nil
}

var errPoweredOff = fmt.Errorf("bluetooth is turned off")

// Gateway wraps one CoreBluetooth central. Safe for concurrent use.
type Gateway struct {
	logger *logrus.Logger

	mu         sync.Mutex
	dev        ble.Device
	handler    func(bluetooth.RawDevice)
	scanCancel context.CancelFunc
	clients    map[string]ble.Client
}

// New creates a gateway. The underlying central is initialized lazily on
// first use so that a powered-off radio surfaces as Enabled()==false rather
// than a constructor failure.
func New(logger *logrus.Logger) (*Gateway, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		logger:  logger,
		clients: make(map[string]ble.Client),
	}, nil
}

func (g *Gateway) device() (ble.Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dev != nil {
		return g.dev, nil
	}
	dev, err := deviceFactory()
	if err != nil {
		return nil, err
	}
	g.dev = dev
	return dev, nil
}

// Enabled reports whether the central can be brought up.
func (g *Gateway) Enabled(ctx context.Context) (bool, error) {
	_, err := g.device()
	if err == errPoweredOff {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BondedDevices is always empty on this platform; CoreBluetooth does not
// expose the system pairing list.
func (g *Gateway) BondedDevices(ctx context.Context) ([]bluetooth.RawDevice, error) {
	g.logger.Debug("Bonded enumeration unavailable on CoreBluetooth")
	return nil, nil
}

// StartDiscovery begins a background scan that feeds the registered
// discovery handler until CancelDiscovery.
func (g *Gateway) StartDiscovery(ctx context.Context) error {
	dev, err := g.device()
	if err != nil {
		return fmt.Errorf("goble: start discovery: %w", err)
	}

	g.mu.Lock()
	if g.scanCancel != nil {
		g.mu.Unlock()
		return fmt.Errorf("goble: discovery already running")
	}
	scanCtx, cancel := context.WithCancel(context.Background())
	g.scanCancel = cancel
	g.mu.Unlock()

	go func() {
		err := dev.Scan(scanCtx, false, g.onAdvertisement)
		if err != nil && scanCtx.Err() == nil {
			g.logger.WithError(err).Warn("Scan ended with error")
		}
	}()
	return nil
}

// CancelDiscovery stops the background scan. Idempotent.
func (g *Gateway) CancelDiscovery(ctx context.Context) error {
	g.mu.Lock()
	cancel := g.scanCancel
	g.scanCancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// OnDeviceDiscovered registers the single discovery handler. The returned
// subscription unregisters it; Remove is idempotent.
func (g *Gateway) OnDeviceDiscovered(handler func(bluetooth.RawDevice)) (bluetooth.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.handler != nil {
		return nil, fmt.Errorf("goble: discovery handler already registered")
	}
	g.handler = handler

	var once sync.Once
	return bluetooth.SubscriptionFunc(func() {
		once.Do(func() {
			g.mu.Lock()
			g.handler = nil
			g.mu.Unlock()
		})
	}), nil
}

func (g *Gateway) onAdvertisement(adv ble.Advertisement) {
	g.mu.Lock()
	handler := g.handler
	g.mu.Unlock()

	if handler == nil {
		return
	}
	handler(bluetooth.RawDevice{
		Address:   adv.Addr().String(),
		Name:      adv.LocalName(),
		LowEnergy: true,
	})
}

// Connect dials the peripheral and retains the client for Disconnect.
func (g *Gateway) Connect(ctx context.Context, address string) (bool, error) {
	dev, err := g.device()
	if err != nil {
		return false, fmt.Errorf("goble: connect %s: %w", address, err)
	}

	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return false, fmt.Errorf("goble: connect %s: %w", address, err)
	}

	g.mu.Lock()
	g.clients[address] = client
	g.mu.Unlock()
	return true, nil
}

// Disconnect cancels the retained connection for the address.
func (g *Gateway) Disconnect(ctx context.Context, address string) error {
	g.mu.Lock()
	client, ok := g.clients[address]
	delete(g.clients, address)
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("goble: no connection to %s", address)
	}
	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("goble: disconnect %s: %w", address, err)
	}
	return nil
}
