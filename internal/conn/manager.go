// Package conn mediates the single active connection: exclusive connect and
// disconnect transitions, and consistency between the active address and the
// registry's per-device connected flags.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/registry"
)

var (
	// ErrAlreadyConnecting rejects a connect attempt while another is in
	// flight. Not fatal; retry once the current attempt resolves.
	ErrAlreadyConnecting = errors.New("a connection attempt is already in progress")

	// ErrUnknownDevice rejects a connect to an address the registry has
	// never seen. No state is mutated.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrConnectFailed wraps an adapter-level connect failure. The active
	// device and registry flags are left untouched.
	ErrConnectFailed = errors.New("connect failed")

	// ErrDisconnectFailed wraps an adapter-level disconnect failure. State
	// is unchanged; the device is still considered connected.
	ErrDisconnectFailed = errors.New("disconnect failed")
)

// Manager owns the single active connection. At most one connect attempt is
// in flight at a time, and the registry's connected flag is only mutated
// after the gateway confirms the transition, never optimistically.
type Manager struct {
	gateway  bluetooth.Gateway
	registry *registry.Registry
	logger   *logrus.Logger

	mu      sync.Mutex
	active  string
	pending string
}

// NewManager creates a manager bound to a gateway and registry.
func NewManager(gateway bluetooth.Gateway, reg *registry.Registry, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		gateway:  gateway,
		registry: reg,
		logger:   logger,
	}
}

// Active returns the address of the connected device, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// Pending returns the address of an in-flight connect attempt, if any.
func (m *Manager) Pending() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.pending != ""
}

// Connect establishes the link to the device with the given address and
// marks it as the single connected device. The address must already be in
// the registry; a connect cannot create a phantom entry.
func (m *Manager) Connect(ctx context.Context, address string) (registry.Device, error) {
	m.mu.Lock()
	if m.pending != "" {
		pending := m.pending
		m.mu.Unlock()
		return registry.Device{}, fmt.Errorf("%w (to %s)", ErrAlreadyConnecting, pending)
	}
	if _, ok := m.registry.Get(address); !ok {
		m.mu.Unlock()
		return registry.Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	m.pending = address
	m.mu.Unlock()

	m.logger.WithField("address", address).Info("Connecting")

	ok, err := m.gateway.Connect(ctx, address)

	m.mu.Lock()
	m.pending = ""
	if err != nil {
		m.mu.Unlock()
		return registry.Device{}, fmt.Errorf("%w: %s: %w", ErrConnectFailed, address, err)
	}
	if !ok {
		m.mu.Unlock()
		return registry.Device{}, fmt.Errorf("%w: %s: refused by adapter", ErrConnectFailed, address)
	}
	m.active = address
	m.mu.Unlock()

	m.registry.MarkConnected(address)
	m.logger.WithField("address", address).Info("Connected")

	dev, _ := m.registry.Get(address)
	return dev, nil
}

// Adopt records an existing platform-level link (as reported by the bonded
// enumeration) so that Disconnect can release it. The address must already
// be in the registry, and the single-connected invariant is applied exactly
// as a fresh Connect would apply it.
func (m *Manager) Adopt(address string) error {
	m.mu.Lock()
	if m.pending != "" {
		pending := m.pending
		m.mu.Unlock()
		return fmt.Errorf("%w (to %s)", ErrAlreadyConnecting, pending)
	}
	if _, ok := m.registry.Get(address); !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	m.active = address
	m.mu.Unlock()

	m.registry.MarkConnected(address)
	m.logger.WithField("address", address).Debug("Adopted existing connection")
	return nil
}

// Disconnect tears down the active connection. Calling it with no active
// device is a successful no-op.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	address := m.active
	m.mu.Unlock()

	if address == "" {
		return nil
	}

	if err := m.gateway.Disconnect(ctx, address); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDisconnectFailed, address, err)
	}

	m.mu.Lock()
	m.active = ""
	m.mu.Unlock()

	m.registry.ClearConnected()
	m.logger.WithField("address", address).Info("Disconnected")
	return nil
}
