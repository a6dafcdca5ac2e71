// Package registry holds the ordered, address-deduplicated collection of
// known peripherals and their connection flags. It is the single source of
// truth the presentation layer renders from; all mutation goes through the
// methods here so that callers only ever observe consistent state.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the communication profile of a peripheral.
type Kind int

const (
	// KindSerialPort is a classic SPP peripheral (thermal printers, scales).
	KindSerialPort Kind = iota
	// KindLowEnergy is a BLE peripheral.
	KindLowEnergy
)

func (k Kind) String() string {
	switch k {
	case KindSerialPort:
		return "serial"
	case KindLowEnergy:
		return "ble"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalJSON renders the kind as its string form for CLI JSON output.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnknownName is the display label used when the platform reports no name.
const UnknownName = "Unknown device"

// Device is one physical peripheral. Address is the primary key and is
// immutable once the device enters the registry.
type Device struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Connected bool   `json:"connected"`
}

// Registry is an in-memory device collection keyed by address, preserving
// insertion order. At most one device is marked connected at any time.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[string, Device]
	logger  *logrus.Logger
}

// New creates an empty registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		devices: orderedmap.New[string, Device](),
		logger:  logger,
	}
}

func normalize(dev Device) Device {
	if dev.Name == "" {
		dev.Name = UnknownName
	}
	return dev
}

// ReplaceAll clears the registry and repopulates it from the given devices,
// keeping their order. Duplicate addresses within the input keep the first
// occurrence.
func (r *Registry) ReplaceAll(devices []Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = orderedmap.New[string, Device]()
	for _, dev := range devices {
		if dev.Address == "" {
			continue
		}
		if _, ok := r.devices.Get(dev.Address); ok {
			continue
		}
		r.devices.Set(dev.Address, normalize(dev))
	}

	r.logger.WithField("device_count", r.devices.Len()).Debug("Registry repopulated")
}

// Upsert adds the device if its address is unknown and reports whether an
// insertion happened. A rediscovery of a known address is a no-op: the entry
// keeps its original name, kind, and connected flag (first seen wins).
func (r *Registry) Upsert(dev Device) bool {
	if dev.Address == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices.Get(dev.Address); ok {
		return false
	}
	r.devices.Set(dev.Address, normalize(dev))
	return true
}

// MarkConnected sets the connected flag on the device with the given address
// and clears it everywhere else. Unknown addresses are ignored; a phantom
// entry is never created.
func (r *Registry) MarkConnected(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices.Get(address); !ok {
		r.logger.WithField("address", address).Debug("MarkConnected for unknown device ignored")
		return
	}

	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		dev := pair.Value
		dev.Connected = dev.Address == address
		r.devices.Set(dev.Address, dev)
	}
}

// ClearConnected clears the connected flag on every device.
func (r *Registry) ClearConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		dev := pair.Value
		dev.Connected = false
		r.devices.Set(dev.Address, dev)
	}
}

// Get returns the device with the given address, if present.
func (r *Registry) Get(address string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices.Get(address)
	return dev, ok
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// List returns a snapshot with every serial-port device ahead of every
// low-energy device. Within a kind, insertion order is preserved; there is
// deliberately no secondary sort key.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Kind == KindSerialPort {
			out = append(out, pair.Value)
		}
	}
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Kind != KindSerialPort {
			out = append(out, pair.Value)
		}
	}
	return out
}
