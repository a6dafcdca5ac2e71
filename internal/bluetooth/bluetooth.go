// Package bluetooth defines the boundary between the connection core and the
// platform Bluetooth stack. Implementations live in the bluez (Linux) and
// goble (macOS) subpackages; tests substitute their own.
package bluetooth

import "context"

// RawDevice is the platform's view of a peripheral: just enough to key and
// display it. Everything richer (services, characteristics, RSSI) is outside
// this system's scope.
type RawDevice struct {
	// Address is the stable platform identifier (MAC on Linux, CoreBluetooth
	// UUID on macOS). Never empty for a delivered device.
	Address string

	// Name is the advertised or cached display name. May be empty; callers
	// substitute their own placeholder.
	Name string

	// LowEnergy reports whether the platform classifies the peripheral as
	// BLE rather than classic/serial. Only meaningful for bonded
	// enumeration; live discovery does not distinguish.
	LowEnergy bool

	// Connected reports an existing platform-level link at enumeration time.
	Connected bool
}

// Subscription is an owned handle on a discovery-event feed. Remove releases
// the feed; it must be safe to call more than once.
type Subscription interface {
	Remove()
}

// Gateway is the capability set the core requires from a platform stack.
//
// All methods that may touch the radio take a context. Implementations must
// not call back into the core except through the handler registered with
// OnDeviceDiscovered.
type Gateway interface {
	// Enabled reports whether the adapter is powered and usable.
	Enabled(ctx context.Context) (bool, error)

	// BondedDevices enumerates peripherals already paired at the OS level.
	BondedDevices(ctx context.Context) ([]RawDevice, error)

	// StartDiscovery puts the adapter into discovery mode. Events are
	// delivered to handlers registered via OnDeviceDiscovered.
	StartDiscovery(ctx context.Context) error

	// CancelDiscovery takes the adapter out of discovery mode.
	CancelDiscovery(ctx context.Context) error

	// OnDeviceDiscovered registers a handler for discovery events and
	// returns the owned subscription. The handler may be invoked from the
	// platform's delivery goroutine.
	OnDeviceDiscovered(handler func(RawDevice)) (Subscription, error)

	// Connect establishes a link to the peripheral with the given address.
	// A false return without an error means the platform refused the
	// connection (e.g. peripheral out of range).
	Connect(ctx context.Context, address string) (bool, error)

	// Disconnect tears down the link to the given address.
	Disconnect(ctx context.Context, address string) error
}

// SubscriptionFunc adapts a release function to the Subscription interface.
type SubscriptionFunc func()

func (f SubscriptionFunc) Remove() { f() }
