// Package scan owns the lifecycle of one discovery attempt: bonded-device
// snapshot, live event ingestion, bounded-duration auto-stop, and release of
// the discovery subscription on every exit path.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/registry"
	"github.com/printworks/btlink/internal/ringchan"
)

var (
	// ErrNotEnabled indicates the Bluetooth adapter is powered off. Nothing
	// has been mutated; the caller may retry once the adapter is enabled.
	ErrNotEnabled = errors.New("bluetooth is not enabled")

	// ErrScanActive rejects a start while a scan is already running. The
	// running scan and its subscription are unaffected.
	ErrScanActive = errors.New("scan already in progress")

	// ErrScanFailed wraps adapter-level failures during discovery setup.
	// The bonded-device snapshot already applied to the registry is kept.
	ErrScanFailed = errors.New("scan failed")
)

// State is the lifecycle phase of a Session.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType marks whether a discovery event introduced a new address or
// re-reported a known one.
type EventType int

const (
	EventNew EventType = iota
	EventSeen
)

// Event is one discovery observation, delivered to watchers via Events.
type Event struct {
	Type   EventType
	Device registry.Device
}

// Options configures a scan session.
type Options struct {
	// Window is the duration after which the session stops itself.
	Window time.Duration
}

// DefaultOptions returns the standard ten-second discovery window.
func DefaultOptions() *Options {
	return &Options{Window: 10 * time.Second}
}

// Session is one discovery attempt. A session may be reused for sequential
// scans but never runs two at once: a second Start while scanning is
// rejected and does not acquire a second subscription.
type Session struct {
	gateway  bluetooth.Gateway
	registry *registry.Registry
	logger   *logrus.Logger
	window   time.Duration

	mu    sync.Mutex
	state State
	sub   bluetooth.Subscription
	timer *time.Timer
	seen  *hashmap.Map[string, struct{}]

	events *ringchan.RingChannel[Event]
}

// NewSession creates a session bound to a gateway and registry.
func NewSession(gateway bluetooth.Gateway, reg *registry.Registry, logger *logrus.Logger, opts *Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Session{
		gateway:  gateway,
		registry: reg,
		logger:   logger,
		window:   opts.Window,
		events:   ringchan.New[Event](100),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the discovery event feed. The feed never blocks ingestion;
// slow consumers lose the oldest events.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// Start begins one discovery attempt. It checks adapter power before any
// other I/O, snapshots bonded devices into the registry, acquires the
// discovery subscription, and arms the auto-stop timer.
//
// If discovery itself fails to start, the bonded snapshot is kept and the
// subscription is released; the session returns to idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrScanActive
	}

	enabled, err := s.gateway.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("%w: adapter status: %w", ErrScanFailed, err)
	}
	if !enabled {
		return ErrNotEnabled
	}

	bonded, err := s.gateway.BondedDevices(ctx)
	if err != nil {
		return fmt.Errorf("%w: bonded devices: %w", ErrScanFailed, err)
	}
	s.registry.ReplaceAll(bondedToDevices(bonded))

	// The handler goes live the moment the subscription exists (BlueZ can
	// deliver InterfacesAdded immediately), so everything ingest touches
	// must be in place first.
	s.seen = hashmap.New[string, struct{}]()

	sub, err := s.gateway.OnDeviceDiscovered(s.ingest)
	if err != nil {
		return fmt.Errorf("%w: subscribe: %w", ErrScanFailed, err)
	}

	if err := s.gateway.StartDiscovery(ctx); err != nil {
		sub.Remove()
		return fmt.Errorf("%w: start discovery: %w", ErrScanFailed, err)
	}

	s.sub = sub
	s.state = StateScanning
	s.timer = time.AfterFunc(s.window, func() {
		s.Stop(context.Background())
	})

	s.logger.WithFields(logrus.Fields{
		"window":        s.window,
		"bonded_count":  len(bonded),
		"registry_size": s.registry.Len(),
	}).Info("Discovery started")

	return nil
}

// Stop ends the scan. It is the sole release path for the subscription and
// is idempotent: the deadline timer and an explicit cancel race benignly,
// and repeated calls are no-ops. Teardown failures are advisory only.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	sub := s.sub
	s.sub = nil
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	sub.Remove()

	if err := s.gateway.CancelDiscovery(ctx); err != nil {
		s.logger.WithError(err).Warn("Cancel discovery failed during teardown")
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.WithField("device_count", s.registry.Len()).Info("Discovery stopped")
}

// ingest translates one discovery event into a registry upsert. Discovered
// devices are always tagged serial-port: live discovery does not distinguish
// profiles.
func (s *Session) ingest(raw bluetooth.RawDevice) {
	if raw.Address == "" {
		return
	}

	// Take the current run's seen-set under the lock: a reused session
	// replaces it on every Start, and events may arrive mid-setup.
	s.mu.Lock()
	seen := s.seen
	s.mu.Unlock()
	if seen == nil {
		return
	}

	dev := registry.Device{
		Address: raw.Address,
		Name:    raw.Name,
		Kind:    registry.KindSerialPort,
	}
	s.registry.Upsert(dev)

	ev := Event{Type: EventSeen}
	if _, loaded := seen.GetOrInsert(raw.Address, struct{}{}); !loaded {
		ev.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"address": raw.Address,
			"name":    raw.Name,
		}).Info("Discovered device")
	}

	// Upsert keeps the first-seen entry, so report that one.
	if known, ok := s.registry.Get(raw.Address); ok {
		ev.Device = known
	} else {
		ev.Device = dev
	}
	s.events.Send(ev)
}

func bondedToDevices(bonded []bluetooth.RawDevice) []registry.Device {
	devices := make([]registry.Device, 0, len(bonded))
	for _, raw := range bonded {
		kind := registry.KindSerialPort
		if raw.LowEnergy {
			kind = registry.KindLowEnergy
		}
		// Connected flags are owned by the connection manager, never taken
		// from the platform snapshot.
		devices = append(devices, registry.Device{
			Address: raw.Address,
			Name:    raw.Name,
			Kind:    kind,
		})
	}
	return devices
}
