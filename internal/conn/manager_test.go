package conn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/conn"
	"github.com/printworks/btlink/internal/registry"
)

// mockGateway simulates adapter-level connect/disconnect outcomes.
type mockGateway struct {
	mu sync.Mutex

	connectOK     map[string]bool // per-address adapter verdict, default true
	connectErr    error
	disconnectErr error

	// release, when set, blocks Connect until it is closed.
	release chan struct{}

	connectCalls    []string
	disconnectCalls []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{connectOK: make(map[string]bool)}
}

func (g *mockGateway) Enabled(context.Context) (bool, error) { return true, nil }

func (g *mockGateway) BondedDevices(context.Context) ([]bluetooth.RawDevice, error) {
	return nil, nil
}

func (g *mockGateway) StartDiscovery(context.Context) error  { return nil }
func (g *mockGateway) CancelDiscovery(context.Context) error { return nil }

func (g *mockGateway) OnDeviceDiscovered(func(bluetooth.RawDevice)) (bluetooth.Subscription, error) {
	return bluetooth.SubscriptionFunc(func() {}), nil
}

func (g *mockGateway) Connect(ctx context.Context, address string) (bool, error) {
	g.mu.Lock()
	g.connectCalls = append(g.connectCalls, address)
	release := g.release
	g.mu.Unlock()

	if release != nil {
		<-release
	}
	if g.connectErr != nil {
		return false, g.connectErr
	}
	if ok, set := g.connectOK[address]; set {
		return ok, nil
	}
	return true, nil
}

func (g *mockGateway) Disconnect(ctx context.Context, address string) error {
	g.mu.Lock()
	g.disconnectCalls = append(g.disconnectCalls, address)
	g.mu.Unlock()
	return g.disconnectErr
}

func seededRegistry(addresses ...string) *registry.Registry {
	reg := registry.New(nil)
	for _, addr := range addresses {
		reg.Upsert(registry.Device{Address: addr, Name: "Device " + addr})
	}
	return reg
}

func TestConnect(t *testing.T) {
	t.Run("marks exactly the connected device", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01", "BB:02")
		m := conn.NewManager(gw, reg, nil)

		dev, err := m.Connect(context.Background(), "AA:01")

		require.NoError(t, err)
		assert.True(t, dev.Connected)

		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, "AA:01", active)

		a, _ := reg.Get("AA:01")
		b, _ := reg.Get("BB:02")
		assert.True(t, a.Connected)
		assert.False(t, b.Connected)

		_, pending := m.Pending()
		assert.False(t, pending)
	})

	t.Run("adapter refusal leaves all state untouched", func(t *testing.T) {
		gw := newMockGateway()
		gw.connectOK["AA:01"] = false
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)

		_, err := m.Connect(context.Background(), "AA:01")

		require.ErrorIs(t, err, conn.ErrConnectFailed)
		_, ok := m.Active()
		assert.False(t, ok)
		a, _ := reg.Get("AA:01")
		assert.False(t, a.Connected)
		_, pending := m.Pending()
		assert.False(t, pending)
	})

	t.Run("failed connect to b keeps a connected", func(t *testing.T) {
		gw := newMockGateway()
		gw.connectOK["BB:02"] = false
		reg := seededRegistry("AA:01", "BB:02")
		m := conn.NewManager(gw, reg, nil)

		_, err := m.Connect(context.Background(), "AA:01")
		require.NoError(t, err)

		_, err = m.Connect(context.Background(), "BB:02")
		require.ErrorIs(t, err, conn.ErrConnectFailed)

		active, _ := m.Active()
		assert.Equal(t, "AA:01", active)
		a, _ := reg.Get("AA:01")
		assert.True(t, a.Connected)
	})

	t.Run("adapter error surfaces as connect failure", func(t *testing.T) {
		gw := newMockGateway()
		gw.connectErr = errors.New("page timeout")
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)

		_, err := m.Connect(context.Background(), "AA:01")

		require.ErrorIs(t, err, conn.ErrConnectFailed)
		assert.ErrorContains(t, err, "page timeout")
	})

	t.Run("unknown address is rejected before any adapter call", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)

		_, err := m.Connect(context.Background(), "ZZ:99")

		require.ErrorIs(t, err, conn.ErrUnknownDevice)
		assert.Empty(t, gw.connectCalls)
		_, ok := m.Active()
		assert.False(t, ok)
	})

	t.Run("second attempt while one is in flight is rejected", func(t *testing.T) {
		gw := newMockGateway()
		gw.release = make(chan struct{})
		reg := seededRegistry("AA:01", "BB:02")
		m := conn.NewManager(gw, reg, nil)

		done := make(chan error, 1)
		go func() {
			_, err := m.Connect(context.Background(), "AA:01")
			done <- err
		}()

		require.Eventually(t, func() bool {
			pending, ok := m.Pending()
			return ok && pending == "AA:01"
		}, time.Second, time.Millisecond)

		_, err := m.Connect(context.Background(), "BB:02")
		require.ErrorIs(t, err, conn.ErrAlreadyConnecting)

		close(gw.release)
		require.NoError(t, <-done)

		// Retry works once the first attempt resolved.
		active, _ := m.Active()
		assert.Equal(t, "AA:01", active)
	})
}

func TestAdopt(t *testing.T) {
	t.Run("adopted link can be disconnected", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01", "BB:02")
		m := conn.NewManager(gw, reg, nil)

		require.NoError(t, m.Adopt("AA:01"))

		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, "AA:01", active)
		a, _ := reg.Get("AA:01")
		assert.True(t, a.Connected)
		assert.Empty(t, gw.connectCalls)

		require.NoError(t, m.Disconnect(context.Background()))
		_, ok = m.Active()
		assert.False(t, ok)
		a, _ = reg.Get("AA:01")
		assert.False(t, a.Connected)
		assert.Equal(t, []string{"AA:01"}, gw.disconnectCalls)
	})

	t.Run("unknown address is rejected", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)

		err := m.Adopt("ZZ:99")

		require.ErrorIs(t, err, conn.ErrUnknownDevice)
		_, ok := m.Active()
		assert.False(t, ok)
	})

	t.Run("rejected while a connect is in flight", func(t *testing.T) {
		gw := newMockGateway()
		gw.release = make(chan struct{})
		reg := seededRegistry("AA:01", "BB:02")
		m := conn.NewManager(gw, reg, nil)

		done := make(chan error, 1)
		go func() {
			_, err := m.Connect(context.Background(), "AA:01")
			done <- err
		}()
		require.Eventually(t, func() bool {
			_, ok := m.Pending()
			return ok
		}, time.Second, time.Millisecond)

		err := m.Adopt("BB:02")
		require.ErrorIs(t, err, conn.ErrAlreadyConnecting)

		close(gw.release)
		require.NoError(t, <-done)
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("no-op success when nothing is connected", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)

		require.NoError(t, m.Disconnect(context.Background()))
		assert.Empty(t, gw.disconnectCalls)
	})

	t.Run("clears active device and registry flags", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)
		_, err := m.Connect(context.Background(), "AA:01")
		require.NoError(t, err)

		require.NoError(t, m.Disconnect(context.Background()))

		_, ok := m.Active()
		assert.False(t, ok)
		a, _ := reg.Get("AA:01")
		assert.False(t, a.Connected)
		assert.Equal(t, []string{"AA:01"}, gw.disconnectCalls)
	})

	t.Run("adapter failure leaves the connection state unchanged", func(t *testing.T) {
		gw := newMockGateway()
		reg := seededRegistry("AA:01")
		m := conn.NewManager(gw, reg, nil)
		_, err := m.Connect(context.Background(), "AA:01")
		require.NoError(t, err)

		gw.disconnectErr = errors.New("link busy")
		err = m.Disconnect(context.Background())

		require.ErrorIs(t, err, conn.ErrDisconnectFailed)
		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, "AA:01", active)
		a, _ := reg.Get("AA:01")
		assert.True(t, a.Connected)
	})
}
