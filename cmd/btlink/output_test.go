package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/btlink/internal/registry"
)

func TestPrintDevices(t *testing.T) {
	devices := []registry.Device{
		{Address: "AA:01", Name: "Printer-A", Kind: registry.KindSerialPort, Connected: true},
		{Address: "BB:02", Name: "Tag-B", Kind: registry.KindLowEnergy},
	}

	t.Run("table lists all devices", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, printDevices(&buf, devices, "table"))

		out := buf.String()
		assert.Contains(t, out, "ADDRESS")
		assert.Contains(t, out, "AA:01")
		assert.Contains(t, out, "Printer-A")
		assert.Contains(t, out, "connected")
		assert.Contains(t, out, "BB:02")
	})

	t.Run("table with no devices", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, printDevices(&buf, nil, "table"))

		assert.Contains(t, buf.String(), "No devices found")
	})

	t.Run("json round-trips kind as string", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, printDevices(&buf, devices, "json"))

		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, "serial", decoded[0]["kind"])
		assert.Equal(t, "ble", decoded[1]["kind"])
		assert.Equal(t, true, decoded[0]["connected"])
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		var buf bytes.Buffer

		err := printDevices(&buf, devices, "csv")

		assert.Error(t, err)
	})
}
