package main

import (
	"errors"

	"github.com/printworks/btlink/internal/conn"
	"github.com/printworks/btlink/internal/scan"
)

// FormatUserError maps core errors to messages suitable for end users.
// Everything in the taxonomy is recoverable by retrying the operation, so
// each message says what to do next.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, scan.ErrNotEnabled):
		return "Bluetooth is turned off - enable it and scan again"
	case errors.Is(err, scan.ErrScanActive):
		return "a scan is already running - wait for it to finish or stop it first"
	case errors.Is(err, scan.ErrScanFailed):
		return "scanning failed - previously paired devices are still listed; try again"
	case errors.Is(err, conn.ErrAlreadyConnecting):
		return "another connection attempt is in progress - retry once it resolves"
	case errors.Is(err, conn.ErrUnknownDevice):
		return "device not found - run 'btlink scan' first"
	case errors.Is(err, conn.ErrConnectFailed):
		return "could not connect - make sure the device is powered on and in range"
	case errors.Is(err, conn.ErrDisconnectFailed):
		return "could not disconnect - try again"
	default:
		return err.Error()
	}
}
