//go:build darwin

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/bluetooth/goble"
	"github.com/printworks/btlink/internal/permission"
)

func newGateway(logger *logrus.Logger) (bluetooth.Gateway, error) {
	return goble.New(logger)
}

// macOS prompts for Bluetooth access out of process on first radio use.
func newPermissionGate(_ *logrus.Logger) permission.Gate {
	return permission.Static(true)
}
