//go:build linux

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/printworks/btlink/internal/bluetooth"
	"github.com/printworks/btlink/internal/bluetooth/bluez"
	"github.com/printworks/btlink/internal/permission"
)

func newGateway(logger *logrus.Logger) (bluetooth.Gateway, error) {
	return bluez.New(logger)
}

func newPermissionGate(logger *logrus.Logger) permission.Gate {
	return bluez.Permissions{Logger: logger}
}
