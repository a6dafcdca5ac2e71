package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/printworks/btlink/internal/registry"
)

var (
	connectedMarker = color.New(color.FgGreen).SprintFunc()
	pendingMarker   = color.New(color.FgYellow).SprintFunc()
)

// printDevices renders a device snapshot in the requested format. The slice
// arrives already ordered (serial-port first) from the registry.
func printDevices(w io.Writer, devices []registry.Device, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return fmt.Errorf("encode devices: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "table":
		return printDeviceTable(w, devices)
	default:
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
}

func printDeviceTable(w io.Writer, devices []registry.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tKIND\tSTATUS")
	for _, dev := range devices {
		status := ""
		if dev.Connected {
			status = connectedMarker("connected")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dev.Address, dev.Name, dev.Kind, status)
	}
	return tw.Flush()
}
