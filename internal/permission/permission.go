// Package permission models the one-shot OS permission check performed
// before the first scan. Denial is advisory: a scan stays callable and will
// simply fail through the platform gateway.
package permission

import "context"

// Result is the outcome of a permission request.
type Result struct {
	Granted bool
}

// Gate requests or verifies the Bluetooth and location permissions the
// platform requires for discovery.
type Gate interface {
	Request(ctx context.Context) (Result, error)
}

// Static is a gate with a fixed answer, for platforms whose permission
// prompts happen out of process (and for tests).
type Static bool

func (s Static) Request(context.Context) (Result, error) {
	return Result{Granted: bool(s)}, nil
}
