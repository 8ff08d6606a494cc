// Package monitor runs the three alarm sources of the gateway: the polled
// digital contacts, the duty-cycle status line and the serial alarm nodes.
// Each monitor owns its own detection state and reports activations to a
// Dispatcher from its own goroutine.
package monitor

import (
	"context"

	"github.com/sweeney/alarm-gateway/internal/alarm"
)

// Dispatcher receives triggers. *alarm.Router implements it; it logs its own
// failures, so monitors only use the returned error for their counters.
type Dispatcher interface {
	Route(ctx context.Context, trig alarm.Trigger) error
}
