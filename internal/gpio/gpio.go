// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "github.com/sweeney/alarm-gateway/internal/logic"

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pin definitions of the reference wiring (BCM numbering).
const (
	PinContact1 = 27 // Push-button contact 1
	PinContact2 = 22 // Push-button contact 2
	PinContact5 = 24 // Push-button contact 5
	PinStatus   = 17 // Duty-cycle status line of the S850 panel
)

// Reader reads the logical levels of a fixed set of contact lines.
type Reader interface {
	// Read returns one level per configured line, in configuration order.
	// Lines are wired active-low with pull-up: raw 0 = logical active (true).
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Edge is a single transition on the status line.
type Edge struct {
	// Rising is true for a low-to-high transition.
	Rising bool
	// Tick is the event timestamp in microseconds of the monotonic clock.
	Tick logic.Tick
}

// EdgeHandler receives edges from the hardware. It is called from the
// backend's event goroutine and must return quickly.
type EdgeHandler func(Edge)

// EdgeWatcher delivers edges of one line to its handler until closed.
type EdgeWatcher interface {
	// Now returns the current tick on the same clock as Edge.Tick.
	Now() logic.Tick

	// Close stops edge delivery and releases the line.
	Close() error
}
