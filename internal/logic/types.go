// Package logic contains the pure detection state machines of the alarm gateway.
// This package has NO external dependencies (no GPIO, serial, MQTT, OS, or time.Sleep).
// Time is always injectable, either as time.Time parameters or as hardware ticks.
package logic

// ContactID identifies a logical alarm source. It keys into the contact table.
type ContactID string

// Tick is a free-running microsecond counter as reported by the edge hardware.
// It wraps around at 2^32; differences must be taken with Since.
type Tick uint32

// Since returns the microseconds elapsed from earlier to t.
// Unsigned subtraction keeps the result correct across a single wraparound.
func (t Tick) Since(earlier Tick) uint32 {
	return uint32(t - earlier)
}

// PulseState is the discrete state encoded on the duty-cycle status line.
type PulseState string

const (
	PulseNone    PulseState = ""
	PulseArmed   PulseState = "ARMED"
	PulseUnarmed PulseState = "UNARMED"
	PulseUnknown PulseState = "UNKNOWN"
	PulseAlarm   PulseState = "ALARM"
)

// ChannelState tracks the latch for a single digital contact line.
type ChannelState struct {
	// Active is the last sampled logical level (true = contact closed).
	Active bool
	// Latched is set when an event has been emitted for the current
	// active interval and cleared when the line goes inactive.
	Latched bool
}

// PulseTransition describes a change of the classified pulse state.
type PulseTransition struct {
	From PulseState
	To   PulseState
	// Width is the measured low-pulse width in microseconds.
	// Zero for transitions raised by the silence watchdog.
	Width uint32
	// Tick is the hardware tick at which the transition was decided.
	Tick Tick
}

// Frame is one decoded line from the alarm node serial protocol.
type Frame struct {
	// DeviceID is the first 8 characters of the payload.
	DeviceID string
	// SensorID is the remainder of the payload, upper-cased.
	SensorID string
	// Flag is the raw second field.
	Flag string
	// Active reports whether Flag marks the alarm as on ("1").
	Active bool
}
