package logic

import "sync"

// Default thresholds for the duty-cycle status line, in microseconds.
const (
	DefaultArmedMaxMicros   = 75
	DefaultUnarmedMaxMicros = 150
	DefaultSilenceMicros    = 1_000_000
)

// PulseThresholds maps low-pulse widths to states and bounds heartbeat silence.
type PulseThresholds struct {
	ArmedMax   uint32 // width <= ArmedMax is ARMED
	UnarmedMax uint32 // ArmedMax < width <= UnarmedMax is UNARMED, above is UNKNOWN
	Silence    uint32 // no pulse for longer than this is ALARM
}

// DefaultPulseThresholds returns the thresholds of the reference panel.
func DefaultPulseThresholds() PulseThresholds {
	return PulseThresholds{
		ArmedMax:   DefaultArmedMaxMicros,
		UnarmedMax: DefaultUnarmedMaxMicros,
		Silence:    DefaultSilenceMicros,
	}
}

// Classify returns the state encoded by a low pulse of the given width.
func (th PulseThresholds) Classify(width uint32) PulseState {
	switch {
	case width <= th.ArmedMax:
		return PulseArmed
	case width <= th.UnarmedMax:
		return PulseUnarmed
	default:
		return PulseUnknown
	}
}

// PulseClassifier decodes the status line from its edges and detects heartbeat
// silence. Falling and Rising are called from the hardware edge context and
// CheckSilence from the watchdog loop; all three hold the lock only for a few
// field updates and never block otherwise.
type PulseClassifier struct {
	th PulseThresholds

	mu        sync.Mutex
	fallTick  Tick
	haveFall  bool
	lastPulse Tick
	havePulse bool
	state     PulseState
	lastWidth uint32
}

// NewPulseClassifier creates a classifier with no recorded edges.
func NewPulseClassifier(th PulseThresholds) *PulseClassifier {
	return &PulseClassifier{th: th}
}

// Falling records the start of a low pulse.
func (c *PulseClassifier) Falling(tick Tick) {
	c.mu.Lock()
	c.fallTick = tick
	c.haveFall = true
	c.mu.Unlock()
}

// Rising ends a low pulse. If a falling edge was seen before, the pulse is
// classified and the heartbeat is refreshed. The transition is returned only
// when the classified state differs from the one held.
func (c *PulseClassifier) Rising(tick Tick) (PulseTransition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.haveFall {
		return PulseTransition{}, false
	}

	width := tick.Since(c.fallTick)
	c.lastPulse = tick
	c.havePulse = true
	c.lastWidth = width

	next := c.th.Classify(width)
	if next == c.state {
		return PulseTransition{}, false
	}

	tr := PulseTransition{From: c.state, To: next, Width: width, Tick: tick}
	c.state = next
	return tr, true
}

// CheckSilence moves to ALARM when more than the silence threshold has elapsed
// since the last pulse. The heartbeat is then forgotten, so continued silence
// raises no further ALARM until a new pulse arrives.
func (c *PulseClassifier) CheckSilence(now Tick) (PulseTransition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.havePulse {
		return PulseTransition{}, false
	}
	if now.Since(c.lastPulse) <= c.th.Silence {
		return PulseTransition{}, false
	}

	tr := PulseTransition{From: c.state, To: PulseAlarm, Tick: now}
	c.state = PulseAlarm
	c.havePulse = false
	return tr, true
}

// State returns the currently held state and the last measured width.
func (c *PulseClassifier) State() (PulseState, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastWidth
}

// Thresholds returns the configured thresholds.
func (c *PulseClassifier) Thresholds() PulseThresholds {
	return c.th
}
