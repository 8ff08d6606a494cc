// Package status provides a thread-safe status tracker for the alarm gateway.
// Monitors write to it; HTTP handlers and heartbeat events read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	WatchdogMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	SerialPort  string
	SerialMode  string
}

// ContactStatus is the latch state of one digital contact line.
type ContactStatus struct {
	ID      logic.ContactID
	Active  bool
	Latched bool
}

// PulseStatus describes the duty-cycle status line.
type PulseStatus struct {
	Enabled bool
	State   logic.PulseState
	// WidthMicros is the last measured pulse width.
	WidthMicros uint32
	// Alarms counts silence alarms raised by the watchdog.
	Alarms int
	// Dropped counts state notifications lost because the queue was full.
	Dropped uint64
}

// SerialStatus describes the alarm node serial link.
type SerialStatus struct {
	Enabled    bool
	Open       bool
	Frames     int
	Discarded  int
	LastDevice string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Contacts      []ContactStatus
	Pulse         PulseStatus
	Serial        SerialStatus
	Counts        alarm.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	// MQTTQueued and MQTTDropped describe the outbox held while the broker
	// is unreachable.
	MQTTQueued  int
	MQTTDropped uint64
	Config      Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	now    func() time.Time
	counts func() alarm.Counts
	outbox func() (queued int, dropped uint64)
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// UpdateContacts records the latch state of every contact line.
// ids and channels are in the same order.
func (t *Tracker) UpdateContacts(ids []logic.ContactID, channels []logic.ChannelState) {
	cs := make([]ContactStatus, 0, len(ids))
	for i, id := range ids {
		var ch logic.ChannelState
		if i < len(channels) {
			ch = channels[i]
		}
		cs = append(cs, ContactStatus{ID: id, Active: ch.Active, Latched: ch.Latched})
	}

	t.mu.Lock()
	t.snap.Contacts = cs
	t.mu.Unlock()
}

// EnablePulse marks the status line monitor as running.
func (t *Tracker) EnablePulse() {
	t.mu.Lock()
	t.snap.Pulse.Enabled = true
	t.mu.Unlock()
}

// UpdatePulse records the current pulse state and last width.
func (t *Tracker) UpdatePulse(state logic.PulseState, width uint32) {
	t.mu.Lock()
	t.snap.Pulse.State = state
	t.snap.Pulse.WidthMicros = width
	t.mu.Unlock()
}

// CountPulseAlarm records a watchdog alarm.
func (t *Tracker) CountPulseAlarm() {
	t.mu.Lock()
	t.snap.Pulse.State = logic.PulseAlarm
	t.snap.Pulse.Alarms++
	t.mu.Unlock()
}

// SetPulseDropped records the number of lost state notifications.
func (t *Tracker) SetPulseDropped(n uint64) {
	t.mu.Lock()
	t.snap.Pulse.Dropped = n
	t.mu.Unlock()
}

// EnableSerial marks the serial monitor as configured.
func (t *Tracker) EnableSerial() {
	t.mu.Lock()
	t.snap.Serial.Enabled = true
	t.mu.Unlock()
}

// SetSerialOpen records whether the serial port is open.
func (t *Tracker) SetSerialOpen(open bool) {
	t.mu.Lock()
	t.snap.Serial.Open = open
	t.mu.Unlock()
}

// CountFrame records one decoded or discarded serial frame.
func (t *Tracker) CountFrame(discarded bool, device string) {
	t.mu.Lock()
	if discarded {
		t.snap.Serial.Discarded++
	} else {
		t.snap.Serial.Frames++
		t.snap.Serial.LastDevice = device
	}
	t.mu.Unlock()
}

// SetCounts records the router outcome counters.
func (t *Tracker) SetCounts(c alarm.Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// WatchCounts makes every snapshot read the counters from fn instead of the
// last SetCounts value. fn must return a copy.
func (t *Tracker) WatchCounts(fn func() alarm.Counts) {
	t.mu.Lock()
	t.counts = fn
	t.mu.Unlock()
}

// WatchOutbox makes every snapshot read the MQTT outbox depth and overwrite
// count from fn.
func (t *Tracker) WatchOutbox(fn func() (queued int, dropped uint64)) {
	t.mu.Lock()
	t.outbox = fn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Contacts = append([]ContactStatus(nil), t.snap.Contacts...)
	bySource := make(map[alarm.Source]int, len(t.snap.Counts.BySource))
	for k, v := range t.snap.Counts.BySource {
		bySource[k] = v
	}
	s.Counts.BySource = bySource
	counts, outbox := t.counts, t.outbox
	t.mu.RUnlock()

	if counts != nil {
		s.Counts = counts()
	}
	if outbox != nil {
		s.MQTTQueued, s.MQTTDropped = outbox()
	}
	s.Now = t.now()
	return s
}
