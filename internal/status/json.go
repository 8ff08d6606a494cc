package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Contacts      []ContactJSON `json:"contacts"`
	Pulse         *PulseJSON    `json:"pulse,omitempty"`
	Serial        *SerialJSON   `json:"serial,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Config        ConfigJSON    `json:"config"`
}

// ContactJSON is the JSON representation of one contact line.
type ContactJSON struct {
	ID      string `json:"id"`
	Active  bool   `json:"active"`
	Latched bool   `json:"latched"`
}

// PulseJSON is the JSON representation of the status line.
type PulseJSON struct {
	State        string `json:"state"`
	WidthMicros  uint32 `json:"width_us"`
	Alarms       int    `json:"alarms"`
	DroppedEdges uint64 `json:"dropped_notifications"`
}

// SerialJSON is the JSON representation of the serial link.
type SerialJSON struct {
	Open       bool   `json:"open"`
	Frames     int    `json:"frames"`
	Discarded  int    `json:"discarded"`
	LastDevice string `json:"last_device,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
}

// CountsJSON is the JSON representation of router counters.
type CountsJSON struct {
	Dispatched int `json:"dispatched"`
	Missing    int `json:"missing_config"`
	Failed     int `json:"downstream_failures"`
	Contact    int `json:"contact"`
	Pulse      int `json:"pulse"`
	Serial     int `json:"serial"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	WatchdogMs  int64  `json:"watchdog_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	SerialPort  string `json:"serial_port,omitempty"`
	SerialMode  string `json:"serial_mode,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	contacts := make([]ContactJSON, 0, len(snap.Contacts))
	for _, c := range snap.Contacts {
		contacts = append(contacts, ContactJSON{ID: string(c.ID), Active: c.Active, Latched: c.Latched})
	}

	inner := StatusInner{
		Contacts:      contacts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Queued:    snap.MQTTQueued,
			Dropped:   snap.MQTTDropped,
		},
		Counts: CountsJSON{
			Dispatched: snap.Counts.Dispatched,
			Missing:    snap.Counts.Missing,
			Failed:     snap.Counts.Failed,
			Contact:    snap.Counts.BySource[alarm.SourceContact],
			Pulse:      snap.Counts.BySource[alarm.SourcePulse],
			Serial:     snap.Counts.BySource[alarm.SourceSerial],
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			WatchdogMs:  snap.Config.WatchdogMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			SerialPort:  snap.Config.SerialPort,
			SerialMode:  snap.Config.SerialMode,
		},
	}

	if snap.Pulse.Enabled {
		state := string(snap.Pulse.State)
		if state == "" {
			state = "NONE"
		}
		inner.Pulse = &PulseJSON{
			State:        state,
			WidthMicros:  snap.Pulse.WidthMicros,
			Alarms:       snap.Pulse.Alarms,
			DroppedEdges: snap.Pulse.Dropped,
		}
	}

	if snap.Serial.Enabled {
		inner.Serial = &SerialJSON{
			Open:       snap.Serial.Open,
			Frames:     snap.Serial.Frames,
			Discarded:  snap.Serial.Discarded,
			LastDevice: snap.Serial.LastDevice,
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
