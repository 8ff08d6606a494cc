// Package mqtt publishes dispatched alarm events and daemon lifecycle events
// to an MQTT broker, with a fake for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
)

// Topic is the MQTT topic for alarm events.
const Topic = "alarm/gateway/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "alarm/gateway/system"

// Lifecycle event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventOffline   = "OFFLINE"
)

// Publisher is an alarm.Sink that also carries lifecycle events.
type Publisher interface {
	alarm.Sink

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted status snapshot; returned as-is by FormatSystemPayload
	Retained   bool
}

// Payload is the JSON body of an alarm event message.
type Payload struct {
	Alarm AlarmPayload `json:"alarm"`
}

// AlarmPayload carries the event and the contact's table row.
type AlarmPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Contact   string `json:"contact"`
	Source    string `json:"source"`
	Detail    string `json:"detail,omitempty"`
	Site      string `json:"site"`
	Location  string `json:"location"`
	Floor     string `json:"floor"`
	Zone      string `json:"zone"`
	Table     string `json:"table,omitempty"`
	Unit      string `json:"unit"`
	CameraID  string `json:"camera_id"`
}

// FormatPayload creates the JSON payload for an alarm event.
func FormatPayload(event alarm.Event) ([]byte, error) {
	c := event.Contact
	return json.Marshal(Payload{
		Alarm: AlarmPayload{
			ID:        event.ID,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Contact:   string(c.ID),
			Source:    string(event.Source),
			Detail:    event.Detail,
			Site:      c.Site,
			Location:  c.Location,
			Floor:     c.Floor,
			Zone:      c.Zone,
			Table:     c.Table,
			Unit:      c.Unit,
			CameraID:  c.DeviceID,
		},
	})
}

// SystemPayload is used for events that carry no status snapshot (the will).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is registered with the broker at connect time and published by
// it when the gateway disappears without a clean disconnect.
func WillPayload(ts time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: EventOffline, Reason: "MQTT_DISCONNECT"})
	return data
}

// token is the subset of paho.Token used by wait.
type token interface {
	Done() <-chan struct{}
	Error() error
}

// wait blocks until t completes, the timeout fires or ctx is done.
func wait(ctx context.Context, t token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.Done():
		return t.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
