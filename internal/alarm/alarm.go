// Package alarm resolves raw triggers from the monitors against the contact
// table and hands the resulting events to the configured sinks.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/alarm-gateway/internal/logic"
)

// Error classes shared by the monitors, the router and the sinks.
var (
	// ErrConfigurationMissing means a trigger named a contact absent from the table.
	ErrConfigurationMissing = errors.New("contact not configured")
	// ErrDownstreamFailure wraps any error returned by a sink.
	ErrDownstreamFailure = errors.New("sink dispatch failed")
	// ErrTransportUnavailable means the serial port could not be opened.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrHardwareUnavailable means a GPIO backend could not be reached.
	ErrHardwareUnavailable = errors.New("hardware unavailable")
)

// Source names the monitor a trigger came from.
type Source string

const (
	SourceContact Source = "contact"
	SourcePulse   Source = "pulse"
	SourceSerial  Source = "serial"
)

// Trigger is what a monitor reports when it detects an activation.
type Trigger struct {
	Contact logic.ContactID
	Source  Source
	// Detail is free-form device context, e.g. the serial device id.
	Detail string
}

// Contact is one row of the contact table.
type Contact struct {
	ID       logic.ContactID `json:"id"`
	Site     string          `json:"site"`
	Location string          `json:"location"`
	Floor    string          `json:"floor"`
	Zone     string          `json:"zone"`
	Table    string          `json:"table"`
	Unit     string          `json:"unit"`
	// DeviceID is the camera associated with the contact.
	DeviceID string `json:"camera_id"`
}

// Event is the unit handed to a Sink. It is built immediately before
// dispatch and not retained by the router.
type Event struct {
	ID        string
	Timestamp time.Time
	Contact   Contact
	Source    Source
	Detail    string
}

// Sink receives dispatched events. Implementations may perform network I/O
// and fail; the router never retries.
type Sink interface {
	Dispatch(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Dispatch implements Sink.
func (f SinkFunc) Dispatch(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MultiSink fans an event out to every sink in order. A failing sink does not
// stop the remaining ones; all failures are joined.
type MultiSink []Sink

// Dispatch implements Sink.
func (m MultiSink) Dispatch(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Table is the read-only contact table. It is built once at startup and
// shared by every monitor without locking.
type Table struct {
	rows  map[logic.ContactID]Contact
	order []logic.ContactID
}

// NewTable builds a table. Empty or duplicate ids are rejected.
func NewTable(rows []Contact) (*Table, error) {
	t := &Table{rows: make(map[logic.ContactID]Contact, len(rows))}
	for i, r := range rows {
		if r.ID == "" {
			return nil, fmt.Errorf("contact row %d: empty id", i)
		}
		if _, dup := t.rows[r.ID]; dup {
			return nil, fmt.Errorf("contact row %d: duplicate id %q", i, r.ID)
		}
		t.rows[r.ID] = r
		t.order = append(t.order, r.ID)
	}
	return t, nil
}

// Lookup returns the row for id.
func (t *Table) Lookup(id logic.ContactID) (Contact, bool) {
	if t == nil {
		return Contact{}, false
	}
	c, ok := t.rows[id]
	return c, ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Contacts returns every row in configuration order.
func (t *Table) Contacts() []Contact {
	if t == nil {
		return nil
	}
	out := make([]Contact, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}
