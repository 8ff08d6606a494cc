package mqtt

import (
	"context"
	"sync"

	"github.com/sweeney/alarm-gateway/internal/alarm"
)

// FakePublisher is an in-memory Publisher. It is safe for concurrent use,
// but the exported slices should only be read once the code under test has
// stopped publishing.
type FakePublisher struct {
	mu sync.Mutex

	Events   []alarm.Event
	Payloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Returned instead of recording when set.
	DispatchError      error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher returns an empty, disconnected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Dispatch implements alarm.Sink.
func (f *FakePublisher) Dispatch(_ context.Context, event alarm.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DispatchError != nil {
		return f.DispatchError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem implements Publisher.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventCount returns how many alarm events were recorded.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// SystemEventNames returns the Event field of every recorded system event,
// in publish order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, len(f.SystemEvents))
	for i, se := range f.SystemEvents {
		names[i] = se.Event
	}
	return names
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset drops everything recorded and clears injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Events, f.Payloads = nil, nil
	f.SystemEvents, f.SystemPayloads = nil, nil
	f.DispatchError, f.PublishSystemError = nil, nil
	f.Closed, f.Connected = false, false
}
