package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/alarm-gateway/internal/logic"
)

// FakeReader is a test double that returns scripted GPIO values.
type FakeReader struct {
	// Samples contains scripted logical levels to return.
	// Each call to Read() consumes the next sample.
	Samples [][]bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples [][]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}

	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	out := make([]bool, len(sample))
	copy(out, sample)
	return out, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeEdgeWatcher lets tests inject edges and control the tick clock.
type FakeEdgeWatcher struct {
	mu      sync.Mutex
	handler EdgeHandler
	now     logic.Tick
	closed  bool
}

// NewFakeEdgeWatcher creates a watcher that forwards Emit calls to handler.
func NewFakeEdgeWatcher(handler EdgeHandler) *FakeEdgeWatcher {
	return &FakeEdgeWatcher{handler: handler}
}

// Emit delivers an edge at tick and advances the clock to it.
// Edges emitted after Close are dropped.
func (w *FakeEdgeWatcher) Emit(rising bool, tick logic.Tick) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.now = tick
	h := w.handler
	w.mu.Unlock()

	if h != nil {
		h(Edge{Rising: rising, Tick: tick})
	}
}

// Pulse emits a falling edge at start and a rising edge width micros later.
func (w *FakeEdgeWatcher) Pulse(start logic.Tick, width uint32) {
	w.Emit(false, start)
	w.Emit(true, start+logic.Tick(width))
}

// SetNow sets the clock returned by Now.
func (w *FakeEdgeWatcher) SetNow(t logic.Tick) {
	w.mu.Lock()
	w.now = t
	w.mu.Unlock()
}

// Now returns the scripted clock.
func (w *FakeEdgeWatcher) Now() logic.Tick {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// Close stops edge delivery.
func (w *FakeEdgeWatcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (w *FakeEdgeWatcher) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
