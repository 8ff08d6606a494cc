package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/alarm-gateway/internal/logger"
)

// Counts tracks router outcomes since startup.
type Counts struct {
	Dispatched int            `json:"dispatched"`
	Missing    int            `json:"missing_config"`
	Failed     int            `json:"downstream_failures"`
	BySource   map[Source]int `json:"by_source"`
}

// Router is the fan-in from all monitors to the sink. It performs no
// deduplication: each monitor's own latch decides how often it triggers.
// Sink calls are serialised so a non-reentrant sink is never entered twice.
type Router struct {
	table *Table
	sink  Sink
	now   func() time.Time
	newID func() string

	dispatchMu sync.Mutex

	countsMu sync.Mutex
	counts   Counts
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(newID func() string) RouterOption {
	return func(r *Router) { r.newID = newID }
}

// NewRouter creates a router over a loaded table.
func NewRouter(table *Table, sink Sink, opts ...RouterOption) *Router {
	r := &Router{
		table:  table,
		sink:   sink,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		counts: Counts{BySource: make(map[Source]int)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves the trigger's contact and dispatches an event synchronously
// on the caller's goroutine. An unknown contact returns ErrConfigurationMissing
// without touching the sink; a sink error is returned wrapped in
// ErrDownstreamFailure. Both are logged here, so callers may ignore them.
func (r *Router) Route(ctx context.Context, trig Trigger) error {
	ctx = logger.WithName(ctx, "router")

	row, ok := r.table.Lookup(trig.Contact)
	if !ok {
		r.count(func(c *Counts) { c.Missing++ })
		logger.WarnKV(ctx, "no configuration for contact", "contact", trig.Contact, "source", trig.Source)
		return fmt.Errorf("%w: %q", ErrConfigurationMissing, trig.Contact)
	}

	event := Event{
		ID:        r.newID(),
		Timestamp: r.now(),
		Contact:   row,
		Source:    trig.Source,
		Detail:    trig.Detail,
	}

	err := r.dispatch(ctx, event)
	if err != nil {
		r.count(func(c *Counts) { c.Failed++ })
		logger.ErrorKV(ctx, "alarm dispatch failed",
			"contact", trig.Contact, "source", trig.Source, "event", event.ID, "error", err)
		return fmt.Errorf("%w: contact %q: %w", ErrDownstreamFailure, trig.Contact, err)
	}

	r.count(func(c *Counts) {
		c.Dispatched++
		c.BySource[trig.Source]++
	})
	logger.InfoKV(ctx, "alarm dispatched",
		"contact", trig.Contact, "source", trig.Source, "event", event.ID,
		"site", row.Site, "location", row.Location, "camera", row.DeviceID)
	return nil
}

func (r *Router) dispatch(ctx context.Context, event Event) error {
	if r.sink == nil {
		return nil
	}
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	return r.sink.Dispatch(ctx, event)
}

func (r *Router) count(f func(*Counts)) {
	r.countsMu.Lock()
	f(&r.counts)
	r.countsMu.Unlock()
}

// Counts returns a copy of the outcome counters.
func (r *Router) Counts() Counts {
	r.countsMu.Lock()
	defer r.countsMu.Unlock()

	c := r.counts
	c.BySource = make(map[Source]int, len(r.counts.BySource))
	for k, v := range r.counts.BySource {
		c.BySource[k] = v
	}
	return c
}
