package monitor

import (
	"context"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/gpio"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/status"
)

// ContactMonitor polls the digital contact lines and triggers once per
// contiguous active interval.
type ContactMonitor struct {
	reader    gpio.Reader
	debouncer *logic.Debouncer
	router    Dispatcher
	tracker   *status.Tracker

	readErrors int
}

// NewContactMonitor creates a monitor for the lines read by reader.
// contacts[i] is the contact reported by line i.
func NewContactMonitor(reader gpio.Reader, contacts []logic.ContactID, router Dispatcher, tracker *status.Tracker) *ContactMonitor {
	return &ContactMonitor{
		reader:    reader,
		debouncer: logic.NewDebouncer(contacts),
		router:    router,
		tracker:   tracker,
	}
}

// Run polls on every tick until ctx is done. It never returns an error: a
// failed read skips that poll.
func (m *ContactMonitor) Run(ctx context.Context, tick <-chan time.Time) error {
	ctx = logger.WithName(ctx, "contacts")
	logger.Infof(ctx, "watching %d contact lines", len(m.debouncer.Contacts()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			m.Poll(ctx)
		}
	}
}

// Poll reads every line once and routes any new activations.
func (m *ContactMonitor) Poll(ctx context.Context) {
	levels, err := m.reader.Read()
	if err != nil {
		m.readErrors++
		// First failure, then every 100th.
		if m.readErrors%100 == 1 {
			logger.Errorf(ctx, "gpio read error (%d so far): %v", m.readErrors, err)
		}
		return
	}
	if m.readErrors > 0 {
		logger.Infof(ctx, "gpio read recovered after %d errors", m.readErrors)
		m.readErrors = 0
	}

	fired := m.debouncer.Process(levels)

	if m.tracker != nil {
		m.tracker.UpdateContacts(m.debouncer.Contacts(), m.debouncer.Channels())
	}

	for _, id := range fired {
		logger.Infof(ctx, "contact %s active", id)
		_ = m.router.Route(ctx, alarm.Trigger{Contact: id, Source: alarm.SourceContact})
	}
}

// ReadOnce samples every line without touching the latches.
func ReadOnce(reader gpio.Reader, contacts []logic.ContactID) (map[logic.ContactID]bool, error) {
	levels, err := reader.Read()
	if err != nil {
		return nil, err
	}
	out := make(map[logic.ContactID]bool, len(contacts))
	for i, id := range contacts {
		out[id] = i < len(levels) && levels[i]
	}
	return out, nil
}
