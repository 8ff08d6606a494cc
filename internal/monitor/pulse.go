package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/gpio"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/status"
)

// NotificationQueue is the number of state changes buffered between the edge
// callback and Run.
const NotificationQueue = 16

var errNoClock = errors.New("pulse monitor: no tick clock attached")

// PulseMonitor decodes the duty-cycle status line. HandleEdge runs on the
// GPIO event goroutine and only updates the classifier and queues a
// notification; Run does the logging, routing and the silence watchdog.
type PulseMonitor struct {
	contact    logic.ContactID
	classifier *logic.PulseClassifier
	router     Dispatcher
	tracker    *status.Tracker
	clock      func() logic.Tick

	notes       chan logic.PulseTransition
	dropped     atomic.Uint64
	lastDropped uint64
}

// NewPulseMonitor creates a monitor that raises contact on silence.
func NewPulseMonitor(contact logic.ContactID, th logic.PulseThresholds, router Dispatcher, tracker *status.Tracker) *PulseMonitor {
	if tracker != nil {
		tracker.EnablePulse()
	}
	return &PulseMonitor{
		contact:    contact,
		classifier: logic.NewPulseClassifier(th),
		router:     router,
		tracker:    tracker,
		notes:      make(chan logic.PulseTransition, NotificationQueue),
	}
}

// SetClock attaches the tick source the watchdog compares against. It must
// be the clock that stamps the edges, normally EdgeWatcher.Now.
func (m *PulseMonitor) SetClock(now func() logic.Tick) {
	m.clock = now
}

// HandleEdge is the gpio.EdgeHandler for the status line. It never blocks:
// when the notification queue is full the change is counted and dropped.
func (m *PulseMonitor) HandleEdge(e gpio.Edge) {
	if !e.Rising {
		m.classifier.Falling(e.Tick)
		return
	}

	tr, changed := m.classifier.Rising(e.Tick)
	if !changed {
		return
	}

	select {
	case m.notes <- tr:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns the number of state changes lost to a full queue.
func (m *PulseMonitor) Dropped() uint64 {
	return m.dropped.Load()
}

// State returns the classifier's current state and last width.
func (m *PulseMonitor) State() (logic.PulseState, uint32) {
	return m.classifier.State()
}

// Run reports state changes as they arrive and checks for silence on every
// tick until ctx is done.
func (m *PulseMonitor) Run(ctx context.Context, tick <-chan time.Time) error {
	if m.clock == nil {
		return errNoClock
	}

	ctx = logger.WithKV(logger.WithName(ctx, "pulse"), "contact", m.contact)
	th := m.classifier.Thresholds()
	logger.Infof(ctx, "watching status line: armed<=%dus unarmed<=%dus silence>%dus",
		th.ArmedMax, th.UnarmedMax, th.Silence)

	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-m.notes:
			m.report(ctx, tr)
		case <-tick:
			m.CheckSilence(ctx)
		}
	}
}

// CheckSilence runs one watchdog check and routes the alarm if it fires.
func (m *PulseMonitor) CheckSilence(ctx context.Context) {
	m.drainNotes(ctx)
	m.reportDropped(ctx)

	tr, fired := m.classifier.CheckSilence(m.clock())
	if !fired {
		return
	}

	logger.WarnKV(ctx, "status line silent, raising alarm", "from", tr.From, "silence_us", m.classifier.Thresholds().Silence)
	if m.tracker != nil {
		m.tracker.CountPulseAlarm()
	}
	_ = m.router.Route(ctx, alarm.Trigger{Contact: m.contact, Source: alarm.SourcePulse, Detail: string(logic.PulseAlarm)})
}

func (m *PulseMonitor) drainNotes(ctx context.Context) {
	for {
		select {
		case tr := <-m.notes:
			m.report(ctx, tr)
		default:
			return
		}
	}
}

func (m *PulseMonitor) report(ctx context.Context, tr logic.PulseTransition) {
	if tr.From == logic.PulseNone {
		logger.Infof(ctx, "status %s (width %dus)", tr.To, tr.Width)
	} else {
		logger.Infof(ctx, "status %s -> %s (width %dus)", tr.From, tr.To, tr.Width)
	}
	if m.tracker != nil {
		m.tracker.UpdatePulse(tr.To, tr.Width)
	}
}

func (m *PulseMonitor) reportDropped(ctx context.Context) {
	n := m.dropped.Load()
	if n == m.lastDropped {
		return
	}
	logger.Warnf(ctx, "dropped %d status notifications (total %d)", n-m.lastDropped, n)
	m.lastDropped = n
	if m.tracker != nil {
		m.tracker.SetPulseDropped(n)
	}
}
