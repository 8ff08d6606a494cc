package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/config"
	"github.com/sweeney/alarm-gateway/internal/gpio"
	"github.com/sweeney/alarm-gateway/internal/journal"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/monitor"
	"github.com/sweeney/alarm-gateway/internal/mqtt"
	"github.com/sweeney/alarm-gateway/internal/status"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	pub     *mqtt.FakePublisher
	journal *journal.Journal
	router  *alarm.Router
	tracker *status.Tracker
	cfg     *config.Config
}

// newHarness wires a validated configuration's contact table to a fake
// broker and a real journal, the way the daemon does.
func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{Contacts: []config.Contact{
		{ID: "1", Site: "Store 12", Location: "Front till", Floor: "G", Zone: "A", Unit: "U1", CameraID: "cam-1"},
		{ID: "3", Site: "Store 12", Location: "Stock room", Floor: "1", Zone: "B", Unit: "U3", CameraID: "cam-3"},
		{ID: "6", Site: "Store 12", Location: "Panel", Floor: "G", Zone: "P", Unit: "U6", CameraID: "cam-6"},
	}}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	table, err := cfg.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	pub := mqtt.NewFakePublisher()
	n := 0
	router := alarm.NewRouter(table, alarm.MultiSink{pub, j},
		alarm.WithClock(func() time.Time { return fixedNow }),
		alarm.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("evt-%d", n)
		}),
	)
	tracker := status.NewTracker(fixedNow, status.Config{})
	tracker.WatchCounts(router.Counts)

	return &harness{pub: pub, journal: j, router: router, tracker: tracker, cfg: cfg}
}

func (h *harness) journalCount(t *testing.T) int {
	t.Helper()
	n, err := h.journal.Count(context.Background())
	if err != nil {
		t.Fatalf("journal.Count: %v", err)
	}
	return n
}

func TestIntegrationContactFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	contacts := []logic.ContactID{"1", "2", "5"}

	// Contact 1 bounces idle/active twice; contact 2 has no table row.
	reader := gpio.NewFakeReader([][]bool{
		{false, false, false},
		{true, false, false},
		{true, true, false},
		{true, true, false},
		{false, false, false},
		{true, false, false},
	})
	m := monitor.NewContactMonitor(reader, contacts, h.router, h.tracker)
	for i := 0; i < 6; i++ {
		m.Poll(ctx)
	}

	if len(h.pub.Events) != 2 {
		t.Fatalf("expected 2 events for contact 1, got %d", len(h.pub.Events))
	}
	for i, ev := range h.pub.Events {
		if ev.Contact.ID != "1" || ev.Source != alarm.SourceContact {
			t.Errorf("event %d: got %+v", i, ev)
		}
	}
	if got := h.journalCount(t); got != 2 {
		t.Errorf("journal rows: got %d, want 2", got)
	}

	snap := h.tracker.Snapshot()
	if snap.Counts.Dispatched != 2 || snap.Counts.Missing != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if len(snap.Contacts) != 3 || !snap.Contacts[0].Latched {
		t.Errorf("contacts: got %+v", snap.Contacts)
	}
}

func TestIntegrationSerialNodeFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := monitor.NewSerialMonitor(nil, "test", h.cfg.Serial.Resolver(), h.router, h.tracker)

	// 29FF maps to contact 3. 14A0 maps to contact 4, which has no row.
	m.Feed(ctx, []byte("X29FFBB0"))
	if len(h.pub.Events) != 0 {
		t.Fatal("partial frame must not dispatch")
	}
	m.Feed(ctx, []byte("0,1\r"))
	m.Feed(ctx, []byte("X14A0CC00,1\rgarbage\r"))

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.Events))
	}
	ev := h.pub.Events[0]
	if ev.Contact.ID != "3" || ev.Source != alarm.SourceSerial || ev.Detail != "X29FFBB0" {
		t.Errorf("event: got %+v", ev)
	}

	snap := h.tracker.Snapshot()
	if snap.Serial.Frames != 2 || snap.Serial.Discarded != 1 {
		t.Errorf("serial: got %+v", snap.Serial)
	}
	if snap.Counts.Missing != 1 {
		t.Errorf("missing: got %d, want 1", snap.Counts.Missing)
	}
}

func TestIntegrationPulseSilenceFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m := monitor.NewPulseMonitor("6", logic.DefaultPulseThresholds(), h.router, h.tracker)
	w := gpio.NewFakeEdgeWatcher(m.HandleEdge)
	m.SetClock(w.Now)

	w.Pulse(0, 50)
	w.Pulse(20_000, 50)
	w.SetNow(30_000)
	m.CheckSilence(ctx)
	if snap := h.tracker.Snapshot(); snap.Pulse.State != logic.PulseArmed {
		t.Fatalf("state: got %q, want ARMED", snap.Pulse.State)
	}

	w.SetNow(20_050 + 1_000_001)
	m.CheckSilence(ctx)
	m.CheckSilence(ctx)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 silence alarm, got %d", len(h.pub.Events))
	}
	ev := h.pub.Events[0]
	if ev.Contact.ID != "6" || ev.Source != alarm.SourcePulse || ev.Detail != "ALARM" {
		t.Errorf("event: got %+v", ev)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	h := newHarness(t)

	if err := h.router.Route(context.Background(), alarm.Trigger{Contact: "3", Source: alarm.SourceSerial, Detail: "X29FFBB0"}); err != nil {
		t.Fatalf("Route: %v", err)
	}

	var payload map[string]map[string]string
	if err := json.Unmarshal(h.pub.Payloads[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := map[string]string{
		"id":        "evt-1",
		"timestamp": "2026-01-01T12:00:00Z",
		"contact":   "3",
		"source":    "serial",
		"detail":    "X29FFBB0",
		"site":      "Store 12",
		"location":  "Stock room",
		"floor":     "1",
		"zone":      "B",
		"unit":      "U3",
		"camera_id": "cam-3",
	}
	got := payload["alarm"]
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["table"]; ok {
		t.Error("empty table field should be omitted")
	}

	recent, err := h.journal.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "evt-1" || recent[0].Contact.DeviceID != "cam-3" {
		t.Errorf("journal: got %+v", recent)
	}
}

func TestIntegrationBrokerFailureStillJournals(t *testing.T) {
	h := newHarness(t)
	h.pub.DispatchError = errors.New("broker unavailable")

	err := h.router.Route(context.Background(), alarm.Trigger{Contact: "1", Source: alarm.SourceContact})
	if !errors.Is(err, alarm.ErrDownstreamFailure) {
		t.Fatalf("expected ErrDownstreamFailure, got %v", err)
	}
	if got := h.journalCount(t); got != 1 {
		t.Errorf("journal rows: got %d, want 1", got)
	}
	if snap := h.tracker.Snapshot(); snap.Counts.Failed != 1 {
		t.Errorf("failed: got %d, want 1", snap.Counts.Failed)
	}
}

func TestIntegrationStatusEventCarriesCounts(t *testing.T) {
	h := newHarness(t)
	_ = h.router.Route(context.Background(), alarm.Trigger{Contact: "1", Source: alarm.SourceContact})
	_ = h.router.Route(context.Background(), alarm.Trigger{Contact: "9", Source: alarm.SourceContact})

	raw := status.FormatStatusEvent(h.tracker.Snapshot(), mqtt.EventHeartbeat, "")
	payload, err := mqtt.FormatSystemPayload(mqtt.SystemEvent{Event: mqtt.EventHeartbeat, RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" || sj.Status.Counts.Dispatched != 1 || sj.Status.Counts.Missing != 1 {
		t.Errorf("status: got %+v", sj.Status)
	}
}
