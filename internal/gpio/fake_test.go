package gpio

import (
	"errors"
	"testing"

	"github.com/sweeney/alarm-gateway/internal/logic"
)

func TestFakeReaderRead(t *testing.T) {
	samples := [][]bool{
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}

	f := NewFakeReader(samples)

	for i, want := range samples {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if len(got) != len(want) {
			t.Fatalf("sample %d: expected %d levels, got %d", i, len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("sample %d line %d: expected %v, got %v", i, j, want[j], got[j])
			}
		}
	}

	// Fourth read should repeat last sample
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0] || !got[1] || !got[2] {
		t.Errorf("repeat: expected all true, got %v", got)
	}
}

func TestFakeReaderReturnsCopy(t *testing.T) {
	f := NewFakeReader([][]bool{{true}})

	got, _ := f.Read()
	got[0] = false

	again, _ := f.Read()
	if !again[0] {
		t.Error("mutating a returned sample must not change the script")
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([][]bool{{true}})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([][]bool{{true}, {false}})

	f.Read()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	got, _ := f.Read()
	if !got[0] {
		t.Errorf("after reset: expected first sample, got %v", got)
	}
}

func TestFakeEdgeWatcherDelivers(t *testing.T) {
	var edges []Edge
	w := NewFakeEdgeWatcher(func(e Edge) { edges = append(edges, e) })

	w.Pulse(1000, 60)

	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if edges[0].Rising || edges[0].Tick != 1000 {
		t.Errorf("edge 0: got %+v", edges[0])
	}
	if !edges[1].Rising || edges[1].Tick != 1060 {
		t.Errorf("edge 1: got %+v", edges[1])
	}
	if w.Now() != logic.Tick(1060) {
		t.Errorf("Now: expected 1060, got %d", w.Now())
	}
}

func TestFakeEdgeWatcherClose(t *testing.T) {
	var n int
	w := NewFakeEdgeWatcher(func(Edge) { n++ })

	w.Close()
	w.Emit(true, 5)

	if n != 0 {
		t.Errorf("expected no edges after close, got %d", n)
	}
	if !w.Closed() {
		t.Error("expected Closed() after Close")
	}
}

func TestFakeEdgeWatcherSetNow(t *testing.T) {
	w := NewFakeEdgeWatcher(nil)
	w.SetNow(42)
	if w.Now() != 42 {
		t.Errorf("expected 42, got %d", w.Now())
	}
	// nil handler is tolerated
	w.Emit(false, 50)
}
