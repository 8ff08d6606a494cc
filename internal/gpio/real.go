//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/sweeney/alarm-gateway/internal/logic"
)

const consumer = "alarm-gateway"

// RealReader reads contact lines from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests the given pins as inputs with pull-up bias.
func NewRealReader(chipName string, pins []int) (*RealReader, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("no contact pins configured")
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// Contacts pull the line to ground when closed.
	lines, err := chip.RequestLines(pins, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request contact pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:   chip,
		lines:  lines,
		values: make([]int, len(pins)),
	}, nil
}

// Read returns the logical level of every line. Raw 0 is active.
func (r *RealReader) Read() ([]bool, error) {
	if err := r.lines.Values(r.values); err != nil {
		return nil, fmt.Errorf("read contact pins: %w", err)
	}

	active := make([]bool, len(r.values))
	for i, v := range r.values {
		active[i] = v == 0
	}
	return active, nil
}

// Close releases the lines and the chip. Every step is attempted even if an
// earlier one fails.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close contact lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealEdgeWatcher watches both edges of one line with pull-up bias.
type RealEdgeWatcher struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealEdgeWatcher requests pin for edge detection and calls handler for
// every edge. Event timestamps come from CLOCK_MONOTONIC, which Now also reads.
func NewRealEdgeWatcher(chipName string, pin int, handler EdgeHandler) (*RealEdgeWatcher, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(Edge{
				Rising: evt.Type == gpiocdev.LineEventRisingEdge,
				Tick:   durationTick(evt.Timestamp),
			})
		}),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request status pin %d: %w", pin, err)
	}

	return &RealEdgeWatcher{chip: chip, line: line}, nil
}

// Now returns the monotonic clock as a tick.
func (w *RealEdgeWatcher) Now() logic.Tick {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return durationTick(time.Duration(ts.Nano()))
}

// Close stops event delivery and releases the line and chip.
func (w *RealEdgeWatcher) Close() error {
	var errs []error

	if w.line != nil {
		if err := w.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close status line: %w", err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func durationTick(d time.Duration) logic.Tick {
	return logic.Tick(uint64(d.Microseconds()))
}
