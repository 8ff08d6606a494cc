package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/status"
)

const readBufferSize = 256

// SerialMonitor decodes frames from an alarm node serial link. The port's
// Read must return periodically (0, nil on timeout) so Run can observe
// cancellation.
type SerialMonitor struct {
	port      io.Reader
	name      string
	assembler *logic.FrameAssembler
	resolver  logic.Resolver
	router    Dispatcher
	tracker   *status.Tracker

	overflows int
}

// NewSerialMonitor creates a monitor reading from port. name is used in logs.
// A nil resolver is the log-only mode.
func NewSerialMonitor(port io.Reader, name string, resolver logic.Resolver, router Dispatcher, tracker *status.Tracker) *SerialMonitor {
	if resolver == nil {
		resolver = logic.LogResolver{}
	}
	if tracker != nil {
		tracker.EnableSerial()
		tracker.SetSerialOpen(true)
	}
	return &SerialMonitor{
		port:      port,
		name:      name,
		assembler: logic.NewFrameAssembler(logic.DefaultMaxFrame),
		resolver:  resolver,
		router:    router,
		tracker:   tracker,
	}
}

// Run reads until ctx is done or the port fails. A read failure ends only
// this monitor and is returned wrapped in alarm.ErrTransportUnavailable.
// io.EOF ends the stream cleanly.
func (m *SerialMonitor) Run(ctx context.Context) error {
	ctx = logger.WithKV(logger.WithName(ctx, "serial"), "port", m.name)
	logger.Infof(ctx, "reading frames")

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := m.port.Read(buf)
		if n > 0 {
			m.Feed(ctx, buf[:n])
		}
		if err == nil {
			continue
		}

		if m.tracker != nil {
			m.tracker.SetSerialOpen(false)
		}
		if errors.Is(err, io.EOF) {
			logger.Infof(ctx, "end of stream")
			return nil
		}
		logger.Errorf(ctx, "read failed, serial monitor stopping: %v", err)
		return fmt.Errorf("%w: read %s: %w", alarm.ErrTransportUnavailable, m.name, err)
	}
}

// Feed assembles frames from p and handles every complete one. Partial
// frames wait for their terminator.
func (m *SerialMonitor) Feed(ctx context.Context, p []byte) {
	for _, raw := range m.assembler.Feed(p) {
		m.handleFrame(ctx, raw)
	}

	if o := m.assembler.Overflows(); o != m.overflows {
		logger.Warnf(ctx, "dropped %d oversized frames without terminator", o-m.overflows)
		m.overflows = o
	}
}

func (m *SerialMonitor) handleFrame(ctx context.Context, raw []byte) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}

	frame, err := logic.ParseFrame(raw)
	if err != nil {
		logger.Debugf(ctx, "discarding frame %q: %v", raw, err)
		if m.tracker != nil {
			m.tracker.CountFrame(true, "")
		}
		return
	}
	if m.tracker != nil {
		m.tracker.CountFrame(false, frame.DeviceID)
	}

	onOff := "OFF"
	if frame.Active {
		onOff = "ON"
	}

	if _, logOnly := m.resolver.(logic.LogResolver); logOnly {
		logger.InfoKV(ctx, "frame", "device", frame.DeviceID, "sensor", frame.SensorID, "state", onOff)
		return
	}
	logger.Debugf(ctx, "frame device=%s sensor=%s flag=%q", frame.DeviceID, frame.SensorID, frame.Flag)

	for _, id := range m.resolver.Resolve(frame) {
		logger.Infof(ctx, "device %s sensor %s %s -> contact %s", frame.DeviceID, frame.SensorID, onOff, id)
		_ = m.router.Route(ctx, alarm.Trigger{Contact: id, Source: alarm.SourceSerial, Detail: frame.DeviceID})
	}
}
