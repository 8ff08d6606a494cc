package logic

import (
	"errors"
	"fmt"
	"strings"
)

// FrameTerminator ends every frame on the alarm node serial line.
const FrameTerminator = '\r'

// DefaultMaxFrame bounds a frame that never sees its terminator.
const DefaultMaxFrame = 256

const (
	deviceIDLen   = 8
	minPayloadLen = deviceIDLen + 1
	flagActive    = "1"
)

var (
	// ErrParse is the class of all malformed-frame errors.
	ErrParse = errors.New("parse error")
	// ErrFrameFields is returned when a frame does not split into exactly two fields.
	ErrFrameFields = fmt.Errorf("%w: expected <payload>,<flag>", ErrParse)
	// ErrPayloadTooShort is returned when the payload cannot hold a device and sensor id.
	ErrPayloadTooShort = fmt.Errorf("%w: payload shorter than %d characters", ErrParse, minPayloadLen)
)

// FrameAssembler splits a byte stream into terminator-delimited frames.
// Bytes after the last terminator are kept for the next Feed. A frame that
// grows past the size limit is dropped whole, up to and including its
// terminator, and counted.
type FrameAssembler struct {
	buf        []byte
	max        int
	overflow   int
	discarding bool
}

// NewFrameAssembler creates an assembler. max <= 0 selects DefaultMaxFrame.
func NewFrameAssembler(max int) *FrameAssembler {
	if max <= 0 {
		max = DefaultMaxFrame
	}
	return &FrameAssembler{max: max}
}

// Feed appends p and returns every complete frame, terminator stripped.
func (a *FrameAssembler) Feed(p []byte) [][]byte {
	var frames [][]byte

	for _, b := range p {
		if b == FrameTerminator {
			if a.discarding {
				a.discarding = false
				continue
			}
			frame := make([]byte, len(a.buf))
			copy(frame, a.buf)
			frames = append(frames, frame)
			a.buf = a.buf[:0]
			continue
		}
		if a.discarding {
			continue
		}
		if len(a.buf) >= a.max {
			a.buf = a.buf[:0]
			a.overflow++
			a.discarding = true
			continue
		}
		a.buf = append(a.buf, b)
	}

	return frames
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (a *FrameAssembler) Pending() int {
	return len(a.buf)
}

// Overflows returns how many oversized frames were dropped.
func (a *FrameAssembler) Overflows() int {
	return a.overflow
}

// ParseFrame decodes one frame of the form <8-char device><sensor>,<flag>.
// Non-ASCII bytes are dropped and surrounding whitespace is trimmed before
// splitting. Every failure wraps ErrParse.
func ParseFrame(raw []byte) (Frame, error) {
	text := strings.TrimSpace(asciiOnly(raw))

	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return Frame{}, ErrFrameFields
	}

	payload, flag := parts[0], parts[1]
	if len(payload) < minPayloadLen {
		return Frame{}, ErrPayloadTooShort
	}

	return Frame{
		DeviceID: payload[:deviceIDLen],
		SensorID: strings.ToUpper(payload[deviceIDLen:]),
		Flag:     flag,
		Active:   flag == flagActive,
	}, nil
}

func asciiOnly(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if b < 0x80 {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// NodeMapping binds a contact to a node identifier fragment.
type NodeMapping struct {
	Contact ContactID
	Node    string
}

// NodeTable resolves device ids to contacts by substring containment, in
// configuration order. Containment is deliberately loose: a node "29FF"
// matches any device id carrying those characters anywhere, so overlapping
// node ids all match the same device.
type NodeTable []NodeMapping

// Match returns every contact whose node id is contained in deviceID.
func (t NodeTable) Match(deviceID string) []ContactID {
	var out []ContactID
	for _, m := range t {
		if strings.Contains(deviceID, m.Node) {
			out = append(out, m.Contact)
		}
	}
	return out
}

// Resolver maps a decoded frame to the contacts it triggers.
type Resolver interface {
	Resolve(f Frame) []ContactID
}

// NodeResolver triggers the contacts whose node id the frame's device contains.
// Only active frames trigger; an inactive flag never produces an "off" event.
type NodeResolver struct {
	Nodes NodeTable
}

// Resolve implements Resolver.
func (r NodeResolver) Resolve(f Frame) []ContactID {
	if !f.Active {
		return nil
	}
	return r.Nodes.Match(f.DeviceID)
}

// FixedResolver triggers one contact for any active frame, whatever its device.
type FixedResolver struct {
	Contact ContactID
}

// Resolve implements Resolver.
func (r FixedResolver) Resolve(f Frame) []ContactID {
	if !f.Active {
		return nil
	}
	return []ContactID{r.Contact}
}

// LogResolver never triggers; frames are only logged by the caller.
type LogResolver struct{}

// Resolve implements Resolver.
func (LogResolver) Resolve(Frame) []ContactID {
	return nil
}
