package mqtt

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultBufferSize is the number of messages held while the broker is
// unreachable.
const DefaultBufferSize = 100

// message is a serialized MQTT publish waiting for the broker.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages queued while disconnected.
// When full, the oldest message is overwritten. Safe for concurrent use.
type outbox struct {
	mu      sync.Mutex
	slots   []message
	next    int // next write position
	count   int
	dropped uint64
	warned  bool // a drop was logged since the last flush
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &outbox{slots: make([]message, capacity)}
}

func (o *outbox) push(log *zap.SugaredLogger, msg message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	capacity := len(o.slots)
	o.slots[o.next] = msg
	o.next = (o.next + 1) % capacity

	if o.count < capacity {
		o.count++
		return
	}

	o.dropped++
	if !o.warned {
		o.warned = true
		log.Warnf("mqtt outbox full (%d messages), dropping oldest", capacity)
	}
}

// flush removes and returns every queued message, oldest first.
func (o *outbox) flush() []message {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.count == 0 {
		return nil
	}

	capacity := len(o.slots)
	out := make([]message, o.count)
	oldest := (o.next - o.count + capacity) % capacity
	for i := range out {
		out[i] = o.slots[(oldest+i)%capacity]
		o.slots[(oldest+i)%capacity] = message{}
	}

	o.next = 0
	o.count = 0
	o.warned = false
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// droppedTotal is the number of messages overwritten since creation.
func (o *outbox) droppedTotal() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
