package logic

// Debouncer latches one event per contiguous active interval on each of a
// fixed set of digital lines. It is level based: a line that stays active
// across many polls emits once, and a bounce that starts and ends between two
// polls is never seen at all. Not safe for concurrent use; the owning poll
// loop is the only caller.
type Debouncer struct {
	contacts []ContactID
	channels []ChannelState
}

// NewDebouncer creates a debouncer for the given lines. The order of contacts
// defines the order of samples passed to Process.
func NewDebouncer(contacts []ContactID) *Debouncer {
	c := make([]ContactID, len(contacts))
	copy(c, contacts)
	return &Debouncer{
		contacts: c,
		channels: make([]ChannelState, len(contacts)),
	}
}

// Process takes one sample of logical levels (true = active) and returns the
// contacts that became active and were not already latched. Samples beyond
// the configured line count are ignored; missing samples leave the channel
// untouched.
func (d *Debouncer) Process(active []bool) []ContactID {
	var triggered []ContactID

	for i := range d.channels {
		if i >= len(active) {
			break
		}
		ch := &d.channels[i]
		ch.Active = active[i]

		if !ch.Active {
			ch.Latched = false
			continue
		}

		if !ch.Latched {
			ch.Latched = true
			triggered = append(triggered, d.contacts[i])
		}
	}

	return triggered
}

// Contacts returns the configured contact order.
func (d *Debouncer) Contacts() []ContactID {
	out := make([]ContactID, len(d.contacts))
	copy(out, d.contacts)
	return out
}

// Channels returns a copy of the per-line latch state, in contact order.
func (d *Debouncer) Channels() []ChannelState {
	out := make([]ChannelState, len(d.channels))
	copy(out, d.channels)
	return out
}
