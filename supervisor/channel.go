package supervisor

import "sync"

// EventChannel is an unbounded FIFO carrying events from the output
// reader (and the control plane) to the poll cycle. Push never waits on
// capacity; TryPop never blocks.
type EventChannel struct {
	mu    sync.Mutex
	items []Event
	head  int
	seq   uint64
}

// NewEventChannel returns an empty channel.
func NewEventChannel() *EventChannel {
	return &EventChannel{}
}

// Push appends an event, stamping it with the next sequence number.
// The stamped event is returned.
func (c *EventChannel) Push(e Event) Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	e = e.withSeq(c.seq)
	c.items = append(c.items, e)
	return e
}

// TryPop removes and returns the oldest event. The boolean is false
// when the channel is empty.
func (c *EventChannel) TryPop() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head == len(c.items) {
		return nil, false
	}

	e := c.items[c.head]
	c.items[c.head] = nil
	c.head++

	// reclaim the backing array once everything queued has been consumed,
	// or once the consumed prefix dominates it
	switch {
	case c.head == len(c.items):
		c.items = c.items[:0]
		c.head = 0
	case c.head > 64 && c.head*2 > len(c.items):
		n := copy(c.items, c.items[c.head:])
		for i := n; i < len(c.items); i++ {
			c.items[i] = nil
		}
		c.items = c.items[:n]
		c.head = 0
	}

	return e, true
}

// Len returns the number of queued events.
func (c *EventChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) - c.head
}
