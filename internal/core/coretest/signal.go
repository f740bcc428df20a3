package coretest

import "sync"

// CapturedEvent is one event a fake connection received.
type CapturedEvent struct {
	Name    string
	Payload any
}

// SignalConn implements core.SignalConnection and records every event in
// arrival order.
type SignalConn struct {
	mu     sync.Mutex
	events []CapturedEvent
	closed bool

	// FailSend, when set, makes SendEvent return it without recording.
	FailSend error
}

func NewSignalConn() *SignalConn { return &SignalConn{} }

func (c *SignalConn) SendEvent(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSend != nil {
		return c.FailSend
	}
	c.events = append(c.events, CapturedEvent{Name: event, Payload: payload})
	return nil
}

func (c *SignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *SignalConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *SignalConn) Events() []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CapturedEvent(nil), c.events...)
}

// EventsNamed returns the received events carrying the given name.
func (c *SignalConn) EventsNamed(name string) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CapturedEvent
	for _, ev := range c.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
