package events

import (
	"context"
	"sync"
)

// Sink receives events once the transaction that produced them has committed.
type Sink interface {
	Publish(evs ...Event)
}

// Collector is the pending-effects list of one transaction attempt.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) add(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns the collected events in emission order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

type collectorKey struct{}

// WithCollector returns a context whose Emit calls append to c.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// Emit records ev on the transaction in ctx. It reports false when ctx carries
// no collector, in which case the event is dropped.
func Emit(ctx context.Context, ev Event) bool {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	if !ok || c == nil {
		return false
	}
	c.add(ev)
	return true
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Publish(...Event) {}
