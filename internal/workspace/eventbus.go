// internal/workspace/eventbus.go
// EventBus is the per-workspace pub/sub backing emit/on/off on the workspace
// service: buffered channels per subscriber, non-blocking send with a
// dropped-slow-consumer fallback instead of a mutex-held blocking send.
package workspace

import (
	"sync"

	"github.com/Voskan/hyphagw/internal/logging"
)

// eventQueueDepth bounds how many unconsumed events a single subscriber may
// accumulate before new events to it are dropped.
const eventQueueDepth = 32

// Event is one value emitted on the bus.
type Event struct {
	Name    string
	Payload any
}

// EventBus is a workspace-scoped named-event pub/sub. Events never cross the
// workspace isolation boundary; each Workspace owns its own bus.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan Event]struct{})}
}

// On subscribes to event, returning a channel of future Events and an
// unsubscribe function that the caller must eventually invoke.
func (b *EventBus) On(event string) (ch chan Event, off func()) {
	ch = make(chan Event, eventQueueDepth)

	b.mu.Lock()
	if b.subs[event] == nil {
		b.subs[event] = make(map[chan Event]struct{})
	}
	b.subs[event][ch] = struct{}{}
	b.mu.Unlock()

	off = func() {
		b.mu.Lock()
		if set, ok := b.subs[event]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, event)
			}
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, off
}

// Emit delivers payload to every current subscriber of event. Slow
// subscribers are skipped rather than blocking the caller, so the dispatcher
// goroutine can never stall on a full subscriber queue.
func (b *EventBus) Emit(event string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event] {
		select {
		case ch <- Event{Name: event, Payload: payload}:
		default:
			logging.Sugar().Debugw("dropping event to slow subscriber", "event", event)
		}
	}
}
