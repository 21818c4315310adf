// internal/router/correlator.go
// Correlator is the synthetic pseudo-peer transport the router binds to a
// fixed client id in every workspace so it can originate calls on behalf of
// Go-native callers (the workspace service's forwarding members, the HTTP
// proxy) and correlate the eventual reply frame.
package router

import (
	"encoding/json"
	"sync"

	"github.com/Voskan/hyphagw/internal/frame"
)

// CorrelatorClientID is the fixed client id the Correlator registers under
// in every workspace.
const CorrelatorClientID = "http-gateway"

// Correlator implements transport.Transport. Frames "sent" to it (i.e.
// addressed back to this pseudo-peer) are interpreted as replyEnvelopes and
// routed to whichever goroutine is awaiting that request id.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan *replyEnvelope
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan *replyEnvelope)}
}

// Send implements transport.Transport: it is invoked by the router when
// delivering an inbound frame addressed to this pseudo-peer. A "method_
// stream" reply is kept pending until it arrives with Done=true, so a
// streaming call can deliver multiple envelopes to the same awaiter.
func (c *Correlator) Send(data []byte, binary bool) error {
	f, err := frame.Decode(data)
	if err != nil {
		return nil
	}
	var env replyEnvelope
	if err := json.Unmarshal(f.Payload, &env); err != nil {
		return nil
	}

	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok && (env.Type != "method_stream" || env.Done) {
		delete(c.pending, env.RequestID)
	}
	c.mu.Unlock()

	if ok {
		ch <- &env
	}
	return nil
}

// OnMessage is a no-op: the Correlator never surfaces inbound messages
// through a handler, only through awaited reply channels.
func (c *Correlator) OnMessage(func([]byte, bool)) {}

// OnClose is a no-op: the Correlator is never closed for the lifetime of its
// workspace.
func (c *Correlator) OnClose(func(int, string)) {}

// Close is a no-op; the Correlator is a process-lifetime fixture.
func (c *Correlator) Close(code int, reason string) error { return nil }

// Closed always reports false.
func (c *Correlator) Closed() bool { return false }

// await registers requestID and returns the channel its reply will arrive
// on. The caller must eventually call cancel if no reply arrives.
func (c *Correlator) await(requestID string) chan *replyEnvelope {
	ch := make(chan *replyEnvelope, 16)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

// cancel stops waiting for requestID, used on context cancellation/timeout.
func (c *Correlator) cancel(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
