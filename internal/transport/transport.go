// internal/transport/transport.go
// Package transport implements the Peer transport contract: one object per
// connected peer, owning a bidirectional byte-stream.
// Two implementations live here: a real WebSocket connection (ws.go) and an
// in-process channel (inproc.go) that tests use in place of a socket. The
// router's own pseudo-peers (the workspace-manager peer and the call
// correlator) carry transports defined in internal/router.
package transport

import (
	"errors"
	"sync/atomic"
)

// ErrTransportClosed is returned by Send when the transport is no longer
// open.
var ErrTransportClosed = errors.New("transport: closed")

// ErrBackpressure is returned by Send when the outbound queue is at its
// configured high-water mark. The router translates this into a
// BackpressureDrop error reply to the sender.
var ErrBackpressure = errors.New("transport: outbound queue full")

// Transport is the minimal contract the router needs from a connected peer.
// Implementations must be safe for concurrent use: Send may be called from
// the dispatcher goroutine of any workspace while the read side concurrently
// delivers inbound messages.
type Transport interface {
	// Send enqueues data for delivery to the remote side. binary distinguishes
	// a binary RPC frame from a text control message. Send never blocks
	// indefinitely: it either enqueues immediately or returns ErrBackpressure.
	Send(data []byte, binary bool) error

	// OnMessage registers the handler invoked for each inbound message. Must
	// be called before traffic starts flowing; implementations do not
	// support re-registration once running.
	OnMessage(handler func(data []byte, binary bool))

	// OnClose registers the handler invoked exactly once when the transport
	// transitions to closed, whether by local Close or remote disconnect.
	OnClose(handler func(code int, reason string))

	// Close tears down the transport. Idempotent.
	Close(code int, reason string) error

	// Closed reports whether the transport has been torn down.
	Closed() bool
}

// closeState is a small embeddable helper giving implementations an atomic
// "closed" flag plus a once-only close callback.
type closeState struct {
	closed  atomic.Bool
	onClose func(code int, reason string)
}

func (c *closeState) markClosed(code int, reason string) bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	if c.onClose != nil {
		c.onClose(code, reason)
	}
	return true
}

func (c *closeState) Closed() bool { return c.closed.Load() }
