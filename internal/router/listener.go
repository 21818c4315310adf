// internal/router/listener.go
// HTTP entry point for the WebSocket data plane: upgrade, then drive the
// connection purely through Transport's OnMessage/OnClose callbacks rather
// than a blocking read loop owned by this file.
package router

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// ServeWS upgrades req to a WebSocket and drives the handshake followed by
// ordinary frame routing over the resulting peer.
// A single OnMessage handler is registered for the connection's lifetime
// (Transport implementations do not support re-registration once traffic is
// flowing); it dispatches to the handshake exactly once, then to Route.
func (r *Router) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := transport.Upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Sugar().Warnw("ws upgrade failed", "err", err)
		return
	}

	t := transport.NewWS(conn, 0)

	var (
		mu         sync.Mutex
		peer       *workspace.Peer
		handshaken bool
	)

	t.OnMessage(func(data []byte, binary bool) {
		mu.Lock()
		done := handshaken
		mu.Unlock()
		if done {
			r.Route(peer, data)
			return
		}

		p, body, err := r.Handshake(t, data)
		if err != nil {
			kind, ok := errs.KindOf(err)
			reason := err.Error()
			if ok {
				reason = string(kind)
			}
			logging.Sugar().Infow("handshake rejected", "err", err)
			_ = t.Close(websocket.ClosePolicyViolation, reason)
			return
		}

		mu.Lock()
		peer, handshaken = p, true
		mu.Unlock()

		metrics.ConnectedPeers.Inc()
		if sendErr := t.Send(body, false); sendErr != nil {
			logging.Sugar().Warnw("failed to send connection_info", "err", sendErr)
		}
	})

	t.OnClose(func(code int, reason string) {
		mu.Lock()
		p := peer
		mu.Unlock()
		if p == nil {
			return
		}
		metrics.ConnectedPeers.Dec()
		r.Spaces.DisconnectPeer(p)
	})
}
