// internal/transport/ws.go
// Real WebSocket implementation of Transport: a buffered outbound channel
// drained by a dedicated writer goroutine, and non-blocking fan-out that
// drops frames for a slow consumer rather than blocking the dispatcher.
package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Voskan/hyphagw/internal/logging"
)

// Upgrader is shared across all WebSocket peer connections. CORS is enforced
// by the HTTP layer in front of it, so the upgrader itself allows any
// origin.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DefaultQueueDepth is the outbound queue high-water mark used when none is
// supplied. Frames beyond this mark are dropped with a BackpressureDrop
// reply.
const DefaultQueueDepth = 256

type wsMsg struct {
	data   []byte
	binary bool
}

// WS wraps a server-side *websocket.Conn as a Transport.
type WS struct {
	closeState
	conn      *websocket.Conn
	queue     chan wsMsg
	onMessage func(data []byte, binary bool)
	done      chan struct{}
}

// NewWS constructs a WS transport over an already-upgraded connection and
// starts its read/write pumps. queueDepth <= 0 uses DefaultQueueDepth.
func NewWS(conn *websocket.Conn, queueDepth int) *WS {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	w := &WS{
		conn:  conn,
		queue: make(chan wsMsg, queueDepth),
		done:  make(chan struct{}),
	}
	go w.writePump()
	go w.readPump()
	return w
}

func (w *WS) OnMessage(handler func(data []byte, binary bool)) { w.onMessage = handler }
func (w *WS) OnClose(handler func(code int, reason string))    { w.onClose = handler }

// Send enqueues data without blocking; if the writer goroutine cannot keep up
// the queue fills and Send reports ErrBackpressure so the router can
// synthesize an error reply instead of stalling the caller's goroutine.
func (w *WS) Send(data []byte, binary bool) error {
	if w.Closed() {
		return ErrTransportClosed
	}
	select {
	case w.queue <- wsMsg{data: data, binary: binary}:
		return nil
	default:
		return ErrBackpressure
	}
}

// QueueLen reports the current outbound backlog, useful for metrics.
func (w *WS) QueueLen() int { return len(w.queue) }

func (w *WS) Close(code int, reason string) error {
	if !w.markClosed(code, reason) {
		return nil
	}
	close(w.done)
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return w.conn.Close()
}

func (w *WS) writePump() {
	for {
		select {
		case <-w.done:
			return
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			mt := websocket.TextMessage
			if msg.binary {
				mt = websocket.BinaryMessage
			}
			if err := w.conn.WriteMessage(mt, msg.data); err != nil {
				logging.Sugar().Debugw("ws write failed, closing transport", "err", err)
				w.Close(websocket.CloseAbnormalClosure, "write error")
				return
			}
		}
	}
}

func (w *WS) readPump() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			w.Close(websocket.CloseNormalClosure, "read error")
			return
		}
		binary := mt == websocket.BinaryMessage
		if h := w.onMessage; h != nil {
			h(data, binary)
		} else {
			logging.Sugar().Warnw("ws message dropped: no handler registered")
		}
	}
}
