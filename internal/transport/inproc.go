// internal/transport/inproc.go
// In-process Transport for peers that have no real socket; the tests use it
// to attach peers without a WebSocket. A buffered channel stands in for the
// byte-stream.
package transport

// Inproc is a Transport backed by an in-memory channel rather than a socket.
type Inproc struct {
	closeState
	queue     chan wsMsg
	onMessage func(data []byte, binary bool)
	done      chan struct{}
}

// NewInproc constructs an Inproc transport and starts its delivery pump.
// queueDepth <= 0 uses DefaultQueueDepth.
func NewInproc(queueDepth int) *Inproc {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	p := &Inproc{
		queue: make(chan wsMsg, queueDepth),
		done:  make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *Inproc) OnMessage(handler func(data []byte, binary bool)) { p.onMessage = handler }
func (p *Inproc) OnClose(handler func(code int, reason string))    { p.onClose = handler }

// Send delivers data to whatever handler the peer owner registered via
// OnMessage. Non-blocking with the same backpressure semantics as WS.
func (p *Inproc) Send(data []byte, binary bool) error {
	if p.Closed() {
		return ErrTransportClosed
	}
	select {
	case p.queue <- wsMsg{data: data, binary: binary}:
		return nil
	default:
		return ErrBackpressure
	}
}

func (p *Inproc) Close(code int, reason string) error {
	if !p.markClosed(code, reason) {
		return nil
	}
	close(p.done)
	return nil
}

func (p *Inproc) pump() {
	for {
		select {
		case <-p.done:
			return
		case msg, ok := <-p.queue:
			if !ok {
				return
			}
			if h := p.onMessage; h != nil {
				h(msg.data, msg.binary)
			}
		}
	}
}
