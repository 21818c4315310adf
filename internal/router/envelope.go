// internal/router/envelope.go
// The frame codec treats a frame's payload as opaque, and the RPC wire
// semantics above the frame level belong to the peer library. For the
// router's own forwarding of a local call to a remote owner Peer
// (wsservice's forwarding members, the HTTP proxy's invocations), something
// has to travel in that payload, so this file defines the minimal JSON
// envelope the router itself uses and understands on both ends of a
// correlated call.
package router

// callEnvelope is sent as a frame's payload when the router forwards a
// member invocation to its owning Peer.
type callEnvelope struct {
	Type      string `json:"type"` // "method_call" | "stream_call" | "event"
	Member    string `json:"member"`
	Args      []any  `json:"args"`
	RequestID string `json:"request_id"`
}

// replyEnvelope is the expected payload of the owning Peer's response frame.
type replyEnvelope struct {
	Type      string `json:"type"` // "method_reply" | "method_error" | "method_stream"
	RequestID string `json:"request_id"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Done      bool   `json:"done,omitempty"`
}
