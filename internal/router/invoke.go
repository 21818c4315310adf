// internal/router/invoke.go
// Implements wsservice.Invoker and wsservice.Notifier: the router forwards
// a local call to a remote owner Peer by framing it through the caller's
// workspace correlator pseudo-peer and awaiting the correlated reply.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/frame"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/util"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// senderAndCorrelator resolves the correlator pseudo-peer and its Correlator
// transport for workspace ws. The Correlator is the transport the bootstrap
// bound to the fixed correlator client id, so the peer table is the single
// source of truth for it.
func (r *Router) senderAndCorrelator(ws string) (*correlatorHandle, error) {
	w, ok := r.Spaces.Get(ws)
	if !ok {
		return nil, errs.New(errs.WorkspaceRequired, "unknown workspace %q", ws)
	}
	peer, ok := w.Peer(CorrelatorClientID)
	if !ok {
		return nil, errs.New(errs.ServiceError, "workspace %q has no call correlator installed", ws)
	}
	correlator, ok := peer.Transport.(*Correlator)
	if !ok {
		return nil, errs.New(errs.ServiceError, "workspace %q has no call correlator installed", ws)
	}
	return &correlatorHandle{peer: peer, correlator: correlator}, nil
}

type correlatorHandle struct {
	peer       *workspace.Peer
	correlator *Correlator
}

// Invoke sends member(args...) to the owning peer `to` and blocks for its
// reply, up to the configured method timeout.
func (r *Router) Invoke(ctx context.Context, call registry.CallContext, to, member string, args []any) (any, error) {
	ctx, span := r.Tracer.StartInvoke(ctx, to, member)
	defer span.End()

	h, err := r.senderAndCorrelator(call.Workspace)
	if err != nil {
		return nil, err
	}

	reqID := util.MustNew()
	raw, err := encodeCall(h.peer.ID, to, callEnvelope{Type: "method_call", Member: member, Args: args, RequestID: reqID})
	if err != nil {
		return nil, err
	}

	replyCh := h.correlator.await(reqID)
	r.Route(h.peer, raw)

	select {
	case env := <-replyCh:
		if env.Error != "" {
			return nil, errs.New(errs.ServiceError, "%s", env.Error)
		}
		return env.Result, nil
	case <-time.After(r.cfg.MethodTimeout):
		h.correlator.cancel(reqID)
		return nil, errs.New(errs.RequestTimeout, "call to %s.%s timed out after %s", to, member, r.cfg.MethodTimeout)
	case <-ctx.Done():
		h.correlator.cancel(reqID)
		return nil, ctx.Err()
	}
}

// InvokeStream is Invoke's streaming counterpart: the owning peer replies
// with a sequence of "method_stream" envelopes terminated by one with
// Done=true.
func (r *Router) InvokeStream(ctx context.Context, call registry.CallContext, to, member string, args []any) (<-chan registry.StreamValue, error) {
	ctx, span := r.Tracer.StartInvoke(ctx, to, member)

	h, err := r.senderAndCorrelator(call.Workspace)
	if err != nil {
		span.End()
		return nil, err
	}

	reqID := util.MustNew()
	raw, err := encodeCall(h.peer.ID, to, callEnvelope{Type: "stream_call", Member: member, Args: args, RequestID: reqID})
	if err != nil {
		span.End()
		return nil, err
	}

	replyCh := h.correlator.await(reqID)
	r.Route(h.peer, raw)

	out := make(chan registry.StreamValue, 16)
	go func() {
		defer close(out)
		defer span.End()
		for {
			select {
			case env, ok := <-replyCh:
				if !ok {
					return
				}
				if env.Error != "" {
					out <- registry.StreamValue{Err: errs.New(errs.ServiceError, "%s", env.Error), Done: true}
					return
				}
				out <- registry.StreamValue{Value: env.Result, Done: env.Done}
				if env.Done {
					return
				}
			case <-time.After(r.cfg.MethodTimeout):
				h.correlator.cancel(reqID)
				out <- registry.StreamValue{Err: errs.New(errs.RequestTimeout, "stream %s.%s timed out", to, member), Done: true}
				return
			case <-ctx.Done():
				h.correlator.cancel(reqID)
				return
			}
		}
	}()
	return out, nil
}

// Notify implements wsservice.Notifier: a fire-and-forget event push to a
// subscribing peer, addressed through that peer's own workspace correlator.
func (r *Router) Notify(peerID, event string, payload any) {
	ws, _, ok := splitFQID(peerID)
	if !ok {
		return
	}
	h, err := r.senderAndCorrelator(ws)
	if err != nil {
		return
	}
	raw, err := encodeCall(h.peer.ID, peerID, callEnvelope{Type: "event", Member: event, Args: []any{payload}})
	if err != nil {
		return
	}
	r.Route(h.peer, raw)
}

func encodeCall(from, to string, env callEnvelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	hdr := frame.Header{}
	hdr.Set(frame.KeyFrom, from)
	hdr.Set(frame.KeyTo, to)
	f := &frame.Frame{Header: hdr, Payload: body}
	return f.Encode()
}
