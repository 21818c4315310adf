// internal/router/manager.go
// managerTransport backs the synthetic workspace-manager peer. A frame the
// router delivers to it is decoded as a call envelope, dispatched to the
// matching workspace-service member, and answered with a reply frame on the
// caller's own transport: the same request/reply exchange a remote peer's
// client library performs on its end of the wire. Without this, a wire-level
// register_service/get_service call from a connected peer would be silently
// swallowed and the caller would hang until its method timeout.
package router

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/frame"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/workspace"
	"github.com/Voskan/hyphagw/internal/wsservice"
)

type managerTransport struct {
	r *Router
	w *workspace.Workspace

	// desc is assigned during workspace bootstrap, before the manager peer
	// is published to the peer table, so dispatch never observes it nil.
	desc *registry.Descriptor
}

func newManagerTransport(r *Router, w *workspace.Workspace) *managerTransport {
	return &managerTransport{r: r, w: w}
}

// Send receives a routed frame addressed to the workspace-manager peer and
// dispatches it asynchronously, so the sender's read pump is never blocked
// on service-member execution.
func (m *managerTransport) Send(data []byte, binary bool) error {
	if !binary {
		return nil
	}
	f, err := frame.Decode(data)
	if err != nil {
		return nil
	}
	var env callEnvelope
	if err := json.Unmarshal(f.Payload, &env); err != nil {
		logging.Sugar().Warnw("workspace-manager dropped undecodable call payload", "ws", m.w.ID, "err", err)
		return nil
	}
	go m.dispatch(f, env)
	return nil
}

func (m *managerTransport) OnMessage(func([]byte, bool)) {}
func (m *managerTransport) OnClose(func(int, string))    {}

// Close is a no-op; the manager peer lives as long as its workspace.
func (m *managerTransport) Close(code int, reason string) error { return nil }

// Closed always reports false.
func (m *managerTransport) Closed() bool { return false }

func (m *managerTransport) dispatch(f *frame.Frame, env callEnvelope) {
	from, _ := f.Header.Get(frame.KeyFrom)
	to, _ := f.Header.Get(frame.KeyTo)
	user, _ := f.Header.Get(frame.KeyUser)
	ws, _ := f.Header.Get(frame.KeyWs)

	// A frame without a request id is fire-and-forget: execute, never reply.
	wantReply := env.RequestID != ""

	call := registry.CallContext{Workspace: ws, From: from, To: to, User: user}

	member, ok := m.desc.Member(env.Member)
	if !ok {
		if wantReply {
			err := errs.New(errs.FunctionNotFound, "workspace service has no member %q", env.Member)
			m.reply(from, replyEnvelope{Type: "method_error", RequestID: env.RequestID, Error: err.Error()})
		}
		return
	}

	if member.IsStreaming() {
		ch, err := member.Stream(context.Background(), call, env.Args)
		if err != nil {
			if wantReply {
				m.reply(from, replyEnvelope{Type: "method_error", RequestID: env.RequestID, Error: err.Error()})
			}
			return
		}
		for sv := range ch {
			if !wantReply {
				continue
			}
			if sv.Err != nil {
				m.reply(from, replyEnvelope{Type: "method_stream", RequestID: env.RequestID, Error: sv.Err.Error(), Done: true})
				return
			}
			m.reply(from, replyEnvelope{Type: "method_stream", RequestID: env.RequestID, Result: wireResult(sv.Value), Done: sv.Done})
			if sv.Done {
				return
			}
		}
		if wantReply {
			m.reply(from, replyEnvelope{Type: "method_stream", RequestID: env.RequestID, Done: true})
		}
		return
	}

	result, err := member.Invoke(context.Background(), call, env.Args)
	if !wantReply {
		return
	}
	if err != nil {
		m.reply(from, replyEnvelope{Type: "method_error", RequestID: env.RequestID, Error: err.Error()})
		return
	}
	m.reply(from, replyEnvelope{Type: "method_reply", RequestID: env.RequestID, Result: wireResult(result), Done: true})
}

// reply frames env and delivers it straight to the peer named by `to`.
func (m *managerTransport) reply(to string, env replyEnvelope) {
	body, err := json.Marshal(env)
	if err != nil {
		if env.Type != "method_error" {
			m.reply(to, replyEnvelope{Type: "method_error", RequestID: env.RequestID, Error: "result is not serializable"})
		}
		return
	}

	targetWs, client, ok := splitFQID(to)
	if !ok {
		return
	}

	hdr := frame.Header{}
	hdr.Set(frame.KeyFrom, m.w.ID+"/"+wsservice.ManagerClientID)
	hdr.Set(frame.KeyTo, to)
	hdr.Set(frame.KeyWs, targetWs)
	hdr.Set(frame.KeyUser, "workspace-manager")
	raw, err := (&frame.Frame{Header: hdr, Payload: body}).Encode()
	if err != nil {
		return
	}

	w, ok := m.r.Spaces.Get(targetWs)
	if !ok {
		return
	}
	p, ok := w.Peer(client)
	if !ok {
		logging.Sugar().Debugw("workspace-manager reply recipient gone", "to", to)
		return
	}
	if sendErr := p.Send(raw, true); sendErr != nil {
		logging.Sugar().Debugw("workspace-manager reply delivery failed", "to", to, "err", sendErr)
	}
}

// wireResult converts member results that carry live Callables (service
// descriptors) into plain metadata maps, since function values cannot cross
// the wire; the remote side reconstructs call handles from the member names.
func wireResult(v any) any {
	switch d := v.(type) {
	case *registry.Descriptor:
		return descriptorWire(d)
	case []*registry.Descriptor:
		out := make([]any, 0, len(d))
		for _, item := range d {
			out = append(out, descriptorWire(item))
		}
		return out
	default:
		return v
	}
}

func descriptorWire(d *registry.Descriptor) map[string]any {
	members := make([]string, 0, len(d.Members))
	for name := range d.Members {
		members = append(members, name)
	}
	sort.Strings(members)
	return map[string]any{
		"id":          d.ID,
		"name":        d.Name,
		"description": d.Description,
		"type":        d.Type,
		"service":     d.FQID(),
		"config": map[string]any{
			"visibility":      string(d.Visibility),
			"require_context": d.RequireContext,
			"workspace":       d.Workspace,
		},
		"members": members,
	}
}
