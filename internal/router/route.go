// internal/router/route.go
// Per-frame dispatch: decode the header, normalize the addressing, stamp the
// sender's verified identity, and deliver locally or hand off to the
// cluster.
package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/frame"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/otelbridge"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// Route dispatches one inbound binary frame already known to have arrived
// from sender, which is authenticated as sender.ID.
func (r *Router) Route(sender *workspace.Peer, raw []byte) {
	if !frame.IsRoutable(raw) {
		logging.Sugar().Warnw("dropping non-routable frame", "from", sender.ID)
		return
	}
	f, err := frame.Decode(raw)
	if err != nil {
		logging.Sugar().Warnw("dropping malformed frame", "from", sender.ID, "err", err)
		return
	}

	// The sender can never forge its own identity.
	f.Header.Set(frame.KeyFrom, sender.ID)

	rawTo, _ := f.Header.Get(frame.KeyTo)
	to, err := r.normalizeRecipient(sender, rawTo)
	if err != nil {
		r.replyError(sender, f, err)
		metrics.FramesDroppedTotal.WithLabelValues(string(errKind(err))).Inc()
		return
	}
	f.Header.Set(frame.KeyTo, to)

	recipientWs, recipientClient, ok := splitFQID(to)
	if !ok {
		r.replyError(sender, f, errs.New(errs.RecipientUnknown, "malformed recipient %q", to))
		return
	}

	// Stamp ws/user; the sender's resolved identity cannot be forged.
	f.Header.Set(frame.KeyWs, recipientWs)
	f.Header.Set(frame.KeyUser, sender.Identity.UserID)

	traceHex, _ := f.Header.Get(otelbridge.TraceHeaderKey)
	_, span := r.Tracer.StartRoute(context.Background(), sender.ID, to, traceHex)
	defer span.End()

	out, err := f.Encode()
	if err != nil {
		logging.Sugar().Warnw("failed to re-encode frame", "from", sender.ID, "err", err)
		return
	}

	if w, ok := r.Spaces.Get(recipientWs); ok {
		if p, ok := w.Peer(recipientClient); ok {
			if sendErr := p.Send(out, true); sendErr != nil {
				r.handleSendFailure(sender, f, p, sendErr)
				return
			}
			metrics.FramesRoutedTotal.WithLabelValues("local").Inc()
			return
		}
	}

	if r.Cluster != nil {
		if _, ok := r.Cluster.Locate(recipientWs, recipientClient); ok {
			if fwdErr := r.Cluster.Forward(recipientWs, recipientClient, out); fwdErr == nil {
				metrics.FramesRoutedTotal.WithLabelValues("cluster").Inc()
				return
			}
		}
	}

	logging.Sugar().Warnw("recipient unknown", "to", to, "from", sender.ID)
	r.replyError(sender, f, errs.New(errs.RecipientUnknown, "no such recipient %q", to))
	metrics.FramesDroppedTotal.WithLabelValues(string(errs.RecipientUnknown)).Inc()
}

// normalizeRecipient rewrites shorthand addressing. A bare client id is
// assumed to live in the sender's own workspace. A fully-qualified id
// naming a different workspace is only honored from the router's own
// forwarding pseudo-peer, whose every cross-workspace send already passed
// the service registry's visibility check; any other peer attempting a
// cross-workspace address is rejected.
func (r *Router) normalizeRecipient(sender *workspace.Peer, to string) (string, error) {
	if to == "" {
		return "", errs.New(errs.RecipientUnknown, "frame carries no recipient")
	}
	if !strings.Contains(to, "/") {
		return sender.Workspace + "/" + to, nil
	}
	ws, _, ok := splitFQID(to)
	if !ok {
		return "", errs.New(errs.MalformedFrame, "malformed recipient %q", to)
	}
	if ws == sender.Workspace || sender.ClientID == CorrelatorClientID {
		return to, nil
	}
	return "", errs.New(errs.RecipientUnknown, "cross-workspace addressing is not permitted for this sender")
}

func splitFQID(id string) (ws, client string, ok bool) {
	i := strings.IndexByte(id, '/')
	if i < 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

func errKind(err error) errs.Kind {
	if k, ok := errs.KindOf(err); ok {
		return k
	}
	return errs.ServiceError
}

// replyError synthesizes an error reply on sender's own transport, carrying
// the failing request's id when it can be recovered from the router's own
// call envelope.
func (r *Router) replyError(sender *workspace.Peer, original *frame.Frame, cause error) {
	var reqID string
	var env callEnvelope
	if json.Unmarshal(original.Payload, &env) == nil {
		reqID = env.RequestID
	}

	body, err := json.Marshal(replyEnvelope{Type: "method_error", RequestID: reqID, Error: cause.Error()})
	if err != nil {
		return
	}

	hdr := frame.Header{}
	hdr.Set(frame.KeyFrom, sender.Workspace+"/"+CorrelatorClientID)
	hdr.Set(frame.KeyTo, sender.ID)
	hdr.Set(frame.KeyWs, sender.Workspace)
	hdr.Set(frame.KeyUser, "system")

	errFrame := &frame.Frame{Header: hdr, Payload: body}
	raw, err := errFrame.Encode()
	if err != nil {
		return
	}
	if sendErr := sender.Send(raw, true); sendErr != nil {
		logging.Sugar().Debugw("failed to deliver error reply", "to", sender.ID, "err", sendErr)
	}
}

// handleSendFailure reacts to a failed delivery to an already-located local
// recipient.
func (r *Router) handleSendFailure(sender *workspace.Peer, f *frame.Frame, recipient *workspace.Peer, sendErr error) {
	switch sendErr {
	case transport.ErrBackpressure:
		r.replyError(sender, f, errs.New(errs.BackpressureDrop, "recipient %q outbound queue is full", recipient.ID))
		metrics.FramesDroppedTotal.WithLabelValues(string(errs.BackpressureDrop)).Inc()
	case transport.ErrTransportClosed:
		logging.Sugar().Debugw("recipient transport closed", "to", recipient.ID)
		r.Spaces.DisconnectPeer(recipient)
		r.replyError(sender, f, errs.New(errs.TransportClosed, "recipient %q is no longer connected", recipient.ID))
	default:
		logging.Sugar().Debugw("send to recipient failed", "to", recipient.ID, "err", sendErr)
	}
}
