// internal/controlplane/server.go
// Package controlplane implements hyphapb.ControlService (internal/proto):
// an optional gRPC surface, separate from the WebSocket data plane, that
// lets an operator tool stream router-wide connect/disconnect/register
// events and issue one-off debug invocations.
package controlplane

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Voskan/hyphagw/internal/errs"
	hyphapb "github.com/Voskan/hyphagw/internal/proto"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// controlPeerClientID is the identity the control plane impersonates when
// forwarding a debug Invoke call, mirroring the HTTP proxy's own pseudo-peer
// (internal/httpgw's "http-server") but scoped to this separate surface.
const controlPeerClientID = "control-plane"

// eventNames are the workspace events mirrored onto every StreamEvents
// subscriber.
var eventNames = []string{"client_connected", "client_disconnected", "service_registered", "service_unregistered"}

// pollInterval bounds how long a newly created workspace can exist before a
// live StreamEvents call notices and subscribes to it.
const pollInterval = 2 * time.Second

// Invoker is the narrow slice of router.Router the control plane needs to
// proxy a debug call, kept separate from wsservice.Invoker's signature so
// this package never needs to import the router package's Config/handshake
// machinery just to make a call.
type Invoker interface {
	Invoke(ctx context.Context, call registry.CallContext, to, member string, args []any) (any, error)
}

// Server implements hyphapb.ControlServiceServer.
type Server struct {
	hyphapb.UnimplementedControlServiceServer

	Spaces *workspace.Registry
	Caller Invoker
}

// New returns a Server ready to register on a grpc.Server.
func New(spaces *workspace.Registry, caller Invoker) *Server {
	return &Server{Spaces: spaces, Caller: caller}
}

// StreamEvents mirrors connect/disconnect/register-service events from every
// current and subsequently created workspace until the caller disconnects.
func (s *Server) StreamEvents(_ *emptypb.Empty, stream hyphapb.ControlService_StreamEventsServer) error {
	ctx := stream.Context()

	merged := make(chan workspace.Event, 64)
	subscribed := make(map[string]bool)
	var offs []func()
	defer func() {
		for _, off := range offs {
			off()
		}
	}()

	attach := func(w *workspace.Workspace) {
		if subscribed[w.ID] {
			return
		}
		subscribed[w.ID] = true
		for _, name := range eventNames {
			ch, off := w.Events.On(name)
			offs = append(offs, off)
			wsID := w.ID
			go func(name string, ch chan workspace.Event) {
				for ev := range ch {
					payload, _ := ev.Payload.(map[string]any)
					merged <- workspace.Event{Name: name, Payload: map[string]any{
						"workspace": wsID,
						"event":     name,
						"detail":    payload,
					}}
				}
			}(name, ch)
		}
	}

	for _, w := range s.Spaces.All() {
		attach(w)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, w := range s.Spaces.All() {
				attach(w)
			}
		case ev := <-merged:
			detail, _ := ev.Payload.(map[string]any)
			st, err := structpb.NewStruct(detail)
			if err != nil {
				continue
			}
			if err := stream.Send(st); err != nil {
				return err
			}
		}
	}
}

// Invoke proxies one call to a workspace or registered service, primarily
// for CLI debug tooling that would otherwise need a full WebSocket peer.
func (s *Server) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m := in.AsMap()
	ws, _ := m["workspace"].(string)
	to, _ := m["to"].(string)
	member, _ := m["member"].(string)
	if ws == "" || to == "" || member == "" {
		return nil, status.Error(codes.InvalidArgument, "workspace, to, and member are required")
	}

	var args []any
	if raw, ok := m["args"].([]any); ok {
		args = raw
	}

	call := registry.CallContext{
		Workspace: ws,
		From:      ws + "/" + controlPeerClientID,
		To:        to,
		User:      "control-plane",
	}

	result, err := s.Caller.Invoke(ctx, call, to, member, args)
	if err != nil {
		return nil, grpcStatusFromErr(err)
	}

	resultMap, ok := result.(map[string]any)
	if !ok {
		resultMap = map[string]any{"result": result}
	}
	out, err := structpb.NewStruct(resultMap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "non-encodable result: %v", err)
	}
	return out, nil
}

func grpcStatusFromErr(err error) error {
	kind, ok := errs.KindOf(err)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	switch kind {
	case errs.ServiceNotFound, errs.FunctionNotFound, errs.RecipientUnknown:
		return status.Error(codes.NotFound, err.Error())
	case errs.InvalidToken, errs.ExpiredToken, errs.WorkspaceForbidden, errs.InsufficientScope:
		return status.Error(codes.PermissionDenied, err.Error())
	case errs.MalformedFrame:
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.RequestTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
