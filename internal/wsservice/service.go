// internal/wsservice/service.go
// Package wsservice implements the built-in workspace service: a synthetic
// service hosted on a pseudo-Peer named "workspace/workspace-manager" and
// present in every workspace, exposing register_service, unregister_service,
// list_services, get_service, generate_token, echo, log/info/warning/error,
// and emit/on/off.
package wsservice

import (
	"context"
	"fmt"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/util"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// ManagerClientID is the fixed client id of the synthetic peer that hosts
// the workspace service in every workspace.
const ManagerClientID = "workspace-manager"

// ServiceID is the id the workspace service registers itself under.
const ServiceID = "default"

// Invoker lets a registered service's members and get_service's returned
// handle actually reach the owning peer. Implemented by the router, which
// knows how to address and correlate a request/reply frame exchange;
// wsservice only depends on this narrow interface to avoid importing the
// router package.
type Invoker interface {
	Invoke(ctx context.Context, call registry.CallContext, to, member string, args []any) (any, error)
	InvokeStream(ctx context.Context, call registry.CallContext, to, member string, args []any) (<-chan registry.StreamValue, error)
}

// Notifier lets emit/on push workspace events to a specific subscribing
// peer out-of-band, again without wsservice depending on the router.
type Notifier interface {
	Notify(peerID, event string, payload any)
}

// Service is the workspace service instance bound to one Workspace.
type Service struct {
	ws       *workspace.Workspace
	wsReg    *workspace.Registry
	authn    *auth.Authenticator
	invoker  Invoker
	notifier Notifier

	subs *subscriptions
}

// New constructs the workspace service for w. extra holds additional
// members to install from the `default_service` configuration key, already
// adapted into Callables by the caller.
func New(w *workspace.Workspace, wsReg *workspace.Registry, authn *auth.Authenticator, invoker Invoker, notifier Notifier, extra map[string]*registry.Callable) *registry.Descriptor {
	s := &Service{ws: w, wsReg: wsReg, authn: authn, invoker: invoker, notifier: notifier, subs: newSubscriptions()}

	members := map[string]*registry.Callable{
		"register_service":   {Kind: registry.Unary, Invoke: s.registerService},
		"unregister_service":  {Kind: registry.Unary, Invoke: s.unregisterService},
		"list_services":      {Kind: registry.Unary, Invoke: s.listServices},
		"get_service":        {Kind: registry.NAry, Invoke: s.getService},
		"generate_token":     {Kind: registry.Unary, Invoke: s.generateToken},
		"echo":               {Kind: registry.Unary, Invoke: s.echo},
		"log":                {Kind: registry.Unary, Invoke: s.logAt("info")},
		"info":               {Kind: registry.Unary, Invoke: s.logAt("info")},
		"warning":            {Kind: registry.Unary, Invoke: s.logAt("warn")},
		"error":              {Kind: registry.Unary, Invoke: s.logAt("error")},
		"emit":               {Kind: registry.NAry, Invoke: s.emit},
		"on":                 {Kind: registry.Unary, Invoke: s.on},
		"off":                {Kind: registry.Unary, Invoke: s.off},
	}
	for name, c := range extra {
		members[name] = c
	}

	d := &registry.Descriptor{
		ID:             ServiceID,
		Name:           "workspace",
		Description:    "built-in registry, auth, and event-bus operations",
		Type:           "generic",
		Visibility:     registry.Protected,
		RequireContext: true,
		Workspace:      w.ID,
		Owner:          w.ID + "/" + ManagerClientID,
		Members:        members,
	}
	d.InstallCamelCaseAliases()
	return d
}

func argAt(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

func (s *Service) registerService(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	desc, specs, err := descriptorFromArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	desc.Members = s.forwardingMembers(call.From, specs)

	identity := s.identityFromContext(call)
	if err := s.ws.Registry.Register(desc, identity, call.From, false); err != nil {
		return nil, err
	}
	if p, ok := s.ws.Peer(peerClientID(call.From)); ok {
		p.TrackService(desc.ID)
	}
	s.ws.Events.Emit("service_registered", map[string]any{"id": desc.FQID()})
	return desc.FQID(), nil
}

// forwardingMembers builds, for every member a remote peer announced in its
// register_service call, a Callable that forwards the invocation to that
// peer as a request frame and correlates the reply. The workspace service
// itself never takes this path: its own members are bound directly to Go
// closures in New.
func (s *Service) forwardingMembers(owner string, specs []memberSpec) map[string]*registry.Callable {
	members := make(map[string]*registry.Callable, len(specs))
	for _, spec := range specs {
		if spec.name == "" {
			continue
		}
		name := spec.name
		if spec.streaming {
			kind := registry.StreamSync
			if spec.async {
				kind = registry.StreamAsync
			}
			members[name] = &registry.Callable{
				Kind: kind,
				Stream: func(ctx context.Context, call registry.CallContext, args []any) (<-chan registry.StreamValue, error) {
					return s.invoker.InvokeStream(ctx, call, owner, name, args)
				},
			}
			continue
		}
		members[name] = &registry.Callable{
			Kind: registry.NAry,
			Invoke: func(ctx context.Context, call registry.CallContext, args []any) (any, error) {
				return s.invoker.Invoke(ctx, call, owner, name, args)
			},
		}
	}
	return members
}

func (s *Service) unregisterService(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	id, _ := argAt(args, 0).(string)
	if err := s.ws.Registry.Unregister(call.From, id); err != nil {
		return nil, err
	}
	if p, ok := s.ws.Peer(peerClientID(call.From)); ok {
		p.UntrackService(id)
	}
	s.ws.Events.Emit("service_unregistered", map[string]any{"id": id})
	return nil, nil
}

func (s *Service) listServices(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	q := queryFromArg(argAt(args, 0))
	identity := s.identityFromContext(call)
	return s.ws.Registry.List(q, identity, call.Workspace), nil
}

func (s *Service) getService(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	idOrQuery, _ := argAt(args, 0).(string)
	mode := registry.ModeDefault
	if opts, ok := argAt(args, 1).(map[string]any); ok {
		if m, ok := opts["mode"].(string); ok && m == string(registry.ModeRandom) {
			mode = registry.ModeRandom
		}
	}
	identity := s.identityFromContext(call)
	target := s.ws
	if ws, _, ok := splitWorkspacePrefix(idOrQuery); ok && ws != call.Workspace {
		if ws == "*" {
			return nil, errs.New(errs.ServiceNotFound, "wildcard lookup across workspaces is not permitted")
		}
		other, ok := s.wsReg.Get(ws)
		if !ok {
			return nil, errs.New(errs.ServiceNotFound, "workspace %q not found", ws)
		}
		target = other
	}

	desc, err := target.Registry.Get(idOrQuery, identity, call.Workspace, mode)
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// splitWorkspacePrefix reports whether idOrQuery is workspace-qualified
// ("workspace/client:service") and, if so, returns the workspace id.
func splitWorkspacePrefix(idOrQuery string) (ws string, rest string, ok bool) {
	for i := 0; i < len(idOrQuery); i++ {
		if idOrQuery[i] == '/' {
			return idOrQuery[:i], idOrQuery[i+1:], true
		}
		if idOrQuery[i] == ':' {
			return "", idOrQuery, false
		}
	}
	return "", idOrQuery, false
}

func (s *Service) generateToken(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	cfg, err := tokenConfigFromArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	identity := s.identityFromContext(call)
	return s.authn.GenerateToken(cfg, identity, call.Workspace)
}

func (s *Service) echo(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	return argAt(args, 0), nil
}

func (s *Service) logAt(level string) func(context.Context, registry.CallContext, []any) (any, error) {
	return func(ctx context.Context, call registry.CallContext, args []any) (any, error) {
		msg := fmt.Sprint(argAt(args, 0))
		sugar := logging.Sugar()
		switch level {
		case "warn":
			sugar.Warnw(msg, "from", call.From, "ws", call.Workspace)
		case "error":
			sugar.Errorw(msg, "from", call.From, "ws", call.Workspace)
		default:
			sugar.Infow(msg, "from", call.From, "ws", call.Workspace)
		}
		return nil, nil
	}
}

func (s *Service) emit(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	event, _ := argAt(args, 0).(string)
	if event == "" {
		return nil, errs.New(errs.MalformedFrame, "emit requires a non-empty event name")
	}
	s.ws.Events.Emit(event, argAt(args, 1))
	return nil, nil
}

func (s *Service) on(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	event, _ := argAt(args, 0).(string)
	if event == "" {
		return nil, errs.New(errs.MalformedFrame, "on requires a non-empty event name")
	}
	subID := util.MustNew()
	ch, off := s.ws.Events.On(event)
	s.subs.add(subID, off)

	peerID := call.From
	go func() {
		for ev := range ch {
			if s.notifier != nil {
				s.notifier.Notify(peerID, ev.Name, ev.Payload)
			}
		}
	}()
	return subID, nil
}

func (s *Service) off(ctx context.Context, call registry.CallContext, args []any) (any, error) {
	subID, _ := argAt(args, 0).(string)
	s.subs.remove(subID)
	return nil, nil
}

// identityFromContext resolves the caller's full Identity (roles and scopes
// included) by looking up its live Peer. CallContext itself only carries the
// bare user id, since it is router-injected and must stay minimal; the Peer
// is the source of truth for authorization.
func (s *Service) identityFromContext(call registry.CallContext) *auth.Identity {
	if p, ok := s.ws.Peer(peerClientID(call.From)); ok && p.Identity != nil {
		return p.Identity
	}
	return &auth.Identity{UserID: call.User}
}

func peerClientID(fqid string) string {
	for i := len(fqid) - 1; i >= 0; i-- {
		if fqid[i] == '/' {
			return fqid[i+1:]
		}
	}
	return fqid
}
