// internal/router/router.go
// Package router implements the address-based frame dispatcher, the
// connection handshake, and the synthetic Invoker/Notifier that let the
// workspace service (internal/wsservice) forward calls to and push events at
// arbitrary Peers without importing this package.
package router

import (
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/otelbridge"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/wsservice"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// DefaultMethodTimeout is the default duration a forwarded call waits for a
// reply before failing with RequestTimeout; the `method_timeout_s` config
// key overrides it.
const DefaultMethodTimeout = 60 * time.Second

// ClusterForwarder is the narrow contract the optional cluster coordinator
// (4.I) must satisfy for the router to hand off cross-router traffic. nil
// means the router runs single-node.
type ClusterForwarder interface {
	// Locate returns the router id owning ws/clientID, if known.
	Locate(ws, clientID string) (routerID string, ok bool)
	// Forward hands raw frame bytes to the router owning ws/clientID.
	Forward(ws, clientID string, raw []byte) error
}

// Config parameterises a Router.
type Config struct {
	ManagerID     string        // this router instance's stable id (`server_id` config key)
	HyphaVersion  string        // version string echoed in connection_info
	MethodTimeout time.Duration // default DefaultMethodTimeout
}

// Router owns workspace resolution, peer dispatch, and the synthetic
// workspace service installed into every workspace. All state hangs off this
// one value; there are no package-level registries.
type Router struct {
	cfg     Config
	Spaces  *workspace.Registry
	Authn   *auth.Authenticator
	Cluster ClusterForwarder

	extraMembers map[string]*registry.Callable // from `default_service` config

	Tracer *otelbridge.Bridge
}

// New constructs a Router. spaces and authn are required; cluster may be
// nil for single-node operation.
func New(cfg Config, spaces *workspace.Registry, authn *auth.Authenticator, cluster ClusterForwarder, extraMembers map[string]*registry.Callable) *Router {
	if cfg.MethodTimeout <= 0 {
		cfg.MethodTimeout = DefaultMethodTimeout
	}
	if cfg.ManagerID == "" {
		cfg.ManagerID = "hyphagw"
	}
	return &Router{
		cfg:          cfg,
		Spaces:       spaces,
		Authn:        authn,
		Cluster:      cluster,
		extraMembers: extraMembers,
		Tracer:       otelbridge.New(false),
	}
}

// ensureWorkspaceService installs the built-in workspace service and its
// supporting pseudo-peers into w exactly once. The once-guard lives on the
// Workspace so a workspace destroyed and recreated under the same id is
// bootstrapped anew.
func (r *Router) ensureWorkspaceService(w *workspace.Workspace) {
	if !w.TryMarkBootstrapped() {
		return
	}

	correlator := NewCorrelator()
	manager := newManagerTransport(r, w)
	w.Dispatch(func() {
		// The descriptor must be bound to the manager transport before the
		// manager peer becomes reachable through the peer table.
		desc := wsservice.New(w, r.Spaces, r.Authn, r, r, r.extraMembers)
		manager.desc = desc

		gatewayPeer := workspace.NewPeer(w.ID, CorrelatorClientID, &auth.Identity{UserID: "http-gateway", Roles: []string{"admin"}}, correlator)
		gatewayPeer.IsManager = true
		_ = w.AddPeer(gatewayPeer)

		managerPeer := workspace.NewPeer(w.ID, wsservice.ManagerClientID, &auth.Identity{UserID: "workspace-manager", Roles: []string{"admin"}}, manager)
		managerPeer.IsManager = true
		_ = w.AddPeer(managerPeer)

		w.Registry.RegisterBuiltin(desc, managerPeer.ID)
	})
}

// BootstrapPrecreated installs the workspace service into the pre-created
// `default` and `public` workspaces so HTTP-only callers can reach it before
// any WebSocket peer has connected.
func (r *Router) BootstrapPrecreated() {
	for _, id := range []string{"default", "public"} {
		if w, ok := r.Spaces.Get(id); ok {
			r.ensureWorkspaceService(w)
		}
	}
}
