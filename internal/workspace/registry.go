// internal/workspace/registry.go
// Registry maps workspace-id to Workspace and applies the handshake-time
// workspace-resolution and client-id assignment rules. It is an explicit,
// passed-by-reference value rather than a process-wide map, so tests
// construct a fresh one for isolation.
package workspace

import (
	"context"
	"sync"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/util"
)

// PeerRegistrar mirrors local peer connect/disconnect into an external
// coordination store so sibling routers can locate this peer. Satisfied by
// *cluster.Coordinator; left unset the registry runs single-node and never
// touches a store.
type PeerRegistrar interface {
	RegisterPeer(ctx context.Context, ws, clientID string) error
	UnregisterPeer(ctx context.Context, ws, clientID string) error
}

// Registry owns every Workspace known to this router instance.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	clusterMu sync.RWMutex
	cluster   PeerRegistrar
}

// NewRegistry returns a Registry pre-seeded with the always-present `default`
// and `public` workspaces.
func NewRegistry() *Registry {
	r := &Registry{workspaces: make(map[string]*Workspace)}
	r.workspaces["default"] = New("default", true, nil)
	r.workspaces["public"] = New("public", true, nil)
	metrics.ActiveWorkspaces.Add(2)
	return r
}

// SetPeerRegistrar wires a cluster coordinator into the registry so every
// future ConnectPeer/DisconnectPeer mirrors into the coordination store.
// Passing nil reverts to single-node behavior.
func (r *Registry) SetPeerRegistrar(pr PeerRegistrar) {
	r.clusterMu.Lock()
	r.cluster = pr
	r.clusterMu.Unlock()
}

func (r *Registry) peerRegistrar() PeerRegistrar {
	r.clusterMu.RLock()
	defer r.clusterMu.RUnlock()
	return r.cluster
}

// Get returns the workspace named id, if it exists.
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[id]
	return w, ok
}

// All returns a snapshot of every workspace.
func (r *Registry) All() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		out = append(out, w)
	}
	return out
}

// Resolve picks the workspace a newly-handshaking peer lands in. The rules
// apply in order: an explicitly requested workspace (if allowed), the
// anonymous caller's own workspace, an admin's `default` fallback, and
// otherwise rejection.
func (r *Registry) Resolve(identity *auth.Identity, requested string) (*Workspace, error) {
	if requested != "" {
		if !r.allowed(identity, requested) {
			return nil, errs.New(errs.WorkspaceForbidden, "workspace %q is not accessible to this caller", requested)
		}
		// Explicitly requesting a workspace by name is treated as a durable
		// intent to keep it around; only the implicit anonymous fallback
		// below is ephemeral.
		return r.getOrCreate(requested, identity, true), nil
	}
	if identity.IsAnonymous {
		return r.getOrCreate(identity.UserID, identity, false), nil
	}
	if identity.IsAdmin() {
		return r.getOrCreate("default", identity, true), nil
	}
	return nil, errs.New(errs.WorkspaceRequired, "no workspace specified and caller has no implicit default")
}

// allowed reports whether identity may request workspaceID explicitly.
// `default`/`public` are always reachable; admins may request any id; a
// token that itself names the workspace vouches for membership there; any
// other caller may only request the workspace that shares their own user id
// (the same workspace anonymous users fall back to implicitly).
func (r *Registry) allowed(identity *auth.Identity, workspaceID string) bool {
	switch workspaceID {
	case "default", "public":
		return true
	}
	if identity == nil {
		return false
	}
	if identity.IsAdmin() {
		return true
	}
	if identity.Workspace == workspaceID {
		return true
	}
	return identity.UserID == workspaceID
}

func (r *Registry) getOrCreate(id string, owner *auth.Identity, persistent bool) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workspaces[id]; ok {
		return w
	}
	w := New(id, persistent, owner)
	r.workspaces[id] = w
	metrics.ActiveWorkspaces.Inc()
	return w
}

// ConnectPeer resolves the target workspace, assigns/validates the client
// id, and registers a new Peer on transport t.
func (r *Registry) ConnectPeer(identity *auth.Identity, requestedWorkspace, requestedClientID string, t transport.Transport) (*Peer, *Workspace, error) {
	w, err := r.Resolve(identity, requestedWorkspace)
	if err != nil {
		return nil, nil, err
	}

	clientID := requestedClientID
	if clientID == "" {
		clientID = util.MustNew()
	}

	p := NewPeer(w.ID, clientID, identity, t)

	var addErr error
	w.Dispatch(func() {
		addErr = w.AddPeer(p)
		if addErr == nil {
			w.Events.Emit("client_connected", map[string]any{"id": p.ID})
		}
	})
	if addErr != nil {
		return nil, nil, addErr
	}

	if pr := r.peerRegistrar(); pr != nil {
		if err := pr.RegisterPeer(context.Background(), w.ID, p.ClientID); err != nil {
			logging.Sugar().Warnw("cluster peer registration failed", "ws", w.ID, "client", p.ClientID, "err", err)
		}
	}
	return p, w, nil
}

// DisconnectPeer removes p from its workspace, and destroys the workspace if
// it was the last non-manager peer and the workspace is not persistent.
func (r *Registry) DisconnectPeer(p *Peer) {
	w, ok := r.Get(p.Workspace)
	if !ok {
		return
	}

	w.Dispatch(func() {
		w.RemovePeer(p.ClientID)
		w.Registry.RemoveAllOwnedBy(p.ID)
		w.Events.Emit("client_disconnected", map[string]any{"id": p.ID})
	})

	if pr := r.peerRegistrar(); pr != nil {
		if err := pr.UnregisterPeer(context.Background(), w.ID, p.ClientID); err != nil {
			logging.Sugar().Warnw("cluster peer unregistration failed", "ws", w.ID, "client", p.ClientID, "err", err)
		}
	}

	if w.Persistent {
		return
	}
	if w.NonManagerPeerCount() == 0 {
		r.Destroy(w.ID)
	}
}

// Destroy removes and stops the workspace named id, if present.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	w, ok := r.workspaces[id]
	if ok {
		delete(r.workspaces, id)
	}
	r.mu.Unlock()
	if ok {
		w.Stop()
		metrics.ActiveWorkspaces.Dec()
	}
}
