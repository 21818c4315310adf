// internal/registry/registry.go
// Per-workspace service registry. Every operation takes the registry's own
// mutex, so registrations and lookups within one workspace are serialized
// whether they come from the workspace service, the workspace's dispatcher
// goroutine (see internal/workspace), or the HTTP proxy.
package registry

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/metrics"
)

// Mode selects how Get resolves multiple matching candidates.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeRandom  Mode = "random"
)

// Registry holds service descriptors registered by peers of one workspace.
type Registry struct {
	workspace  string
	membership func(caller *auth.Identity) bool
	mu         sync.RWMutex
	byKey      map[string]*Descriptor // key: Owner + ":" + ID, globally unique within this workspace
}

// New returns an empty registry scoped to workspace.
func New(workspace string) *Registry {
	return &Registry{workspace: workspace, byKey: make(map[string]*Descriptor)}
}

// SetMembership installs the live-membership predicate consulted for
// protected-service visibility. The owning Workspace wires its own IsMember
// in here at construction; the hook signature keeps this package free of a
// workspace import. Left nil, same-workspace addressing alone grants
// visibility. Call before the registry starts serving lookups.
func (r *Registry) SetMembership(fn func(caller *auth.Identity) bool) {
	r.membership = fn
}

func key(owner, id string) string { return owner + ":" + id }

// Register validates and stores desc, owned by ownerPeer (fully-qualified
// "workspace/client"). Overwrite controls whether re-registering the same
// (owner, id) pair is permitted.
func (r *Registry) Register(desc *Descriptor, owner *auth.Identity, ownerPeer string, overwrite bool) error {
	if desc.ID == "" || strings.ContainsAny(desc.ID, ":/") {
		return errs.New(errs.ServiceIDInUse, "service id %q is empty or contains reserved characters", desc.ID)
	}
	if r.workspace == "default" || r.workspace == "public" {
		if owner == nil || !owner.IsAdmin() {
			return errs.New(errs.WorkspaceForbidden, "registering a service in %q requires the admin role", r.workspace)
		}
	}

	desc.Owner = ownerPeer
	desc.Workspace = r.workspace
	if r.workspace == "public" {
		desc.Visibility = Public
	} else if desc.Visibility == "" {
		desc.Visibility = Protected
	}
	desc.InstallCamelCaseAliases()

	k := key(ownerPeer, desc.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.byKey[k]
	if exists && !overwrite {
		return errs.New(errs.ServiceIDInUse, "service %q is already registered by %s", desc.ID, ownerPeer)
	}
	r.byKey[k] = desc
	if !exists {
		metrics.RegisteredServices.Inc()
	}
	return nil
}

// RegisterBuiltin installs desc under ownerPeer without the admin gate or
// id-validation Register applies to caller-initiated registrations. It
// exists solely for the router to bootstrap the synthetic workspace service
// into a freshly-created workspace.
func (r *Registry) RegisterBuiltin(desc *Descriptor, ownerPeer string) {
	desc.Owner = ownerPeer
	desc.Workspace = r.workspace
	if desc.Visibility == "" {
		desc.Visibility = Protected
	}
	desc.InstallCamelCaseAliases()

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(ownerPeer, desc.ID)
	if _, exists := r.byKey[k]; !exists {
		metrics.RegisteredServices.Inc()
	}
	r.byKey[k] = desc
}

// Unregister removes the service id owned by ownerPeer. Only the owner may
// remove its own service.
func (r *Registry) Unregister(ownerPeer, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(ownerPeer, id)
	if _, ok := r.byKey[k]; !ok {
		return errs.New(errs.ServiceNotFound, "service %q not found for %s", id, ownerPeer)
	}
	delete(r.byKey, k)
	metrics.RegisteredServices.Dec()
	return nil
}

// RemoveAllOwnedBy drops every service owned by ownerPeer, used when a peer
// disconnects.
func (r *Registry) RemoveAllOwnedBy(ownerPeer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := ownerPeer + ":"
	for k := range r.byKey {
		if strings.HasPrefix(k, prefix) {
			delete(r.byKey, k)
			metrics.RegisteredServices.Dec()
		}
	}
}

// List returns descriptors visible to caller that match q.
func (r *Registry) List(q Query, caller *auth.Identity, callerWorkspace string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.byKey))
	for _, d := range r.byKey {
		if !r.visibleTo(d, caller, callerWorkspace) {
			continue
		}
		if !q.Matches(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Get resolves idOrQuery, which may be bare ("service"), "client:service", or
// "workspace/client:service". When multiple matches exist, mode picks among
// them.
func (r *Registry) Get(idOrQuery string, caller *auth.Identity, callerWorkspace string, mode Mode) (*Descriptor, error) {
	candidates := r.resolveCandidates(idOrQuery)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var visible []*Descriptor
	for _, k := range candidates {
		d, ok := r.byKey[k]
		if !ok || !r.visibleTo(d, caller, callerWorkspace) {
			continue
		}
		visible = append(visible, d)
	}
	if len(visible) == 0 {
		return nil, errs.New(errs.ServiceNotFound, "no visible service matches %q", idOrQuery)
	}
	if mode == ModeRandom {
		return visible[rand.Intn(len(visible))], nil
	}
	return visible[0], nil
}

// resolveCandidates expands idOrQuery into the set of composite registry
// keys it could refer to. A bare id matches any owner in this workspace; a
// "client:service" form pins the owner's client id; a fully-qualified
// "workspace/client:service" form is only considered if it names this
// registry's workspace (cross-workspace wildcard lookups are rejected by the
// workspace service's get_service before reaching here).
func (r *Registry) resolveCandidates(idOrQuery string) []string {
	if ws, rest, ok := strings.Cut(idOrQuery, "/"); ok {
		if ws != r.workspace {
			return nil
		}
		idOrQuery = rest
	}

	client, svc, hasClient := strings.Cut(idOrQuery, ":")
	if !hasClient {
		svc = idOrQuery
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for k := range r.byKey {
		owner, id, _ := strings.Cut(k, ":")
		if id != svc {
			continue
		}
		if hasClient {
			_, ownerClient, _ := strings.Cut(owner, "/")
			if ownerClient != client {
				continue
			}
		}
		keys = append(keys, k)
	}
	return keys
}

// visibleTo applies the visibility rule: public services are visible to
// everyone; a protected service requires same-workspace addressing and,
// outside the open `default` workspace, live membership when the owning
// workspace installed a membership hook.
func (r *Registry) visibleTo(d *Descriptor, caller *auth.Identity, callerWorkspace string) bool {
	if d.Visibility == Public {
		return true
	}
	if callerWorkspace != d.Workspace {
		return false
	}
	if d.Workspace == "default" {
		return true
	}
	if r.membership == nil {
		return true
	}
	return r.membership(caller)
}

// Len reports how many descriptors are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
