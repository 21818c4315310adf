// internal/workspace/workspace.go
// Workspace is a naming and access-control domain for peers and services.
// Peer-table changes made through Dispatch run on a single dispatcher
// goroutine. The service registry serializes its own operations under a
// mutex, so concurrent callers never interleave registry operations within
// one workspace either.
package workspace

import (
	"sync"
	"sync/atomic"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/registry"
)

// dispatchQueueDepth bounds how many pending mutations may queue for a
// workspace's dispatcher goroutine before Dispatch starts blocking callers.
const dispatchQueueDepth = 128

// Workspace holds one workspace's peers, service registry, and event bus.
type Workspace struct {
	ID         string
	Persistent bool           // default/public/explicitly-requested workspaces never auto-destroy
	Owner      *auth.Identity // identity carried over from the token that first created it

	Registry *registry.Registry
	Events   *EventBus

	peersMu sync.RWMutex
	peers   map[string]*Peer // clientID -> Peer

	bootstrapped atomic.Bool

	cmdCh chan func()
	done  chan struct{}
}

// New constructs a Workspace and starts its dispatcher goroutine.
func New(id string, persistent bool, owner *auth.Identity) *Workspace {
	w := &Workspace{
		ID:         id,
		Persistent: persistent,
		Owner:      owner,
		Registry:   registry.New(id),
		Events:     NewEventBus(),
		peers:      make(map[string]*Peer),
		cmdCh:      make(chan func(), dispatchQueueDepth),
		done:       make(chan struct{}),
	}
	w.Registry.SetMembership(w.IsMember)
	go w.run()
	return w
}

// run is the workspace's dispatcher goroutine: every function passed to
// Dispatch runs here, one at a time.
func (w *Workspace) run() {
	for {
		select {
		case fn := <-w.cmdCh:
			fn()
		case <-w.done:
			return
		}
	}
}

// Dispatch runs fn on the dispatcher goroutine and blocks until it has
// completed, giving callers synchronous-looking but fully serialized access.
func (w *Workspace) Dispatch(fn func()) {
	doneCh := make(chan struct{})
	w.cmdCh <- func() {
		defer close(doneCh)
		fn()
	}
	<-doneCh
}

// Stop terminates the dispatcher goroutine. Call once, after the workspace
// has been removed from its owning Registry.
func (w *Workspace) Stop() {
	close(w.done)
}

// TryMarkBootstrapped flips the workspace's bootstrapped flag, reporting true
// exactly once. The router uses it to install the built-in workspace service
// into each Workspace a single time; because the flag lives on the Workspace
// itself, a workspace destroyed and later recreated under the same id is
// bootstrapped again.
func (w *Workspace) TryMarkBootstrapped() bool {
	return w.bootstrapped.CompareAndSwap(false, true)
}

// AddPeer registers p under its client id, refusing a collision. Must be
// called from within Dispatch.
func (w *Workspace) AddPeer(p *Peer) error {
	w.peersMu.Lock()
	defer w.peersMu.Unlock()
	if _, exists := w.peers[p.ClientID]; exists {
		return errs.New(errs.ClientIDInUse, "client id %q already connected in workspace %q", p.ClientID, w.ID)
	}
	w.peers[p.ClientID] = p
	return nil
}

// RemovePeer drops the peer with clientID, if present. Must be called from
// within Dispatch.
func (w *Workspace) RemovePeer(clientID string) {
	w.peersMu.Lock()
	delete(w.peers, clientID)
	w.peersMu.Unlock()
}

// Peer looks up a member peer by its client id.
func (w *Workspace) Peer(clientID string) (*Peer, bool) {
	w.peersMu.RLock()
	defer w.peersMu.RUnlock()
	p, ok := w.peers[clientID]
	return p, ok
}

// Peers returns a snapshot of all member peers.
func (w *Workspace) Peers() []*Peer {
	w.peersMu.RLock()
	defer w.peersMu.RUnlock()
	out := make([]*Peer, 0, len(w.peers))
	for _, p := range w.peers {
		out = append(out, p)
	}
	return out
}

// NonManagerPeerCount reports how many non-manager peers are currently
// connected, used to decide whether the workspace should be destroyed.
func (w *Workspace) NonManagerPeerCount() int {
	w.peersMu.RLock()
	defer w.peersMu.RUnlock()
	n := 0
	for _, p := range w.peers {
		if !p.IsManager {
			n++
		}
	}
	return n
}

// IsMember reports whether identity already owns a connected peer in this
// workspace. It is installed as the Registry's membership hook in New, so
// protected-service visibility tracks live connections rather than just the
// caller's claimed workspace.
func (w *Workspace) IsMember(identity *auth.Identity) bool {
	if identity == nil {
		return false
	}
	w.peersMu.RLock()
	defer w.peersMu.RUnlock()
	for _, p := range w.peers {
		if p.Identity != nil && p.Identity.UserID == identity.UserID {
			return true
		}
	}
	return false
}
