// internal/workspace/peer.go
// Peer is one authenticated, connected entity. It is either a real WebSocket
// connection, an in-process pseudo-peer, or the synthetic workspace-manager
// peer that hosts the built-in workspace service.
package workspace

import (
	"sync"
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/transport"
)

// Peer is a connected, authenticated entity identified as "workspace/client".
type Peer struct {
	ID        string // fully-qualified "workspace/client"
	Workspace string
	ClientID  string
	Identity  *auth.Identity
	Transport transport.Transport
	CreatedAt time.Time

	// IsManager marks the synthetic workspace-manager peer, which is excluded
	// from the "last peer disconnects" workspace-destruction count.
	IsManager bool

	mu       sync.Mutex
	services map[string]struct{} // service ids this peer currently owns
}

// NewPeer constructs a Peer bound to transport t.
func NewPeer(workspaceID, clientID string, identity *auth.Identity, t transport.Transport) *Peer {
	return &Peer{
		ID:        workspaceID + "/" + clientID,
		Workspace: workspaceID,
		ClientID:  clientID,
		Identity:  identity,
		Transport: t,
		CreatedAt: time.Now(),
		services:  make(map[string]struct{}),
	}
}

// Send forwards data to the peer's transport.
func (p *Peer) Send(data []byte, binary bool) error {
	return p.Transport.Send(data, binary)
}

// Close closes the peer's transport.
func (p *Peer) Close(code int, reason string) error {
	return p.Transport.Close(code, reason)
}

// TrackService records that the peer owns serviceID, so it can be cleaned up
// from the registry on disconnect.
func (p *Peer) TrackService(serviceID string) {
	p.mu.Lock()
	p.services[serviceID] = struct{}{}
	p.mu.Unlock()
}

// UntrackService removes serviceID from the peer's owned set.
func (p *Peer) UntrackService(serviceID string) {
	p.mu.Lock()
	delete(p.services, serviceID)
	p.mu.Unlock()
}

// OwnedServices returns the ids of services currently owned by the peer.
func (p *Peer) OwnedServices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.services))
	for id := range p.services {
		out = append(out, id)
	}
	return out
}
