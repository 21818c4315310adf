package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/transport"
)

func newTestTransport(t *testing.T) *transport.Inproc {
	t.Helper()
	return transport.NewInproc(8)
}

func TestDefaultAndPublicWorkspacesPreCreated(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("default"); !ok {
		t.Fatal("expected 'default' workspace to be pre-created")
	}
	if _, ok := r.Get("public"); !ok {
		t.Fatal("expected 'public' workspace to be pre-created")
	}
}

func TestResolveAnonymousFallsBackToOwnWorkspace(t *testing.T) {
	r := NewRegistry()
	anon := &auth.Identity{UserID: "anon-123", Roles: []string{"anonymous"}, IsAnonymous: true}

	w, err := r.Resolve(anon, "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if w.ID != "anon-123" {
		t.Errorf("expected workspace 'anon-123', got %q", w.ID)
	}
	if w.Persistent {
		t.Error("expected anonymous fallback workspace to be non-persistent")
	}
}

func TestResolveAdminFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}

	w, err := r.Resolve(admin, "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if w.ID != "default" {
		t.Errorf("expected workspace 'default', got %q", w.ID)
	}
}

func TestResolveNoWorkspaceNonAdminIsRejected(t *testing.T) {
	r := NewRegistry()
	user := &auth.Identity{UserID: "bob"}

	_, err := r.Resolve(user, "")
	if err == nil {
		t.Fatal("expected WorkspaceRequired error")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.WorkspaceRequired {
		t.Errorf("expected WorkspaceRequired, got %v", err)
	}
}

func TestResolveTokenGrantedWorkspaceIsAllowed(t *testing.T) {
	r := NewRegistry()
	user := &auth.Identity{UserID: "alice", Workspace: "ws-1"}

	w, err := r.Resolve(user, "ws-1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if w.ID != "ws-1" {
		t.Errorf("expected workspace 'ws-1', got %q", w.ID)
	}

	if _, err := r.Resolve(user, "ws-2"); err == nil {
		t.Error("expected a workspace the token does not grant to stay forbidden")
	}
}

func TestResolveProtectedWorkspaceRejectsStranger(t *testing.T) {
	r := NewRegistry()
	user := &auth.Identity{UserID: "bob"}

	_, err := r.Resolve(user, "someone-elses-workspace")
	if err == nil {
		t.Fatal("expected WorkspaceForbidden error")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.WorkspaceForbidden {
		t.Errorf("expected WorkspaceForbidden, got %v", err)
	}
}

func TestConnectPeerClientIDCollision(t *testing.T) {
	r := NewRegistry()
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}

	_, _, err := r.ConnectPeer(admin, "default", "client-1", newTestTransport(t))
	if err != nil {
		t.Fatalf("first ConnectPeer returned error: %v", err)
	}

	_, _, err = r.ConnectPeer(admin, "default", "client-1", newTestTransport(t))
	if err == nil {
		t.Fatal("expected second connect with the same client id to fail")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.ClientIDInUse {
		t.Errorf("expected ClientIDInUse, got %v", err)
	}
}

type recordingRegistrar struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
}

func (r *recordingRegistrar) RegisterPeer(_ context.Context, ws, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, ws+"/"+clientID)
	return nil
}

func (r *recordingRegistrar) UnregisterPeer(_ context.Context, ws, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, ws+"/"+clientID)
	return nil
}

func TestConnectDisconnectPeerMirrorsIntoPeerRegistrar(t *testing.T) {
	r := NewRegistry()
	reg := &recordingRegistrar{}
	r.SetPeerRegistrar(reg)
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}

	p, _, err := r.ConnectPeer(admin, "default", "client-1", newTestTransport(t))
	if err != nil {
		t.Fatalf("ConnectPeer returned error: %v", err)
	}

	reg.mu.Lock()
	registered := append([]string(nil), reg.registered...)
	reg.mu.Unlock()
	if len(registered) != 1 || registered[0] != "default/client-1" {
		t.Fatalf("expected RegisterPeer to be called with default/client-1, got %v", registered)
	}

	r.DisconnectPeer(p)

	reg.mu.Lock()
	unregistered := append([]string(nil), reg.unregistered...)
	reg.mu.Unlock()
	if len(unregistered) != 1 || unregistered[0] != "default/client-1" {
		t.Fatalf("expected UnregisterPeer to be called with default/client-1, got %v", unregistered)
	}
}

func TestDisconnectPeerDestroysEphemeralWorkspace(t *testing.T) {
	r := NewRegistry()
	anon := &auth.Identity{UserID: "anon-xyz", Roles: []string{"anonymous"}, IsAnonymous: true}

	p, _, err := r.ConnectPeer(anon, "", "client-1", newTestTransport(t))
	if err != nil {
		t.Fatalf("ConnectPeer returned error: %v", err)
	}

	r.DisconnectPeer(p)

	if _, ok := r.Get("anon-xyz"); ok {
		t.Error("expected ephemeral anonymous workspace to be destroyed after last peer disconnects")
	}
}

func TestDisconnectPeerKeepsPersistentWorkspace(t *testing.T) {
	r := NewRegistry()
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}

	p, _, err := r.ConnectPeer(admin, "default", "client-1", newTestTransport(t))
	if err != nil {
		t.Fatalf("ConnectPeer returned error: %v", err)
	}

	r.DisconnectPeer(p)

	if _, ok := r.Get("default"); !ok {
		t.Error("expected 'default' workspace to survive its last peer disconnecting")
	}
}

func TestEventBusDeliversToSubscriber(t *testing.T) {
	b := NewEventBus()
	ch, off := b.On("client_connected")
	defer off()

	b.Emit("client_connected", map[string]any{"id": "ws/c1"})

	select {
	case ev := <-ch:
		if ev.Name != "client_connected" {
			t.Errorf("expected event name 'client_connected', got %q", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
}

func TestDispatchSerializesMutations(t *testing.T) {
	w := New("ws-test", true, nil)
	defer w.Stop()

	var counter int
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			w.Dispatch(func() { counter++ })
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if counter != 50 {
		t.Errorf("expected counter 50 after serialized increments, got %d", counter)
	}
}
