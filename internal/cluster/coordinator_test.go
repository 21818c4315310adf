package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/workspace"
)

// memStore is an in-process Store fake used to test Coordinator behavior
// without a live Redis instance.
type memStore struct {
	mu   sync.Mutex
	kv   map[string]string
	sets map[string]map[string]struct{}
	subs map[string][]func(string)
}

func newMemStore() *memStore {
	return &memStore{
		kv:   make(map[string]string),
		sets: make(map[string]map[string]struct{}),
		subs: make(map[string][]func(string)),
	}
}

func (m *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *memStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]struct{})
	}
	m.sets[key][member] = struct{}{}
	return nil
}

func (m *memStore) RemoveFromSet(ctx context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *memStore) Members(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *memStore) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	handlers := append([]func(string){}, m.subs[channel]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *memStore) Subscribe(ctx context.Context, channel string, handler func(payload string)) {
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], handler)
	m.mu.Unlock()
}

func TestRegisterLocateForward(t *testing.T) {
	store := newMemStore()
	spacesA := workspace.NewRegistry()
	spacesB := workspace.NewRegistry()

	coordA := New(Config{RouterID: "router-a", HeartbeatInterval: time.Hour}, store, spacesA)
	coordB := New(Config{RouterID: "router-b", HeartbeatInterval: time.Hour}, store, spacesB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordA.Start(ctx)
	go coordB.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	w, _ := spacesB.Get("default")
	tr := transport.NewInproc(4)
	peer := workspace.NewPeer("default", "bob", &auth.Identity{UserID: "bob"}, tr)
	if err := w.AddPeer(peer); err != nil {
		t.Fatalf("add peer: %v", err)
	}
	if err := coordB.RegisterPeer(ctx, "default", "bob"); err != nil {
		t.Fatalf("register peer: %v", err)
	}

	routerID, ok := coordA.Locate("default", "bob")
	if !ok || routerID != "router-b" {
		t.Fatalf("expected router-b to own default/bob, got %q ok=%v", routerID, ok)
	}

	delivered := make(chan []byte, 1)
	tr.OnMessage(func(data []byte, binary bool) { delivered <- data })

	if err := coordA.Forward("default", "bob", []byte("hello")); err != nil {
		t.Fatalf("forward: %v", err)
	}

	select {
	case got := <-delivered:
		if string(got) != "hello" {
			t.Fatalf("expected forwarded payload to round-trip, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded delivery")
	}
}

func TestBroadcastSkipsSelf(t *testing.T) {
	store := newMemStore()
	spacesA := workspace.NewRegistry()
	spacesB := workspace.NewRegistry()
	coordA := New(Config{RouterID: "router-a", HeartbeatInterval: time.Hour}, store, spacesA)
	coordB := New(Config{RouterID: "router-b", HeartbeatInterval: time.Hour}, store, spacesB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordA.Start(ctx)
	go coordB.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	var gotA, gotB bool
	coordA.OnBroadcast(func(channel, payload string) { gotA = true })
	coordB.OnBroadcast(func(channel, payload string) { gotB = true })

	if err := coordA.Broadcast(ctx, "announcements", []byte("hi")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if gotA {
		t.Fatal("broadcast must not be delivered back to its own sender")
	}
	if !gotB {
		t.Fatal("expected the other active router to receive the broadcast")
	}
}

func TestCleanupReapsStaleRouter(t *testing.T) {
	store := newMemStore()
	spaces := workspace.NewRegistry()
	coord := New(Config{RouterID: "router-a", HeartbeatInterval: time.Hour, ServerTTL: time.Millisecond}, store, spaces)

	ctx := context.Background()
	// Simulate a sibling router that heartbeat a while ago and owns a client.
	store.Set(ctx, keyServerPrefix+"router-b", `{"host":"h","port":1,"last_seen":1}`, 0)
	store.AddToSet(ctx, keyActiveServers, "router-b", 0)
	store.AddToSet(ctx, keyActiveServers, "router-a", 0)
	store.Set(ctx, keyClientPrefix+"default:carol", "router-b", 0)
	store.AddToSet(ctx, fmt.Sprintf(keyServerClientsFmt, "router-b"), "default:carol", 0)

	coord.cleanupOnce(ctx)

	if _, ok, _ := store.Get(ctx, keyClientPrefix+"default:carol"); ok {
		t.Fatal("expected stale router's client key to be GC'd")
	}
	members, _ := store.Members(ctx, keyActiveServers)
	for _, m := range members {
		if m == "router-b" {
			t.Fatal("expected stale router to be removed from active_servers")
		}
	}
}
