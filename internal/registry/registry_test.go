package registry

import (
	"testing"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
)

func echoDescriptor(id string) *Descriptor {
	return &Descriptor{
		ID:   id,
		Name: id,
		Type: "generic",
		Members: map[string]*Callable{
			"say_hello": {Kind: Unary},
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}

	if err := r.Register(echoDescriptor("greeter"), caller, "ws-1/client-a", false); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	d, err := r.Get("greeter", caller, "ws-1", ModeDefault)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if d.ID != "greeter" {
		t.Errorf("expected id 'greeter', got %q", d.ID)
	}
	if _, ok := d.Member("sayHello"); !ok {
		t.Errorf("expected camelCase alias sayHello to be installed")
	}
}

func TestRegisterDuplicateWithoutOverwrite(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}

	if err := r.Register(echoDescriptor("greeter"), caller, "ws-1/client-a", false); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}
	err := r.Register(echoDescriptor("greeter"), caller, "ws-1/client-a", false)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.ServiceIDInUse {
		t.Errorf("expected ServiceIDInUse, got %v", err)
	}
}

func TestRegisterDefaultWorkspaceRequiresAdmin(t *testing.T) {
	r := New("default")
	nonAdmin := &auth.Identity{UserID: "u1"}

	err := r.Register(echoDescriptor("greeter"), nonAdmin, "default/client-a", false)
	if err == nil {
		t.Fatal("expected non-admin registration in default workspace to fail")
	}

	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}
	if err := r.Register(echoDescriptor("greeter"), admin, "default/client-a", false); err != nil {
		t.Fatalf("expected admin registration to succeed, got %v", err)
	}
}

func TestPublicWorkspaceForcesPublicVisibility(t *testing.T) {
	r := New("public")
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}

	desc := echoDescriptor("greeter")
	desc.Visibility = Protected
	if err := r.Register(desc, admin, "public/client-a", false); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	stranger := &auth.Identity{UserID: "u2"}
	d, err := r.Get("greeter", stranger, "some-other-ws", ModeDefault)
	if err != nil {
		t.Fatalf("expected public service to be visible cross-workspace, got %v", err)
	}
	if d.Visibility != Public {
		t.Errorf("expected visibility to be forced to public, got %q", d.Visibility)
	}
}

func TestUnregisterRemovesService(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}
	owner := "ws-1/client-a"

	if err := r.Register(echoDescriptor("greeter"), caller, owner, false); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := r.Unregister(owner, "greeter"); err != nil {
		t.Fatalf("Unregister returned error: %v", err)
	}
	if _, err := r.Get("greeter", caller, "ws-1", ModeDefault); err == nil {
		t.Fatal("expected lookup after unregister to fail")
	}
}

func TestRemoveAllOwnedBy(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}
	owner := "ws-1/client-a"

	r.Register(echoDescriptor("a"), caller, owner, false)
	r.Register(echoDescriptor("b"), caller, owner, false)
	r.Register(echoDescriptor("c"), caller, "ws-1/client-b", false)

	r.RemoveAllOwnedBy(owner)

	if r.Len() != 1 {
		t.Errorf("expected 1 remaining service, got %d", r.Len())
	}
}

func TestListFiltersByVisibility(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}
	r.Register(echoDescriptor("a"), caller, "ws-1/client-a", false)

	sameWorkspace := r.List(Query{}, caller, "ws-1")
	if len(sameWorkspace) != 1 {
		t.Errorf("expected 1 visible service in same workspace, got %d", len(sameWorkspace))
	}

	otherWorkspace := r.List(Query{}, caller, "ws-2")
	if len(otherWorkspace) != 0 {
		t.Errorf("expected 0 visible services from a different workspace, got %d", len(otherWorkspace))
	}
}

func TestGetByClientQualifiedID(t *testing.T) {
	r := New("ws-1")
	caller := &auth.Identity{UserID: "u1"}
	r.Register(echoDescriptor("greeter"), caller, "ws-1/client-a", false)
	r.Register(echoDescriptor("greeter"), caller, "ws-1/client-b", false)

	d, err := r.Get("client-b:greeter", caller, "ws-1", ModeDefault)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if d.Owner != "ws-1/client-b" {
		t.Errorf("expected owner ws-1/client-b, got %q", d.Owner)
	}
}
