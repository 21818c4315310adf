package wsservice

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/workspace"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(ctx context.Context, call registry.CallContext, to, member string, args []any) (any, error) {
	return nil, nil
}

func (stubInvoker) InvokeStream(ctx context.Context, call registry.CallContext, to, member string, args []any) (<-chan registry.StreamValue, error) {
	return nil, nil
}

type recordingNotifier struct {
	events chan registry.CallContext
}

func (n *recordingNotifier) Notify(peerID, event string, payload any) {}

func connectPeer(t *testing.T, wsReg *workspace.Registry, identity *auth.Identity, ws, clientID string) *workspace.Peer {
	t.Helper()
	p, _, err := wsReg.ConnectPeer(identity, ws, clientID, transport.NewInproc(8))
	if err != nil {
		t.Fatalf("ConnectPeer returned error: %v", err)
	}
	return p
}

func TestRegisterServiceThenGetService(t *testing.T) {
	wsReg := workspace.NewRegistry()
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}
	w, _ := wsReg.Get("default")

	connectPeer(t, wsReg, admin, "default", "client-a")
	svc := New(w, wsReg, auth.New(auth.Config{}), stubInvoker{}, &recordingNotifier{}, nil)
	w.Registry.Register(svc, admin, w.ID+"/"+ManagerClientID, false)

	call := registry.CallContext{Workspace: "default", From: "default/client-a", To: w.ID + "/" + ManagerClientID, User: "root"}

	registerFn, ok := svc.Member("register_service")
	if !ok {
		t.Fatal("expected register_service member to exist")
	}
	descArg := map[string]any{
		"id":   "greeter",
		"name": "greeter",
		"type": "generic",
		"config": map[string]any{
			"visibility": "public",
		},
		"members": []any{"hello"},
	}
	fqid, err := registerFn.Invoke(context.Background(), call, []any{descArg})
	if err != nil {
		t.Fatalf("register_service returned error: %v", err)
	}
	if fqid != "default/client-a:greeter" {
		t.Errorf("expected fqid 'default/client-a:greeter', got %v", fqid)
	}

	getFn, _ := svc.Member("get_service")
	result, err := getFn.Invoke(context.Background(), call, []any{"greeter"})
	if err != nil {
		t.Fatalf("get_service returned error: %v", err)
	}
	got, ok := result.(*registry.Descriptor)
	if !ok {
		t.Fatalf("expected *registry.Descriptor, got %T", result)
	}
	if got.ID != "greeter" {
		t.Errorf("expected descriptor id 'greeter', got %q", got.ID)
	}
	if _, ok := got.Member("hello"); !ok {
		t.Error("expected forwarding member 'hello' to be installed")
	}
}

func TestGenerateTokenForAnotherUserRequiresAdmin(t *testing.T) {
	wsReg := workspace.NewRegistry()
	w, _ := wsReg.Get("default")
	authn := auth.New(auth.Config{})
	svc := New(w, wsReg, authn, stubInvoker{}, &recordingNotifier{}, nil)

	nonAdmin := &auth.Identity{UserID: "bob"}
	connectPeer(t, wsReg, nonAdmin, "bob", "client-a")

	call := registry.CallContext{Workspace: "bob", From: "bob/client-a", User: "bob"}
	genFn, _ := svc.Member("generate_token")
	_, err := genFn.Invoke(context.Background(), call, []any{map[string]any{"user_id": "alice"}})
	if err == nil {
		t.Fatal("expected requesting another user's token to fail for a non-admin caller")
	}
}

func TestGenerateTokenForAnotherWorkspaceRequiresAdmin(t *testing.T) {
	wsReg := workspace.NewRegistry()
	w, _ := wsReg.Get("default")
	authn := auth.New(auth.Config{})
	svc := New(w, wsReg, authn, stubInvoker{}, &recordingNotifier{}, nil)

	nonAdmin := &auth.Identity{UserID: "alice"}
	connectPeer(t, wsReg, nonAdmin, "alice", "client-a")

	call := registry.CallContext{Workspace: "alice", From: "alice/client-a", User: "alice"}
	genFn, _ := svc.Member("generate_token")
	_, err := genFn.Invoke(context.Background(), call, []any{map[string]any{"user_id": "alice", "workspace": "bob-workspace"}})
	if err == nil {
		t.Fatal("expected requesting a token for another workspace to fail for a non-admin caller")
	}
}

func TestEchoReturnsValueUnchanged(t *testing.T) {
	wsReg := workspace.NewRegistry()
	w, _ := wsReg.Get("default")
	svc := New(w, wsReg, auth.New(auth.Config{}), stubInvoker{}, &recordingNotifier{}, nil)

	call := registry.CallContext{Workspace: "default"}
	echoFn, _ := svc.Member("echo")
	result, err := echoFn.Invoke(context.Background(), call, []any{"hello"})
	if err != nil {
		t.Fatalf("echo returned error: %v", err)
	}
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

func TestEmitDeliversToOnSubscriber(t *testing.T) {
	wsReg := workspace.NewRegistry()
	w, _ := wsReg.Get("default")
	admin := &auth.Identity{UserID: "root", Roles: []string{"admin"}}
	connectPeer(t, wsReg, admin, "default", "client-a")

	delivered := make(chan registry.StreamValue, 1)
	notifier := &blockingNotifier{delivered: delivered}
	svc := New(w, wsReg, auth.New(auth.Config{}), stubInvoker{}, notifier, nil)

	call := registry.CallContext{Workspace: "default", From: "default/client-a"}
	onFn, _ := svc.Member("on")
	if _, err := onFn.Invoke(context.Background(), call, []any{"greeting"}); err != nil {
		t.Fatalf("on returned error: %v", err)
	}

	emitFn, _ := svc.Member("emit")
	if _, err := emitFn.Invoke(context.Background(), call, []any{"greeting", "hi"}); err != nil {
		t.Fatalf("emit returned error: %v", err)
	}

	select {
	case v := <-delivered:
		if v.Value != "hi" {
			t.Errorf("expected payload 'hi', got %v", v.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

type blockingNotifier struct {
	delivered chan registry.StreamValue
}

func (n *blockingNotifier) Notify(peerID, event string, payload any) {
	n.delivered <- registry.StreamValue{Value: payload}
}
