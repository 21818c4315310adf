package httpgw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/registry"
	"github.com/Voskan/hyphagw/internal/workspace"
	"github.com/Voskan/hyphagw/internal/wsservice"
)

func newTestHandler(t *testing.T) (*Handler, *workspace.Workspace) {
	t.Helper()
	spaces := workspace.NewRegistry()
	authn := auth.New(auth.Config{})
	space, ok := spaces.Get("default")
	if !ok {
		t.Fatal("default workspace missing")
	}

	desc := &registry.Descriptor{
		ID:         "greeter",
		Name:       "Greeter",
		Type:       "generic",
		Visibility: registry.Public,
		Members: map[string]*registry.Callable{
			"echo": {
				Kind: registry.Unary,
				Invoke: func(ctx context.Context, call registry.CallContext, args []any) (any, error) {
					if len(args) == 0 {
						return nil, nil
					}
					return args[0], nil
				},
			},
			"count": {
				Kind: registry.StreamSync,
				Stream: func(ctx context.Context, call registry.CallContext, args []any) (<-chan registry.StreamValue, error) {
					out := make(chan registry.StreamValue, 3)
					go func() {
						defer close(out)
						for i := 1; i <= 3; i++ {
							out <- registry.StreamValue{Value: map[string]any{"i": i}, Done: i == 3}
						}
					}()
					return out, nil
				},
			},
		},
	}
	space.Registry.RegisterBuiltin(desc, "default/greeter-owner")

	return New(spaces, authn), space
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListServicesAndGetDescriptor(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/default/services", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list services: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list []descriptorSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "greeter" {
		t.Fatalf("unexpected service list: %+v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/default/services/greeter", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get descriptor: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var detail descriptorDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if len(detail.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(detail.Members))
	}
}

func TestInvokeUnaryMemberWithSingleQueryParam(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/default/services/greeter/echo?value=hello", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected echo to round-trip its single argument, got %q", got)
	}
}

func TestInvokeUnknownMemberReturns404(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/default/services/greeter/nope", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInvokeUnknownWorkspaceReturns404(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/no-such-workspace/services", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStreamingMemberProducesNDJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/default/services/greeter/count", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Routes().ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected application/x-ndjson, got %q", ct)
	}
	lines := 0
	for _, b := range rec.Body.Bytes() {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Fatalf("expected exactly 3 NDJSON lines, got %d: %s", lines, rec.Body.String())
	}
}

type stubInvoker struct{}

func (stubInvoker) Invoke(ctx context.Context, call registry.CallContext, to, member string, args []any) (any, error) {
	return nil, nil
}

func (stubInvoker) InvokeStream(ctx context.Context, call registry.CallContext, to, member string, args []any) (<-chan registry.StreamValue, error) {
	return nil, nil
}

type stubNotifier struct{}

func (stubNotifier) Notify(peerID, event string, payload any) {}

func TestEchoOverHTTPThroughWorkspaceServiceAlias(t *testing.T) {
	spaces := workspace.NewRegistry()
	authn := auth.New(auth.Config{})
	space, _ := spaces.Get("default")

	desc := wsservice.New(space, spaces, authn, stubInvoker{}, stubNotifier{}, nil)
	space.Registry.RegisterBuiltin(desc, space.ID+"/"+wsservice.ManagerClientID)

	h := New(spaces, authn)
	req := httptest.NewRequest(http.MethodPost, "/default/services/ws/echo", strings.NewReader(`{"msg":"hello"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers on the invoke response")
	}
	var got string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected single-parameter rule to pass the value alone, got %q", got)
	}
}

func TestCORSPreflightAlwaysAllowsMethods(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/default/services", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET,POST,PUT,DELETE,OPTIONS" {
		t.Fatalf("unexpected CORS methods header: %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}
