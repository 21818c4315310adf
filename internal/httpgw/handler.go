// internal/httpgw/handler.go
// Package httpgw is the HTTP proxy: REST routes over the same
// workspace/registry state the WebSocket router serves, using plain net/http
// with Go's route-pattern ServeMux for path parameters.
package httpgw

import (
	"net/http"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/workspace"
	"github.com/Voskan/hyphagw/internal/wsservice"
)

// pseudoPeerClientID is the identity the proxy impersonates when it invokes
// a service member on a caller's behalf.
const pseudoPeerClientID = "http-server"

// Handler serves the HTTP proxy's REST surface over an existing workspace
// registry and authenticator; it never mutates router/transport state.
type Handler struct {
	Spaces *workspace.Registry
	Authn  *auth.Authenticator
}

// New constructs a Handler.
func New(spaces *workspace.Registry, authn *auth.Authenticator) *Handler {
	return &Handler{Spaces: spaces, Authn: authn}
}

// Routes builds the complete http.Handler for the proxy, including CORS and
// the "OPTIONS *" preflight.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /{ws}/services", h.handleListServices)
	mux.HandleFunc("GET /{ws}/services/{sid}", h.handleGetDescriptor)
	mux.HandleFunc("GET /{ws}/services/{sid}/{member}", h.handleInvoke)
	mux.HandleFunc("POST /{ws}/services/{sid}/{member}", h.handleInvoke)
	mux.HandleFunc("/{ws}/apps/{sid}/{path...}", h.handleGatewayApp)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// identityFromRequest resolves the caller's identity from an optional
// Authorization: Bearer token, degrading to anonymous on anything invalid
// rather than rejecting the request.
func (h *Handler) identityFromRequest(r *http.Request) *auth.Identity {
	token := bearerToken(r)
	payload, err := h.Authn.Authenticate(token)
	if err != nil {
		logging.Sugar().Debugw("http proxy token rejected, degrading to anonymous", "err", err)
		payload, err = h.Authn.Authenticate("")
		if err != nil {
			return &auth.Identity{IsAnonymous: true}
		}
	}
	return auth.ResolveIdentity(payload)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if len(v) > len(prefix) && v[:len(prefix)] == prefix {
		return v[len(prefix):]
	}
	return ""
}

// serviceID resolves the {sid} path segment. The short name "ws" is an alias
// for the built-in workspace service, so REST callers can write
// /default/services/ws/echo instead of spelling out the manager's
// client-qualified id.
func serviceID(r *http.Request) string {
	sid := r.PathValue("sid")
	if sid == "ws" {
		return wsservice.ManagerClientID + ":" + wsservice.ServiceID
	}
	return sid
}

// workspaceOrNotFound resolves {ws}, writing a 404 and returning ok=false if
// it does not exist.
func (h *Handler) workspaceOrNotFound(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws := r.PathValue("ws")
	space, ok := h.Spaces.Get(ws)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown workspace %q", ws)
		metrics.HTTPInvocationsTotal.WithLabelValues("4xx").Inc()
		return nil, false
	}
	return space, true
}
