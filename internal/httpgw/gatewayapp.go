// internal/httpgw/gatewayapp.go
// ANY /{ws}/apps/{sid}/{path…}: dispatches into a service whose type is
// "asgi" or "functions" under the gateway-app contract, built on the same
// typed-Callable/Stream machinery already used for NDJSON streaming
// elsewhere in this package (callback-style body-receive/chunked-send hooks
// cannot cross the wire-forwarding boundary to a remote-owned service). The
// designated member receives one request descriptor and either returns one
// response map, or streams a sequence of chunk maps carrying a more_body
// flag.
package httpgw

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/registry"
)

// gatewayAppMember is the fixed member name a gateway-app service exposes to
// receive proxied HTTP requests.
const gatewayAppMember = "handle_request"

func (h *Handler) handleGatewayApp(w http.ResponseWriter, r *http.Request) {
	space, ok := h.workspaceOrNotFound(w, r)
	if !ok {
		return
	}
	identity := h.identityFromRequest(r)

	d, err := space.Registry.Get(serviceID(r), identity, space.ID, registry.ModeDefault)
	if err != nil {
		writeCallError(w, err)
		return
	}
	if d.Type != "asgi" && d.Type != "functions" {
		writeCallError(w, errs.New(errs.ServiceNotFound, "service %q does not implement the gateway-app contract", d.ID))
		return
	}
	c, ok := d.Member(gatewayAppMember)
	if !ok {
		writeCallError(w, errs.New(errs.FunctionNotFound, "gateway-app %q has no %q member", d.ID, gatewayAppMember))
		return
	}

	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	req := map[string]any{
		"type":         "http",
		"method":       r.Method,
		"path":         r.PathValue("path"),
		"query_string": r.URL.RawQuery,
		"headers":      headers,
		"body":         base64.StdEncoding.EncodeToString(body),
	}

	call := registry.CallContext{
		Workspace: space.ID,
		From:      space.ID + "/" + pseudoPeerClientID,
		To:        d.Owner,
		User:      identity.UserID,
	}
	args := []any{req}

	if c.IsStreaming() {
		h.relayStreamedResponse(w, r, c, call, args)
		return
	}

	result, err := c.Invoke(r.Context(), call, args)
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeProxiedResponse(w, result)
}

func writeProxiedResponse(w http.ResponseWriter, result any) {
	resp, ok := result.(map[string]any)
	if !ok {
		writeError(w, http.StatusInternalServerError, "gateway-app returned a malformed response")
		return
	}
	applyResponseHeaders(w, resp)
	status := statusFromResponse(resp)
	w.WriteHeader(status)
	if b, ok := decodeBody(resp["body"]); ok {
		_, _ = w.Write(b)
	}
}

func (h *Handler) relayStreamedResponse(w http.ResponseWriter, r *http.Request, c *registry.Callable, call registry.CallContext, args []any) {
	ch, err := c.Stream(r.Context(), call, args)
	if err != nil {
		writeCallError(w, err)
		return
	}
	flusher, _ := w.(http.Flusher)
	headerWritten := false
	for sv := range ch {
		if sv.Err != nil {
			if !headerWritten {
				writeError(w, http.StatusInternalServerError, "%s", sv.Err.Error())
			}
			return
		}
		resp, ok := sv.Value.(map[string]any)
		if !ok {
			logging.Sugar().Warnw("gateway-app stream chunk was not a map, dropping")
			continue
		}
		if !headerWritten {
			applyResponseHeaders(w, resp)
			w.WriteHeader(statusFromResponse(resp))
			headerWritten = true
		}
		if b, ok := decodeBody(resp["body"]); ok {
			_, _ = w.Write(b)
		}
		if flusher != nil {
			flusher.Flush()
		}
		moreBody, _ := resp["more_body"].(bool)
		if sv.Done || !moreBody {
			return
		}
	}
}

func applyResponseHeaders(w http.ResponseWriter, resp map[string]any) {
	headers, _ := resp["headers"].(map[string]any)
	for k, v := range headers {
		if s, ok := v.(string); ok {
			w.Header().Set(k, s)
		}
	}
}

func statusFromResponse(resp map[string]any) int {
	switch v := resp["status"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return http.StatusOK
	}
}

func decodeBody(v any) ([]byte, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s), true
	}
	return b, true
}
