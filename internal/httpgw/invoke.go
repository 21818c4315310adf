// internal/httpgw/invoke.go
// GET|POST /{ws}/services/{sid}/{member}: merges query string and JSON body
// into arguments under the zero-one-many parameter-passing rule, invokes the
// resolved Callable directly (no router hop needed: a remote-owned member's
// Callable already closes over the forwarding machinery wired up at
// registration time), and streams a lazy result as NDJSON.
package httpgw

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/registry"
)

// mergeParams merges arguments from the query string and the JSON body.
// Body fields win over same-named query fields.
func mergeParams(r *http.Request) (map[string]any, error) {
	params := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			params[k] = v[0]
		} else {
			params[k] = v
		}
	}

	if r.Body == nil {
		return params, nil
	}
	defer r.Body.Close()
	br := bufio.NewReader(r.Body)
	if _, err := br.Peek(1); err == io.EOF {
		return params, nil
	} else if err != nil {
		return params, nil
	}

	var body map[string]any
	if err := json.NewDecoder(br).Decode(&body); err != nil {
		return nil, errs.Wrap(errs.MalformedFrame, err, "request body is not a JSON object")
	}
	for k, v := range body {
		params[k] = v
	}
	return params, nil
}

// argsFromParams applies the zero/one/many parameter-passing rule.
func argsFromParams(params map[string]any) []any {
	switch len(params) {
	case 0:
		return nil
	case 1:
		for _, v := range params {
			return []any{v}
		}
	}
	return []any{params}
}

func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
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
	member := r.PathValue("member")
	c, ok := d.Member(member)
	if !ok {
		writeCallError(w, errs.New(errs.FunctionNotFound, "service %q has no member %q", d.ID, member))
		return
	}

	params, err := mergeParams(r)
	if err != nil {
		writeCallError(w, err)
		return
	}
	args := argsFromParams(params)

	call := registry.CallContext{
		Workspace: space.ID,
		From:      space.ID + "/" + pseudoPeerClientID,
		To:        d.Owner,
		User:      identity.UserID,
	}

	if c.IsStreaming() {
		h.streamNDJSON(w, r, c, call, args)
		return
	}

	result, err := c.Invoke(r.Context(), call, args)
	if err != nil {
		writeCallError(w, err)
		return
	}
	metrics.HTTPInvocationsTotal.WithLabelValues("2xx").Inc()
	writeJSON(w, result)
}

// streamNDJSON writes one JSON value per line over a chunked
// application/x-ndjson response, with a trailing {"type":"error",...} line
// on mid-stream failure.
func (h *Handler) streamNDJSON(w http.ResponseWriter, r *http.Request, c *registry.Callable, call registry.CallContext, args []any) {
	ch, err := c.Stream(r.Context(), call, args)
	if err != nil {
		writeCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for sv := range ch {
		if sv.Err != nil {
			_ = enc.Encode(map[string]any{"type": "error", "error": sv.Err.Error()})
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if sv.Done && sv.Value == nil {
			// bare end-of-stream marker, no value to emit
			return
		}
		if err := enc.Encode(sv.Value); err != nil {
			logging.Sugar().Debugw("ndjson encode failed, aborting stream", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if sv.Done {
			return
		}
	}
	metrics.HTTPInvocationsTotal.WithLabelValues("2xx").Inc()
}
