// internal/httpgw/respond.go
// Response helpers, including the errs.Kind -> HTTP status mapping: 200
// success, 400 bad function call, 401 invalid token on a protected
// workspace, 404 unknown workspace/service/function, 500 unhandled error.
package httpgw

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/metrics"
)

type errorBody struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Detail: fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response: %v", err)
	}
}

// writeCallError maps err to the HTTP status its errs.Kind implies and
// writes the JSON error body.
func writeCallError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	statusClass := "5xx"
	if kind, ok := errs.KindOf(err); ok {
		switch kind {
		case errs.ServiceNotFound, errs.FunctionNotFound, errs.RecipientUnknown:
			status, statusClass = http.StatusNotFound, "4xx"
		case errs.InvalidToken, errs.ExpiredToken, errs.WorkspaceForbidden, errs.InsufficientScope:
			status, statusClass = http.StatusUnauthorized, "4xx"
		case errs.MalformedFrame:
			status, statusClass = http.StatusBadRequest, "4xx"
		case errs.RequestTimeout:
			status, statusClass = http.StatusGatewayTimeout, "5xx"
		}
	}
	metrics.HTTPInvocationsTotal.WithLabelValues(statusClass).Inc()
	writeError(w, status, "%s", err.Error())
}
