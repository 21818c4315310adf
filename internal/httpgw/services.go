// internal/httpgw/services.go
// GET /{ws}/services and GET /{ws}/services/{sid}.
package httpgw

import (
	"net/http"

	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/registry"
)

type descriptorSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Visibility  string `json:"visibility"`
	AppID       string `json:"app_id,omitempty"`
	Config      string `json:"config"` // FQID, for get_service/apps addressing
}

func summarize(d *registry.Descriptor) descriptorSummary {
	return descriptorSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Type:        d.Type,
		Visibility:  string(d.Visibility),
		AppID:       d.AppID,
		Config:      d.FQID(),
	}
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	space, ok := h.workspaceOrNotFound(w, r)
	if !ok {
		return
	}
	identity := h.identityFromRequest(r)

	q := registry.Query{
		ID:         r.URL.Query().Get("id"),
		Type:       r.URL.Query().Get("type"),
		AppID:      r.URL.Query().Get("app_id"),
		Visibility: r.URL.Query().Get("visibility"),
	}
	descs := space.Registry.List(q, identity, space.ID)
	out := make([]descriptorSummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, summarize(d))
	}
	metrics.HTTPInvocationsTotal.WithLabelValues("2xx").Inc()
	writeJSON(w, out)
}

type descriptorDetail struct {
	descriptorSummary
	Members []memberInfo `json:"members"`
}

type memberInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Streaming bool   `json:"streaming"`
}

func (h *Handler) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
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

	members := make([]memberInfo, 0, len(d.Members))
	for name, c := range d.Members {
		members = append(members, memberInfo{Name: name, Kind: string(c.Kind), Streaming: c.IsStreaming()})
	}
	metrics.HTTPInvocationsTotal.WithLabelValues("2xx").Inc()
	writeJSON(w, descriptorDetail{descriptorSummary: summarize(d), Members: members})
}
