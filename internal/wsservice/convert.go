// internal/wsservice/convert.go
// Converts the loosely-typed JSON-ish arguments arriving over RPC frames
// into the strongly-typed registry/auth structs the service logic expects.
package wsservice

import (
	"time"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/registry"
)

// memberSpec is the wire-level description of one callable a peer is
// registering: a name and, optionally, a streaming kind. The peer's actual
// implementation lives on its own transport; the router never receives Go
// code over the wire, so the registry can only learn the member's name and
// whether it streams.
type memberSpec struct {
	name      string
	streaming bool
	async     bool
}

// descriptorFromArg parses the metadata half of a register_service payload.
// Callable construction is left to the caller, which has access to the
// owning peer id and the Invoker needed to build forwarding Callables.
func descriptorFromArg(arg any) (*registry.Descriptor, []memberSpec, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, nil, errs.New(errs.MalformedFrame, "register_service expects a descriptor object")
	}

	d := &registry.Descriptor{
		ID:   stringField(m, "id"),
		Name: stringField(m, "name"),
		Type: stringField(m, "type"),
	}
	if d.Type == "" {
		d.Type = "generic"
	}

	if cfg, ok := m["config"].(map[string]any); ok {
		switch stringField(cfg, "visibility") {
		case "public":
			d.Visibility = registry.Public
		case "protected":
			d.Visibility = registry.Protected
		}
		if b, ok := cfg["require_context"].(bool); ok {
			d.RequireContext = b
		}
		d.AppID = stringField(cfg, "app_id")
	}

	return d, memberSpecsFromArg(m), nil
}

func memberSpecsFromArg(m map[string]any) []memberSpec {
	raw, ok := m["members"].([]any)
	if !ok {
		return nil
	}
	specs := make([]memberSpec, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			specs = append(specs, memberSpec{name: v})
		case map[string]any:
			kind := stringField(v, "kind")
			specs = append(specs, memberSpec{
				name:      stringField(v, "name"),
				streaming: kind == "stream_sync" || kind == "stream_async",
				async:     kind == "stream_async",
			})
		}
	}
	return specs
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func queryFromArg(arg any) registry.Query {
	m, _ := arg.(map[string]any)
	if m == nil {
		return registry.Query{}
	}
	return registry.Query{
		ID:         stringField(m, "id"),
		Type:       stringField(m, "type"),
		AppID:      stringField(m, "app_id"),
		Visibility: stringField(m, "visibility"),
	}
}

func tokenConfigFromArg(arg any) (auth.GenerateConfig, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return auth.GenerateConfig{}, errs.New(errs.MalformedFrame, "generate_token expects a config object")
	}
	cfg := auth.GenerateConfig{
		UserID:    stringField(m, "user_id"),
		Workspace: stringField(m, "workspace"),
		ClientID:  stringField(m, "client_id"),
		Email:     stringField(m, "email"),
		Roles:     stringSliceField(m, "roles"),
		Scopes:    stringSliceField(m, "scopes"),
	}
	if secs, ok := m["expires_in"].(float64); ok {
		cfg.ExpiresIn = time.Duration(secs) * time.Second
	}
	return cfg, nil
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
