// internal/plugins/registry.go
// Runtime extension registry for "workspace-service member providers": a
// plugin contributes Callables that get merged into the `extra` map passed
// to wsservice.New, exposing them as members on the built-in workspace
// service alongside register_service/get_service (the `default_service`
// config key). Go's native plugin.Open (.so) loading serves operators who
// build providers out-of-tree; callers that statically import a provider
// package can register it directly.
package plugins

import (
	"plugin"
	"sync"

	"github.com/Voskan/hyphagw/internal/registry"
)

// Kind classifies a provider's purpose so callers can filter quickly.
// Custom kinds are allowed; collisions are prevented by separate maps.
type Kind string

// MemberProvider is the kind every plugin registered through this package
// must satisfy: on Init, it returns the set of named Callables it wants
// installed onto the workspace service's member table.
type MemberProvider interface {
	Kind() Kind   // category, e.g. "default_service"
	Name() string // human-readable unique name within its Kind

	// Init is invoked once after registration and returns the Callables this
	// provider contributes, keyed by member name. Returning an error aborts
	// registration.
	Init() (map[string]*registry.Callable, error)
}

var (
	regMu    sync.RWMutex
	registry_ = make(map[Kind]map[string]MemberProvider)
	members  = make(map[string]*registry.Callable)
)

// Register adds p to the global registry and merges its contributed members
// into the set returned by Members. Should be called from a provider
// package's init(). A duplicate (kind, name) pair panics to surface
// programmer error early.
func Register(p MemberProvider) {
	regMu.Lock()
	defer regMu.Unlock()

	kindMap, ok := registry_[p.Kind()]
	if !ok {
		kindMap = make(map[string]MemberProvider)
		registry_[p.Kind()] = kindMap
	}
	if _, exists := kindMap[p.Name()]; exists {
		panic("plugins: duplicate provider " + string(p.Kind()) + "/" + p.Name())
	}

	contributed, err := p.Init()
	if err != nil {
		panic("plugins: init failed for " + p.Name() + ": " + err.Error())
	}
	kindMap[p.Name()] = p
	for name, c := range contributed {
		members[name] = c
	}
}

// ByKind returns the providers registered under k.
func ByKind(k Kind) []MemberProvider {
	regMu.RLock()
	defer regMu.RUnlock()
	m := registry_[k]
	out := make([]MemberProvider, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// Members returns a snapshot of every Callable contributed by a registered
// provider so far, suitable as the `extra` argument to wsservice.New for the
// `default_service` config key.
func Members() map[string]*registry.Callable {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make(map[string]*registry.Callable, len(members))
	for name, c := range members {
		out[name] = c
	}
	return out
}

// LoadShared dynamically loads a Go plugin (.so) file built out-of-tree. The
// plugin is expected to call Register() from its own init(), the same
// contract Go's native plugin support already implies for any .so built with
// plugin.Open.
func LoadShared(path string) error {
	_, err := plugin.Open(path)
	return err
}
