package channel

import (
	"sync"

	"github.com/twosix-race/racecomms/rctypes"
)

// Factory builds the Instance for one ChannelGid, deferred until
// CommsCore.Init knows the host's Config and can supply the right
// directories/ports/HTTP client. This mirrors the teacher's chainCode ->
// chainControl construction in chainregistry.go, generalised from a fixed
// two-entry enum (bitcoin/litecoin) to an open, string-keyed table so a
// manifest can register arbitrary channel kinds.
type Factory func() (*Base, Instance)

// Registry maps ChannelGid to the Factory that builds it.
type Registry struct {
	mu        sync.RWMutex
	factories map[rctypes.ChannelGid]Factory
}

// NewRegistry constructs an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[rctypes.ChannelGid]Factory)}
}

// Register adds gid's factory. Intended to be called once per channel kind
// during CommsCore construction, before Init.
func (r *Registry) Register(gid rctypes.ChannelGid, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gid] = f
}

// Build invokes gid's factory, if registered.
func (r *Registry) Build(gid rctypes.ChannelGid) (*Base, Instance, bool) {
	r.mu.RLock()
	f, ok := r.factories[gid]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	base, instance := f()
	return base, instance, true
}

// Gids returns every registered channel gid, for CommsCore.Init to build
// the full channel set up front.
func (r *Registry) Gids() []rctypes.ChannelGid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rctypes.ChannelGid, 0, len(r.factories))
	for gid := range r.factories {
		out = append(out, gid)
	}
	return out
}
