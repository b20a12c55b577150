// Package conn implements Connection and the registry that owns the mapping
// from ConnectionID to Connection record, following the registry idiom the
// teacher uses in htlcswitch.Switch (linkIndex/interfaceIndex maps guarded
// by a dedicated mutex, never held across outbound calls).
package conn

import (
	"sync"

	"github.com/twosix-race/racecomms/rctypes"
)

// LinkHandle is the minimal surface a Connection needs from its owning Link.
// Connection never imports package link directly -- that would create an
// import cycle, since a Link owns many Connections -- so the dependency runs
// the other way: link.Link satisfies this interface structurally.
type LinkHandle interface {
	ID() rctypes.LinkID
	Type() rctypes.LinkType
}

// Resolver looks up the current LinkHandle for a LinkID, reporting false if
// the link has been destroyed. This is the mechanism behind Connection's
// "weak" reference to its link: rather than holding a live pointer that
// would keep a destroyed link's goroutines and buffers alive, Connection
// re-resolves through the registry on every use and gets ok=false once the
// owning link is gone.
type Resolver func(rctypes.LinkID) (LinkHandle, bool)

// Connection is a logical, directed data path multiplexed onto a link.
type Connection struct {
	ID          rctypes.ConnectionID
	LinkID      rctypes.LinkID
	Type        rctypes.LinkType
	Hints       string
	SendTimeout int // seconds, or rctypes.RaceUnlimited

	resolve Resolver

	mu        sync.RWMutex
	available bool
}

// New constructs a Connection bound (weakly) to linkID via resolve.
func New(id rctypes.ConnectionID, linkID rctypes.LinkID, typ rctypes.LinkType,
	hints string, sendTimeout int, resolve Resolver) *Connection {

	return &Connection{
		ID:          id,
		LinkID:      linkID,
		Type:        typ,
		Hints:       hints,
		SendTimeout: sendTimeout,
		resolve:     resolve,
		available:   true,
	}
}

// Link dereferences the connection's weak link reference. It reports
// ok=false (no error value) when the owning link has already been destroyed.
func (c *Connection) Link() (LinkHandle, bool) {
	return c.resolve(c.LinkID)
}

// Available reports whether the connection currently accepts package sends
// (it is marked unavailable while its link sleeps, for connections whose
// SendTimeout is shorter than the sleep period).
func (c *Connection) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// SetAvailable updates the availability flag, e.g. from the owning link's
// duty-cycle scheduler on sleep/wake.
func (c *Connection) SetAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

// Registry owns the ConnectionID -> *Connection mapping for the whole core.
// It is guarded by its own mutex, independent from the link registry's, per
// the no-lock-across-callbacks rule.
type Registry struct {
	mu    sync.RWMutex
	byID  map[rctypes.ConnectionID]*Connection
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[rctypes.ConnectionID]*Connection)}
}

// Add registers c.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	r.byID[c.ID] = c
	r.mu.Unlock()
}

// Get looks up a connection by id.
func (r *Registry) Get(id rctypes.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Remove deletes a connection from the registry, returning it if present.
func (r *Registry) Remove(id rctypes.ConnectionID) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	return c, ok
}

// Snapshot returns every connection currently registered for
// linkID, used when a link is destroyed or shut down so callbacks can be
// fired without holding the registry lock.
func (r *Registry) Snapshot(linkID rctypes.LinkID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connection
	for _, c := range r.byID {
		if c.LinkID == linkID {
			out = append(out, c)
		}
	}
	return out
}

// All returns a snapshot of every connection in the registry, used by
// CommsCore.Shutdown.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}
