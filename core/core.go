// Package core implements CommsCore, the top-level plugin façade described
// in spec.md §4.7: one registry each for channels, links, and connections,
// with host calls routed to the right owner after an existence check. The
// registry-per-concern layout with its own mutex, "never held across an
// outbound callback", mirrors htlcswitch.Switch's linkIndex/interfaceIndex
// design in the teacher's htlcswitch/switch.go, generalised from Lightning
// channel links to this core's Channel/Link/Connection triple.
package core

import (
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"

	"github.com/twosix-race/racecomms/channel"
	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/wire"
)

// log is this package's subsystem logger; wired via rclog.Register by
// whatever binary constructs a CommsCore (see cmd/racecomms-harness).
var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) {
	log = logger
	link.UseLogger(logger)
}

// CommsCore is the façade sdk.PluginComms is implemented by.
type CommsCore struct {
	host sdk.HostCallbacks

	channelReg *channel.Registry
	connReg    *conn.Registry

	linksMu sync.RWMutex
	links   map[rctypes.LinkID]*link.Link

	channelsMu sync.RWMutex
	channels   map[rctypes.ChannelGid]*channel.Base
	instances  map[rctypes.ChannelGid]channel.Instance
}

// New constructs a CommsCore over an already-populated channel registry.
// Init builds one channel instance per registered gid.
func New(host sdk.HostCallbacks, channelReg *channel.Registry, connReg *conn.Registry) *CommsCore {
	return &CommsCore{
		host:       host,
		channelReg: channelReg,
		connReg:    connReg,
		links:      make(map[rctypes.LinkID]*link.Link),
		channels:   make(map[rctypes.ChannelGid]*channel.Base),
		instances:  make(map[rctypes.ChannelGid]channel.Instance),
	}
}

// Init builds every registered channel kind. cfg is accepted for interface
// compliance with sdk.PluginComms; concrete channel construction already
// captured whatever directories it needs when the caller populated
// channelReg.
func (c *CommsCore) Init(cfg sdk.Config) error {
	for _, gid := range c.channelReg.Gids() {
		base, instance, ok := c.channelReg.Build(gid)
		if !ok {
			continue
		}
		c.channelsMu.Lock()
		c.channels[gid] = base
		c.instances[gid] = instance
		c.channelsMu.Unlock()
	}
	log.Infof("core: initialized with %d channel kinds", len(c.channels))
	return nil
}

func (c *CommsCore) lookupChannel(gid rctypes.ChannelGid) (*channel.Base, channel.Instance, bool) {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()
	base, ok := c.channels[gid]
	if !ok {
		return nil, nil, false
	}
	return base, c.instances[gid], true
}

func (c *CommsCore) addLink(l *link.Link) {
	c.linksMu.Lock()
	c.links[l.ID()] = l
	c.linksMu.Unlock()
}

func (c *CommsCore) getLink(id rctypes.LinkID) (*link.Link, bool) {
	c.linksMu.RLock()
	defer c.linksMu.RUnlock()
	l, ok := c.links[id]
	return l, ok
}

func (c *CommsCore) removeLink(id rctypes.LinkID) (*link.Link, bool) {
	c.linksMu.Lock()
	defer c.linksMu.Unlock()
	l, ok := c.links[id]
	if ok {
		delete(c.links, id)
	}
	return l, ok
}

// resolveLink implements conn.Resolver against this core's live link table.
func (c *CommsCore) resolveLink(id rctypes.LinkID) (conn.LinkHandle, bool) {
	l, ok := c.getLink(id)
	if !ok {
		return nil, false
	}
	return l, true
}

// ActivateChannel runs the channel's activation state machine. The
// subclass-specific "ready" step here is a no-op placeholder that simply
// looks the role up by name; concrete channel kinds needing user input
// (hostname, directory, ...) are expected to have captured a host
// reference at construction time and prompt for it themselves before
// ActivateChannel is reached, since Base.Activate's callback only decides
// pass/fail, not how to gather inputs.
func (c *CommsCore) ActivateChannel(handle rctypes.RaceHandle, gid rctypes.ChannelGid, roleName string) rctypes.PluginResponse {
	base, _, ok := c.lookupChannel(gid)
	if !ok {
		return rctypes.PluginError
	}

	base.Activate(handle, roleName, func(name string) (rctypes.Role, error) {
		for _, r := range base.Properties().Roles {
			if r.Name == name {
				return r, nil
			}
		}
		log.Debugf("core: activate %v: no role named %q among %s", gid, name,
			spew.Sdump(base.Properties().Roles))
		return rctypes.Role{}, channel.ErrRoleUnknown
	})
	return rctypes.PluginOK
}

// DeactivateChannel transitions the channel to UNAVAILABLE and destroys
// every link it owns.
func (c *CommsCore) DeactivateChannel(handle rctypes.RaceHandle, gid rctypes.ChannelGid) rctypes.PluginResponse {
	base, _, ok := c.lookupChannel(gid)
	if !ok {
		return rctypes.PluginError
	}

	c.linksMu.RLock()
	var owned []rctypes.LinkID
	for id, l := range c.links {
		if l.ChannelGid() == gid {
			owned = append(owned, id)
		}
	}
	c.linksMu.RUnlock()

	for _, id := range owned {
		c.destroyLink(id)
	}

	base.Deactivate(handle)
	return rctypes.PluginOK
}

func (c *CommsCore) gateAndBuild(handle rctypes.RaceHandle, gid rctypes.ChannelGid, op channel.Operation,
	build func(channel.Instance, rctypes.LinkID) (*link.Link, error), loaded bool) rctypes.PluginResponse {

	base, instance, ok := c.lookupChannel(gid)
	if !ok {
		return rctypes.PluginError
	}

	id := c.host.GenerateLinkID(gid)

	if !base.Gate(op) {
		base.LinkCreateFailed(handle, id)
		return rctypes.PluginOK
	}

	l, err := build(instance, id)
	if err != nil {
		log.Warnf("core: %v factory failed for link %v: %v", gid, id, err)
		base.LinkCreateFailed(handle, id)
		return rctypes.PluginOK
	}

	c.addLink(l)
	base.LinkCreated(handle, l, loaded)
	return rctypes.PluginOK
}

// CreateLink is the create-side, address-less operation.
func (c *CommsCore) CreateLink(handle rctypes.RaceHandle, gid rctypes.ChannelGid) rctypes.PluginResponse {
	return c.gateAndBuild(handle, gid, channel.OpCreate, func(inst channel.Instance, id rctypes.LinkID) (*link.Link, error) {
		return inst.CreateLink(id, rctypes.LinkBidi)
	}, false)
}

// CreateLinkFromAddress is the create-side operation for a caller-supplied
// address.
func (c *CommsCore) CreateLinkFromAddress(handle rctypes.RaceHandle, gid rctypes.ChannelGid, address string) rctypes.PluginResponse {
	return c.gateAndBuild(handle, gid, channel.OpCreateFromAddress, func(inst channel.Instance, id rctypes.LinkID) (*link.Link, error) {
		return inst.CreateLinkFromAddress(id, rctypes.LinkBidi, address)
	}, false)
}

// LoadLinkAddress is the load-side operation for a single peer-supplied
// address.
func (c *CommsCore) LoadLinkAddress(handle rctypes.RaceHandle, gid rctypes.ChannelGid, address string) rctypes.PluginResponse {
	return c.gateAndBuild(handle, gid, channel.OpLoadAddress, func(inst channel.Instance, id rctypes.LinkID) (*link.Link, error) {
		return inst.LoadLinkAddress(id, address)
	}, true)
}

// LoadLinkAddresses is the plural form, gated on MultiAddressable. Since one
// Link instance can only be bound to one address, multi-address loading
// loads the first address on the link that gets registered and records the
// rest as nothing: a real multi-addressable channel kind would fold all of
// them into a single link's internal address list, which is left as a
// concrete-channel-kind concern (DirectLink/WhiteboardLink here only model
// a single bound address apiece).
func (c *CommsCore) LoadLinkAddresses(handle rctypes.RaceHandle, gid rctypes.ChannelGid, addresses []string) rctypes.PluginResponse {
	base, _, ok := c.lookupChannel(gid)
	if !ok {
		return rctypes.PluginError
	}
	if !base.MultiAddressable() {
		id := c.host.GenerateLinkID(gid)
		base.LinkCreateFailed(handle, id)
		return rctypes.PluginOK
	}
	if len(addresses) == 0 {
		return rctypes.PluginError
	}
	return c.LoadLinkAddress(handle, gid, addresses[0])
}

// CreateBootstrapLink is the bootstrap operation.
func (c *CommsCore) CreateBootstrapLink(handle rctypes.RaceHandle, gid rctypes.ChannelGid, passphrase string) rctypes.PluginResponse {
	return c.gateAndBuild(handle, gid, channel.OpBootstrap, func(inst channel.Instance, id rctypes.LinkID) (*link.Link, error) {
		return inst.CreateBootstrapLink(id, passphrase)
	}, false)
}

// SendPackage routes a package to its connection's owning link.
func (c *CommsCore) SendPackage(handle rctypes.RaceHandle, connID rctypes.ConnectionID, pkg wire.EncPkg, timeoutTimestamp float64, batchID int64) rctypes.PluginResponse {
	connObj, ok := c.connReg.Get(connID)
	if !ok {
		return rctypes.PluginError
	}
	lh, ok := connObj.Link()
	if !ok {
		c.host.OnPackageStatusChanged(handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
		return rctypes.PluginOK
	}
	l, ok := c.getLink(lh.ID())
	if !ok {
		return rctypes.PluginError
	}
	return l.Enqueue(handle, pkg, timeoutTimestamp)
}

// OpenConnection opens a new connection on an existing link.
func (c *CommsCore) OpenConnection(handle rctypes.RaceHandle, linkType rctypes.LinkType, linkID rctypes.LinkID, hints string, sendTimeout int) rctypes.PluginResponse {
	l, ok := c.getLink(linkID)
	if !ok {
		return rctypes.PluginError
	}

	connID := c.host.GenerateConnectionID(linkID)
	connObj, err := l.OpenConnection(connID, linkType, hints, sendTimeout, c.resolveLink)
	if err != nil {
		return rctypes.PluginError
	}
	c.connReg.Add(connObj)
	c.host.OnConnectionStatusChanged(handle, connID, rctypes.ConnectionOpen, l.Properties(), rctypes.RaceBlocking)
	return rctypes.PluginOK
}

// CloseConnection closes a connection. A nonexistent id is PLUGIN_OK per
// spec.md §4.7's "benign race between the receive thread and the explicit
// close".
func (c *CommsCore) CloseConnection(handle rctypes.RaceHandle, connID rctypes.ConnectionID) rctypes.PluginResponse {
	connObj, ok := c.connReg.Get(connID)
	if !ok {
		c.host.OnConnectionStatusChanged(handle, connID, rctypes.ConnectionClosed, rctypes.LinkProperties{}, rctypes.RaceBlocking)
		return rctypes.PluginOK
	}

	if lh, ok := connObj.Link(); ok {
		if l, ok := c.getLink(lh.ID()); ok {
			l.CloseConnection(connID)
		}
	}
	c.connReg.Remove(connID)
	c.host.OnConnectionStatusChanged(handle, connID, rctypes.ConnectionClosed, rctypes.LinkProperties{}, rctypes.RaceBlocking)
	return rctypes.PluginOK
}

func (c *CommsCore) destroyLink(id rctypes.LinkID) {
	l, ok := c.removeLink(id)
	if !ok {
		return
	}
	l.Shutdown()

	if base, _, ok := c.lookupChannel(l.ChannelGid()); ok {
		base.LinkDestroyed()
	}
}

// DestroyLink tears a link down. A nonexistent id is PLUGIN_ERROR.
func (c *CommsCore) DestroyLink(handle rctypes.RaceHandle, linkID rctypes.LinkID) rctypes.PluginResponse {
	if _, ok := c.getLink(linkID); !ok {
		return rctypes.PluginError
	}
	c.destroyLink(linkID)
	return rctypes.PluginOK
}

// OnUserInputReceived and OnUserAcknowledgementReceived correlate an
// earlier RequestPluginUserInput/DisplayBootstrapInfoToUser call by handle;
// CommsCore has no per-handle waiters of its own (activation callbacks
// close over their own channel.Base), so these are accepted and ignored.
func (c *CommsCore) OnUserInputReceived(rctypes.RaceHandle, bool, string) rctypes.PluginResponse {
	return rctypes.PluginOK
}

func (c *CommsCore) OnUserAcknowledgementReceived(rctypes.RaceHandle) rctypes.PluginResponse {
	return rctypes.PluginOK
}

// FlushChannel is a no-op: this core provides no batching above each
// transport's own send pipeline.
func (c *CommsCore) FlushChannel(rctypes.RaceHandle, rctypes.ChannelGid, int64) rctypes.PluginResponse {
	return rctypes.PluginOK
}

// ServeFiles asks a bootstrap link to start serving the directory it was
// built with. linkID must name a link built by
// channel.BootstrapFile.CreateBootstrapLink. path does not select what is
// served; it only appears in the failure log line.
func (c *CommsCore) ServeFiles(linkID rctypes.LinkID, path string) rctypes.PluginResponse {
	l, ok := c.getLink(linkID)
	if !ok {
		return rctypes.PluginError
	}
	bl, ok := link.AsBootstrap(l)
	if !ok {
		return rctypes.PluginError
	}
	if _, err := bl.ServeDirectory(); err != nil {
		log.Warnf("core: serveFiles(%v, %v) failed: %v", linkID, path, err)
		return rctypes.PluginError
	}
	return rctypes.PluginOK
}

// Shutdown closes every connection (CONNECTION_CLOSED for each, from a
// snapshot so no registry lock is held across the callbacks), then tears
// down every link (LINK_DESTROYED for each) via Link.Shutdown.
func (c *CommsCore) Shutdown() {
	for _, connObj := range c.connReg.All() {
		c.CloseConnection(rctypes.NullRaceHandle, connObj.ID)
	}

	c.linksMu.RLock()
	ids := make([]rctypes.LinkID, 0, len(c.links))
	for id := range c.links {
		ids = append(ids, id)
	}
	c.linksMu.RUnlock()

	for _, id := range ids {
		c.destroyLink(id)
	}
}
