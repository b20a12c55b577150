// Package channel implements the abstract Channel activation lifecycle,
// link-count bookkeeping, and role validation gate from spec.md §4.4,
// plus the three concrete channel kinds (direct, whiteboard, bootstrap
// file). The activation state machine follows the teacher's Channel
// (lnd's top-level chainControl/server startup sequencing: a staged
// "starting" phase that can fail into a terminal state, mirrored here
// as STARTING -> {AVAILABLE, FAILED}; Activate never moves a channel to
// DISABLED).
package channel

import (
	"sync"

	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rcerr"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
)

// Operation identifies which pre_link_create caller is asking, so Gate can
// apply the right invalidRole check (spec.md §4.4).
type Operation uint8

const (
	OpCreate Operation = iota
	OpCreateFromAddress
	OpLoadAddress
	OpBootstrap
)

// invalidSide reports the LinkSide that makes op impossible for the
// currently active role, per spec.md: CREATOR is invalid for load-side
// operations, LOADER is invalid for create-side operations, and bootstrap
// requires a defined side at all (handled by the separate UNDEF check every
// operation applies).
func (op Operation) invalidSide() rctypes.LinkSide {
	switch op {
	case OpLoadAddress:
		return rctypes.LinkSideCreator
	case OpBootstrap:
		return rctypes.LinkSideUndef
	default:
		return rctypes.LinkSideLoader
	}
}

// Instance is the subclass factory surface a concrete channel kind (Direct,
// Whiteboard, BootstrapFile) supplies. Base handles the gate; Instance only
// builds the link once the gate has passed.
type Instance interface {
	CreateLink(id rctypes.LinkID, linkType rctypes.LinkType) (*link.Link, error)
	CreateLinkFromAddress(id rctypes.LinkID, linkType rctypes.LinkType, address string) (*link.Link, error)
	LoadLinkAddress(id rctypes.LinkID, address string) (*link.Link, error)
	CreateBootstrapLink(id rctypes.LinkID, passphrase string) (*link.Link, error)
}

// Base is the shared Channel state embedded by every concrete channel kind.
type Base struct {
	gid  rctypes.ChannelGid
	host sdk.HostCallbacks

	mu       sync.Mutex
	props    rctypes.ChannelProperties
	numLinks int
}

// NewBase constructs the shared channel state. initial is the channel's
// static descriptor (maxLinks, roles, etc.) with ChannelStatus left at its
// zero value -- NewBase sets it to UNAVAILABLE per spec.md's "Initial
// UNAVAILABLE".
func NewBase(gid rctypes.ChannelGid, host sdk.HostCallbacks, initial rctypes.ChannelProperties) *Base {
	initial.ChannelGid = gid
	initial.ChannelStatus = rctypes.ChannelUnavailable
	return &Base{gid: gid, host: host, props: initial}
}

// Gid returns the channel's identifier.
func (b *Base) Gid() rctypes.ChannelGid { return b.gid }

// Properties returns a copy of the channel's current descriptor.
func (b *Base) Properties() rctypes.ChannelProperties {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.props
}

func (b *Base) setStatus(handle rctypes.RaceHandle, status rctypes.ChannelStatus) {
	b.mu.Lock()
	b.props.ChannelStatus = status
	props := b.props
	b.mu.Unlock()
	b.host.OnChannelStatusChanged(handle, b.gid, status, props, rctypes.RaceBlocking)
}

// Activate runs the STARTING phase and transitions to a terminal status.
// readyWithRole performs any subclass-specific setup (e.g. requesting
// hostname/port via user input) and returns the role now in effect, or an
// error to fail into FAILED.
func (b *Base) Activate(handle rctypes.RaceHandle, roleName string,
	readyWithRole func(roleName string) (rctypes.Role, error)) {

	b.setStatus(handle, rctypes.ChannelStarting)

	role, err := readyWithRole(roleName)
	if err != nil {
		b.setStatus(handle, rctypes.ChannelFailed)
		return
	}

	b.mu.Lock()
	b.props.CurrentRole = role
	b.mu.Unlock()

	b.setStatus(handle, rctypes.ChannelAvailable)
}

// Deactivate transitions to UNAVAILABLE. The caller (CommsCore) is
// responsible for destroying every link this channel owns before or after
// calling Deactivate, since link teardown requires the link registry Base
// does not itself hold.
func (b *Base) Deactivate(handle rctypes.RaceHandle) {
	b.setStatus(handle, rctypes.ChannelUnavailable)
}

// Gate applies the pre_link_create checks of spec.md §4.4, steps 2-4. ok is
// false if the operation must be refused; the caller should then report
// LINK_DESTROYED for the LinkID it already allocated and return.
func (b *Base) Gate(op Operation) (ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.props.ChannelStatus != rctypes.ChannelAvailable {
		return false
	}
	if b.props.MaxLinks > 0 && b.numLinks >= b.props.MaxLinks {
		return false
	}

	side := b.props.CurrentRole.LinkSide
	if side == rctypes.LinkSideUndef {
		return false
	}
	if side != rctypes.LinkSideBoth && side == op.invalidSide() {
		return false
	}

	return true
}

// MultiAddressable reports whether loadLinkAddresses (plural) is permitted.
func (b *Base) MultiAddressable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.props.MultiAddressable
}

// LinkCreated increments numLinks and notifies the host of LINK_CREATED or
// LINK_LOADED, called once a concrete Instance factory has succeeded.
func (b *Base) LinkCreated(handle rctypes.RaceHandle, l *link.Link, loaded bool) {
	b.mu.Lock()
	b.numLinks++
	b.mu.Unlock()

	status := rctypes.LinkCreated
	if loaded {
		status = rctypes.LinkLoaded
	}
	b.host.OnLinkStatusChanged(handle, l.ID(), status, l.Properties(), rctypes.RaceBlocking)
}

// LinkCreateFailed reports LINK_DESTROYED for a LinkID the host already
// allocated but that the gate or the factory refused.
func (b *Base) LinkCreateFailed(handle rctypes.RaceHandle, id rctypes.LinkID) {
	b.host.OnLinkStatusChanged(handle, id, rctypes.LinkDestroyed,
		rctypes.LinkProperties{ChannelGid: b.gid}, rctypes.RaceBlocking)
}

// LinkDestroyed decrements numLinks, called by CommsCore as part of tearing
// a link down.
func (b *Base) LinkDestroyed() {
	b.mu.Lock()
	if b.numLinks > 0 {
		b.numLinks--
	}
	b.mu.Unlock()
}

// NumLinks returns the current live link count, for checkpointing.
func (b *Base) NumLinks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numLinks
}

// RestoreNumLinks seeds numLinks from a boltstore checkpoint on startup,
// before any links have actually been recreated for this process.
func (b *Base) RestoreNumLinks(n int) {
	b.mu.Lock()
	b.numLinks = n
	b.mu.Unlock()
}

// ErrRoleUnknown is returned by a concrete channel's readyWithRole callback
// when roleName does not match any of its ChannelProperties.Roles.
var ErrRoleUnknown = rcerr.ErrUnknownRole
