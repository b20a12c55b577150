// Package rcerr collects the sentinel error kinds produced by the comms
// core, following the same package-level error-variable idiom the teacher
// uses in htlcswitch (ErrChannelLinkNotFound) and channeldb (ErrChanDB*).
package rcerr

import "github.com/go-errors/errors"

var (
	// ErrInvalidAddress is returned when a LinkAddress document fails to
	// parse.
	ErrInvalidAddress = errors.New("invalid link address")

	// ErrQueueFull names a send queue already at its depth cap. Link.Enqueue
	// does not return it; it reports that case as rctypes.PluginTempError.
	ErrQueueFull = errors.New("link send queue is full")

	// ErrLinkLost names a Connection whose weak link reference can no
	// longer be resolved because the owning link was destroyed.
	// conn.Connection.Link reports that case as ok=false, not as this error.
	ErrLinkLost = errors.New("link has been destroyed")

	// ErrRoleViolation is returned when a create/load operation is
	// attempted against a role whose linkSide forbids it.
	ErrRoleViolation = errors.New("operation not permitted for current role")

	// ErrChannelUnavailable is returned when a link operation is
	// attempted while the owning channel is not AVAILABLE.
	ErrChannelUnavailable = errors.New("channel is not available")

	// ErrLinkCountExceeded is returned when a channel is already at
	// maxLinks.
	ErrLinkCountExceeded = errors.New("channel has reached its link limit")

	// ErrNotMultiAddressable names a channel that does not support multiple
	// addresses per link. CommsCore.LoadLinkAddresses reports that case as
	// LINK_DESTROYED, not as this error.
	ErrNotMultiAddressable = errors.New("channel does not support multiple addresses")

	// ErrUnknownChannel is returned when an operation names a ChannelGid
	// the core has no registry entry for.
	ErrUnknownChannel = errors.New("unknown channel gid")

	// ErrUnknownLink is returned when an operation names a LinkID the
	// core has no record of.
	ErrUnknownLink = errors.New("unknown link id")

	// ErrUnknownConnection is returned when an operation names a
	// ConnectionID the core has no record of.
	ErrUnknownConnection = errors.New("unknown connection id")

	// ErrLinkTypeMismatch is returned by OpenConnection when the
	// requested connection type is incompatible with the link's type.
	ErrLinkTypeMismatch = errors.New("connection type incompatible with link type")

	// ErrTransportFatal is returned when a transport has exhausted its
	// retry budget and the link must be failed.
	ErrTransportFatal = errors.New("transport retries exhausted")

	// ErrInvalidPassphrase names a passphrase whose derived key cannot open
	// existing envelopes. storage.NewEnvelope does not check the passphrase
	// against anything already stored and never returns this error.
	ErrInvalidPassphrase = errors.New("storage passphrase does not match existing envelope")

	// ErrUnknownRole is returned by activateChannel when roleName does not
	// match any role in the channel's descriptor.
	ErrUnknownRole = errors.New("unknown role name")
)
