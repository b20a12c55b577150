package link

import (
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

// Transport is the per-kind behaviour a concrete link (DirectLink,
// WhiteboardLink, ...) plugs into the shared Link base, per the "sealed
// variant + small interface" design in spec.md §9: the duty-cycle scheduler
// and fault injector live on Link and dispatch through this interface
// instead of a class hierarchy.
type Transport interface {
	// SendInternal attempts to deliver pkg once. ok is false only when the
	// transport itself has become unusable and the owning link must be
	// torn down (spec.md: "A false return terminates the send thread and
	// destroys the link"); a merely-failed individual send should instead
	// be reported to the host as PACKAGE_FAILED_GENERIC and return ok=true.
	SendInternal(handle rctypes.RaceHandle, pkg wire.EncPkg) (ok bool)

	// StartReceive begins the link's receive routine. Called when the
	// first RECV/BIDI connection is opened.
	StartReceive()

	// StopReceive halts the receive routine. Called when the last
	// RECV/BIDI connection is closed.
	StopReceive()

	// ShutdownInternal releases any transport-owned resources (listening
	// sockets, HTTP clients). Called once during Link.Shutdown.
	ShutdownInternal()

	// Address returns this link's emitted LinkAddress document.
	Address() string
}
