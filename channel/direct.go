package channel

import (
	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/port"
	"github.com/twosix-race/racecomms/rcerr"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/wire"
)

// Direct is the Instance for a unicast, direct-TCP channel kind.
type Direct struct {
	*Base

	host    sdk.HostCallbacks
	connReg *conn.Registry
	ports   *port.Allocator
	duty    link.DutyCycle
	fault   link.FaultConfig
}

// NewDirect constructs a Direct channel instance over the given port range.
func NewDirect(base *Base, host sdk.HostCallbacks, connReg *conn.Registry,
	portMin, portMax int, duty link.DutyCycle, fault link.FaultConfig) *Direct {

	return &Direct{
		Base:    base,
		host:    host,
		connReg: connReg,
		ports:   port.New(portMin, portMax),
		duty:    duty,
		fault:   fault,
	}
}

func (d *Direct) newLink(id rctypes.LinkID, linkType rctypes.LinkType, hostname string, p int) *link.Link {
	props := rctypes.LinkProperties{
		LinkType:   linkType,
		ChannelGid: d.Gid(),
		MTU:        1500,
		Reliable:   true,
	}
	base := link.New(id, d.Gid(), linkType, props, d.host, d.connReg, d.duty, d.fault)
	link.NewDirectLink(base, hostname, p)
	base.Start()
	return base
}

// CreateLink allocates a fresh local port and asks the host for the
// hostname this node should be reachable at.
func (d *Direct) CreateLink(id rctypes.LinkID, linkType rctypes.LinkType) (*link.Link, error) {
	p, err := d.ports.Acquire()
	if err != nil {
		return nil, err
	}
	hostname := d.host.RequestCommonUserInput("hostname")
	if hostname == "" {
		hostname = "0.0.0.0"
	}
	return d.newLink(id, linkType, hostname, p), nil
}

// CreateLinkFromAddress instantiates a link bound to an address this node
// itself chooses to publish verbatim (e.g. operator-supplied), marking its
// port as in-use.
func (d *Direct) CreateLinkFromAddress(id rctypes.LinkID, linkType rctypes.LinkType, address string) (*link.Link, error) {
	a, err := wire.ParseDirectAddress(address)
	if err != nil {
		return nil, err
	}
	d.ports.Mark(a.Port)
	return d.newLink(id, linkType, a.Hostname, a.Port), nil
}

// LoadLinkAddress instantiates a link for a peer-published address this
// node will dial out to; no local port is consumed since DirectLink's
// receive side binds its own listener separately from the remote address
// it sends to. The port is still marked so a local CreateLink never
// collides with a peer address coincidentally equal to one of our own.
func (d *Direct) LoadLinkAddress(id rctypes.LinkID, address string) (*link.Link, error) {
	a, err := wire.ParseDirectAddress(address)
	if err != nil {
		return nil, err
	}
	d.ports.Mark(a.Port)
	return d.newLink(id, rctypes.LinkSend, a.Hostname, a.Port), nil
}

// CreateBootstrapLink is not supported by a direct channel.
func (d *Direct) CreateBootstrapLink(rctypes.LinkID, string) (*link.Link, error) {
	return nil, rcerr.ErrRoleViolation
}
