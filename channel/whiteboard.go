package channel

import (
	"net/http"

	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rcerr"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/wire"
)

// Whiteboard is the Instance for a multicast, HTTP-bulletin-board channel
// kind.
type Whiteboard struct {
	*Base

	host       sdk.HostCallbacks
	connReg    *conn.Registry
	httpClient *http.Client
	cursors    link.CursorStore
	duty       link.DutyCycle
	fault      link.FaultConfig

	defaultHostname   string
	defaultPort       int
	defaultPollMS     int
	defaultMaxTries   int
}

// WhiteboardConfig bundles the defaults a newly *created* (not loaded) whiteboard
// link uses for its bulletin-board tag parameters.
type WhiteboardConfig struct {
	Hostname string
	Port     int
	PollMS   int
	MaxTries int
}

// NewWhiteboard constructs a Whiteboard channel instance.
func NewWhiteboard(base *Base, host sdk.HostCallbacks, connReg *conn.Registry,
	httpClient *http.Client, cursors link.CursorStore, cfg WhiteboardConfig,
	duty link.DutyCycle, fault link.FaultConfig) *Whiteboard {

	return &Whiteboard{
		Base:            base,
		host:            host,
		connReg:         connReg,
		httpClient:      httpClient,
		cursors:         cursors,
		duty:            duty,
		fault:           fault,
		defaultHostname: cfg.Hostname,
		defaultPort:     cfg.Port,
		defaultPollMS:   cfg.PollMS,
		defaultMaxTries: cfg.MaxTries,
	}
}

func (w *Whiteboard) newLink(id rctypes.LinkID, linkType rctypes.LinkType, a wire.WhiteboardAddress) *link.Link {
	props := rctypes.LinkProperties{
		LinkType:   linkType,
		ChannelGid: w.Gid(),
		MTU:        1500,
	}
	base := link.New(id, w.Gid(), linkType, props, w.host, w.connReg, w.duty, w.fault)
	client := newHTTPWhiteboardClient(w.httpClient, a.Hostname, a.Port)
	link.NewWhiteboardLink(base, a.Hostname, a.Port, a.Hashtag,
		a.CheckFrequency, a.MaxTries, a.Timestamp, client, w.cursors)
	base.Start()
	return base
}

// CreateLink mints a fresh hashtag under the channel's default bulletin
// board and builds a whiteboard link for it.
func (w *Whiteboard) CreateLink(id rctypes.LinkID, linkType rctypes.LinkType) (*link.Link, error) {
	tag := wire.SanitizeHashtag(string(id))
	return w.newLink(id, linkType, wire.WhiteboardAddress{
		Hostname:       w.defaultHostname,
		Port:           w.defaultPort,
		Hashtag:        tag,
		CheckFrequency: w.defaultPollMS,
		MaxTries:       w.defaultMaxTries,
	}), nil
}

// CreateLinkFromAddress builds a whiteboard link for an address this node
// itself is choosing to publish.
func (w *Whiteboard) CreateLinkFromAddress(id rctypes.LinkID, linkType rctypes.LinkType, address string) (*link.Link, error) {
	a, err := wire.ParseWhiteboardAddress(address)
	if err != nil {
		return nil, err
	}
	return w.newLink(id, linkType, a), nil
}

// LoadLinkAddress builds a whiteboard link for a peer-published address.
func (w *Whiteboard) LoadLinkAddress(id rctypes.LinkID, address string) (*link.Link, error) {
	a, err := wire.ParseWhiteboardAddress(address)
	if err != nil {
		return nil, err
	}
	return w.newLink(id, rctypes.LinkBidi, a), nil
}

// CreateBootstrapLink is not supported by a whiteboard channel.
func (w *Whiteboard) CreateBootstrapLink(rctypes.LinkID, string) (*link.Link, error) {
	return nil, rcerr.ErrRoleViolation
}
