package channel

import (
	"github.com/twosix-race/racecomms/archive"
	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rcerr"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
)

// BootstrapFile is the Instance for the filesystem/HTTP bootstrap channel
// kind: it never moves ordinary EncPkg traffic, only serves a directory's
// contents to a joining peer (spec.md §4.11/§6 serveFiles).
type BootstrapFile struct {
	*Base

	host      sdk.HostCallbacks
	connReg   *conn.Registry
	directory string
}

// NewBootstrapFile constructs a BootstrapFile channel instance rooted at
// directory (the contents to publish to a joining peer).
func NewBootstrapFile(base *Base, host sdk.HostCallbacks, connReg *conn.Registry, directory string) *BootstrapFile {
	return &BootstrapFile{Base: base, host: host, connReg: connReg, directory: directory}
}

// CreateLink, CreateLinkFromAddress, LoadLinkAddress are not meaningful for
// a bootstrap channel; only CreateBootstrapLink builds links here.
func (bf *BootstrapFile) CreateLink(rctypes.LinkID, rctypes.LinkType) (*link.Link, error) {
	return nil, rcerr.ErrRoleViolation
}

func (bf *BootstrapFile) CreateLinkFromAddress(rctypes.LinkID, rctypes.LinkType, string) (*link.Link, error) {
	return nil, rcerr.ErrRoleViolation
}

func (bf *BootstrapFile) LoadLinkAddress(rctypes.LinkID, string) (*link.Link, error) {
	return nil, rcerr.ErrRoleViolation
}

// CreateBootstrapLink builds a link whose transport serves bf.directory to
// a joining peer. The passphrase is accepted to satisfy Instance and is not
// used: neither this link nor CommsCore passes it on to anything else.
func (bf *BootstrapFile) CreateBootstrapLink(id rctypes.LinkID, passphrase string) (*link.Link, error) {
	props := rctypes.LinkProperties{
		LinkType:   rctypes.LinkSend,
		ChannelGid: bf.Gid(),
	}
	base := link.New(id, bf.Gid(), rctypes.LinkSend, props, bf.host, bf.connReg,
		link.DutyCycle{}, link.FaultConfig{})
	link.NewBootstrapLink(base, bf.directory, archive.BuildBootstrapBundle)
	base.Start()
	return base, nil
}
