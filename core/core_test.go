package core

import (
	"testing"

	"github.com/twosix-race/racecomms/channel"
	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/wire"
)

// fakeHost is a no-op sdk.HostCallbacks good enough to drive CommsCore
// without a real host process.
type fakeHost struct {
	nextLinkID int
	nextConnID int

	lastChannelStatus rctypes.ChannelStatus
	lastLinkStatus    rctypes.LinkStatus
	lastConnStatus    rctypes.ConnectionStatus
	lastPkgStatus     rctypes.PackageStatus
}

func (f *fakeHost) GenerateLinkID(rctypes.ChannelGid) rctypes.LinkID {
	f.nextLinkID++
	return rctypes.LinkID("link")
}
func (f *fakeHost) GenerateConnectionID(rctypes.LinkID) rctypes.ConnectionID {
	f.nextConnID++
	return rctypes.ConnectionID("conn")
}
func (f *fakeHost) GetActivePersona() string { return "persona" }
func (f *fakeHost) GetChannelProperties(rctypes.ChannelGid) rctypes.ChannelProperties {
	return rctypes.ChannelProperties{}
}
func (f *fakeHost) UpdateLinkProperties(rctypes.LinkID, rctypes.LinkProperties, int) {}
func (f *fakeHost) OnLinkStatusChanged(_ rctypes.RaceHandle, _ rctypes.LinkID, status rctypes.LinkStatus, _ rctypes.LinkProperties, _ int) {
	f.lastLinkStatus = status
}
func (f *fakeHost) OnConnectionStatusChanged(_ rctypes.RaceHandle, _ rctypes.ConnectionID, status rctypes.ConnectionStatus, _ rctypes.LinkProperties, _ int) {
	f.lastConnStatus = status
}
func (f *fakeHost) OnChannelStatusChanged(_ rctypes.RaceHandle, _ rctypes.ChannelGid, status rctypes.ChannelStatus, _ rctypes.ChannelProperties, _ int) {
	f.lastChannelStatus = status
}
func (f *fakeHost) OnPackageStatusChanged(_ rctypes.RaceHandle, status rctypes.PackageStatus, _ int) {
	f.lastPkgStatus = status
}
func (f *fakeHost) ReceiveEncPkg(wire.EncPkg, []rctypes.ConnectionID, int) {}
func (f *fakeHost) RequestPluginUserInput(string, string, bool) string    { return "" }
func (f *fakeHost) RequestCommonUserInput(string) string                  { return "" }
func (f *fakeHost) DisplayInfoToUser(string, int)                         {}
func (f *fakeHost) DisplayBootstrapInfoToUser(string, int, int)           {}
func (f *fakeHost) UnblockQueue(rctypes.ConnectionID)                     {}
func (f *fakeHost) ReadFile(string) ([]byte, error)                       { return nil, nil }
func (f *fakeHost) WriteFile(string, []byte) error                       { return nil }
func (f *fakeHost) AppendFile(string, []byte) error                      { return nil }
func (f *fakeHost) ListDir(string) ([]string, error)                     { return nil, nil }
func (f *fakeHost) MakeDir(string) error                                 { return nil }
func (f *fakeHost) RemoveDir(string) error                               { return nil }

// fakeInstance is a channel.Instance whose factories either succeed (wrapping
// a real link.Link so CommsCore can exercise it end to end) or fail, for
// exercising gateAndBuild's error path.
type fakeInstance struct {
	host    *fakeHost
	connReg *conn.Registry
	fail    bool
}

func (fi *fakeInstance) build(id rctypes.LinkID, typ rctypes.LinkType) (*link.Link, error) {
	if fi.fail {
		return nil, errFakeFactory
	}
	l := link.New(id, "TestChannel", typ, rctypes.LinkProperties{ChannelGid: "TestChannel"},
		fi.host, fi.connReg, link.DutyCycle{}, link.FaultConfig{})
	link.NewDirectLink(l, "127.0.0.1", 0)
	l.Start()
	return l, nil
}

func (fi *fakeInstance) CreateLink(id rctypes.LinkID, typ rctypes.LinkType) (*link.Link, error) {
	return fi.build(id, typ)
}
func (fi *fakeInstance) CreateLinkFromAddress(id rctypes.LinkID, typ rctypes.LinkType, _ string) (*link.Link, error) {
	return fi.build(id, typ)
}
func (fi *fakeInstance) LoadLinkAddress(id rctypes.LinkID, _ string) (*link.Link, error) {
	return fi.build(id, rctypes.LinkBidi)
}
func (fi *fakeInstance) CreateBootstrapLink(id rctypes.LinkID, _ string) (*link.Link, error) {
	return fi.build(id, rctypes.LinkSend)
}

type fakeFactoryErr string

func (e fakeFactoryErr) Error() string { return string(e) }

const errFakeFactory = fakeFactoryErr("fake factory refused")

func newTestCore(t *testing.T, host *fakeHost, maxLinks int, roleSide rctypes.LinkSide) (*CommsCore, *fakeInstance) {
	t.Helper()

	connReg := conn.NewRegistry()
	chanReg := channel.NewRegistry()
	inst := &fakeInstance{host: host, connReg: connReg}

	chanReg.Register("TestChannel", func() (*channel.Base, channel.Instance) {
		base := channel.NewBase("TestChannel", host, rctypes.ChannelProperties{
			MaxLinks: maxLinks,
			Roles:    []rctypes.Role{{Name: "both", LinkSide: roleSide}},
		})
		return base, inst
	})

	c := New(host, chanReg, connReg)
	if err := c.Init(sdk.Config{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c, inst
}

func TestActivateThenCreateLinkSucceeds(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)

	if resp := c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "both"); resp != rctypes.PluginOK {
		t.Fatalf("ActivateChannel = %v", resp)
	}
	if host.lastChannelStatus != rctypes.ChannelAvailable {
		t.Fatalf("expected channel AVAILABLE, got %v", host.lastChannelStatus)
	}

	if resp := c.CreateLink(rctypes.NullRaceHandle, "TestChannel"); resp != rctypes.PluginOK {
		t.Fatalf("CreateLink = %v", resp)
	}
	if host.lastLinkStatus != rctypes.LinkCreated {
		t.Fatalf("expected LinkCreated, got %v", host.lastLinkStatus)
	}
}

func TestCreateLinkRefusedBeforeActivation(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)

	if resp := c.CreateLink(rctypes.NullRaceHandle, "TestChannel"); resp != rctypes.PluginOK {
		t.Fatalf("CreateLink = %v", resp)
	}
	if host.lastLinkStatus != rctypes.LinkDestroyed {
		t.Fatalf("expected the gate refusal to report LinkDestroyed, got %v", host.lastLinkStatus)
	}
}

func TestCreateLinkFactoryFailureReportsDestroyed(t *testing.T) {
	host := &fakeHost{}
	c, inst := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "both")

	inst.fail = true
	if resp := c.CreateLink(rctypes.NullRaceHandle, "TestChannel"); resp != rctypes.PluginOK {
		t.Fatalf("CreateLink = %v", resp)
	}
	if host.lastLinkStatus != rctypes.LinkDestroyed {
		t.Fatalf("expected LinkDestroyed after factory failure, got %v", host.lastLinkStatus)
	}
}

func TestOpenConnectionSendPackageAndDestroyLink(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "both")
	c.CreateLink(rctypes.NullRaceHandle, "TestChannel")

	linkID := rctypes.LinkID("link")
	if resp := c.OpenConnection(rctypes.NullRaceHandle, rctypes.LinkBidi, linkID, "", rctypes.RaceUnlimited); resp != rctypes.PluginOK {
		t.Fatalf("OpenConnection = %v", resp)
	}
	if host.lastConnStatus != rctypes.ConnectionOpen {
		t.Fatalf("expected ConnectionOpen, got %v", host.lastConnStatus)
	}

	connID := rctypes.ConnectionID("conn")
	pkg := wire.EncPkg{CipherText: []byte("hello")}
	if resp := c.SendPackage(rctypes.NullRaceHandle, connID, pkg, 0, 0); resp != rctypes.PluginOK {
		t.Fatalf("SendPackage = %v", resp)
	}

	if resp := c.DestroyLink(rctypes.NullRaceHandle, linkID); resp != rctypes.PluginOK {
		t.Fatalf("DestroyLink = %v", resp)
	}
	if host.lastLinkStatus != rctypes.LinkDestroyed {
		t.Fatalf("expected LinkDestroyed after DestroyLink, got %v", host.lastLinkStatus)
	}
	if _, ok := c.getLink(linkID); ok {
		t.Fatal("expected link to be removed from the registry after DestroyLink")
	}
}

func TestDestroyLinkUnknownIDIsPluginError(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	if resp := c.DestroyLink(rctypes.NullRaceHandle, "nonexistent"); resp != rctypes.PluginError {
		t.Fatalf("DestroyLink(unknown) = %v, want PluginError", resp)
	}
}

func TestCloseConnectionUnknownIDIsBenignOK(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	if resp := c.CloseConnection(rctypes.NullRaceHandle, "nonexistent"); resp != rctypes.PluginOK {
		t.Fatalf("CloseConnection(unknown) = %v, want PluginOK (benign race)", resp)
	}
	if host.lastConnStatus != rctypes.ConnectionClosed {
		t.Fatalf("expected ConnectionClosed even for an unknown id, got %v", host.lastConnStatus)
	}
}

func TestDeactivateChannelDestroysOwnedLinks(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "both")
	c.CreateLink(rctypes.NullRaceHandle, "TestChannel")

	if resp := c.DeactivateChannel(rctypes.NullRaceHandle, "TestChannel"); resp != rctypes.PluginOK {
		t.Fatalf("DeactivateChannel = %v", resp)
	}
	if host.lastChannelStatus != rctypes.ChannelUnavailable {
		t.Fatalf("expected channel UNAVAILABLE after deactivate, got %v", host.lastChannelStatus)
	}
	if _, ok := c.getLink("link"); ok {
		t.Fatal("expected DeactivateChannel to have destroyed the owned link")
	}
}

func TestActivateChannelUnknownRoleFails(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "nonexistent-role")
	if host.lastChannelStatus != rctypes.ChannelFailed {
		t.Fatalf("expected FAILED for an unknown role name, got %v", host.lastChannelStatus)
	}
}

func TestShutdownTearsDownEverything(t *testing.T) {
	host := &fakeHost{}
	c, _ := newTestCore(t, host, 10, rctypes.LinkSideBoth)
	c.ActivateChannel(rctypes.NullRaceHandle, "TestChannel", "both")
	c.CreateLink(rctypes.NullRaceHandle, "TestChannel")
	c.OpenConnection(rctypes.NullRaceHandle, rctypes.LinkBidi, "link", "", rctypes.RaceUnlimited)

	c.Shutdown()

	if _, ok := c.getLink("link"); ok {
		t.Fatal("expected Shutdown to remove every link")
	}
	if len(c.connReg.All()) != 0 {
		t.Fatal("expected Shutdown to remove every connection")
	}
}
