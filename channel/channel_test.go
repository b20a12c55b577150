package channel

import (
	"testing"

	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/link"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

func fakeLink(t *testing.T, host *fakeHost, id rctypes.LinkID) *link.Link {
	t.Helper()
	connReg := conn.NewRegistry()
	return link.New(id, "TestChannel", rctypes.LinkSend, rctypes.LinkProperties{},
		host, connReg, link.DutyCycle{}, link.FaultConfig{})
}

// fakeHost is a no-op sdk.HostCallbacks good enough to exercise Base's
// activation/gate logic without a real host process.
type fakeHost struct {
	lastChannelStatus rctypes.ChannelStatus
	lastLinkStatus    rctypes.LinkStatus
}

func (f *fakeHost) GenerateLinkID(rctypes.ChannelGid) rctypes.LinkID        { return "link-1" }
func (f *fakeHost) GenerateConnectionID(rctypes.LinkID) rctypes.ConnectionID { return "conn-1" }
func (f *fakeHost) GetActivePersona() string                                { return "persona" }
func (f *fakeHost) GetChannelProperties(rctypes.ChannelGid) rctypes.ChannelProperties {
	return rctypes.ChannelProperties{}
}
func (f *fakeHost) UpdateLinkProperties(rctypes.LinkID, rctypes.LinkProperties, int) {}
func (f *fakeHost) OnLinkStatusChanged(_ rctypes.RaceHandle, _ rctypes.LinkID, status rctypes.LinkStatus, _ rctypes.LinkProperties, _ int) {
	f.lastLinkStatus = status
}
func (f *fakeHost) OnConnectionStatusChanged(rctypes.RaceHandle, rctypes.ConnectionID, rctypes.ConnectionStatus, rctypes.LinkProperties, int) {
}
func (f *fakeHost) OnChannelStatusChanged(_ rctypes.RaceHandle, _ rctypes.ChannelGid, status rctypes.ChannelStatus, _ rctypes.ChannelProperties, _ int) {
	f.lastChannelStatus = status
}
func (f *fakeHost) OnPackageStatusChanged(rctypes.RaceHandle, rctypes.PackageStatus, int) {}
func (f *fakeHost) ReceiveEncPkg(wire.EncPkg, []rctypes.ConnectionID, int)                {}
func (f *fakeHost) RequestPluginUserInput(string, string, bool) string                    { return "" }
func (f *fakeHost) RequestCommonUserInput(string) string                                  { return "" }
func (f *fakeHost) DisplayInfoToUser(string, int)                                         {}
func (f *fakeHost) DisplayBootstrapInfoToUser(string, int, int)                           {}
func (f *fakeHost) UnblockQueue(rctypes.ConnectionID)                                      {}
func (f *fakeHost) ReadFile(string) ([]byte, error)                                        { return nil, nil }
func (f *fakeHost) WriteFile(string, []byte) error                                         { return nil }
func (f *fakeHost) AppendFile(string, []byte) error                                        { return nil }
func (f *fakeHost) ListDir(string) ([]string, error)                                       { return nil, nil }
func (f *fakeHost) MakeDir(string) error                                                   { return nil }
func (f *fakeHost) RemoveDir(string) error                                                 { return nil }

func creatorRole() rctypes.Role  { return rctypes.Role{Name: "creator", LinkSide: rctypes.LinkSideCreator} }
func loaderRole() rctypes.Role   { return rctypes.Role{Name: "loader", LinkSide: rctypes.LinkSideLoader} }
func bothRole() rctypes.Role     { return rctypes.Role{Name: "both", LinkSide: rctypes.LinkSideBoth} }

func activated(t *testing.T, host *fakeHost, role rctypes.Role, maxLinks int) *Base {
	t.Helper()
	b := NewBase("TestChannel", host, rctypes.ChannelProperties{MaxLinks: maxLinks})
	b.Activate(rctypes.NullRaceHandle, role.Name, func(string) (rctypes.Role, error) {
		return role, nil
	})
	if b.Properties().ChannelStatus != rctypes.ChannelAvailable {
		t.Fatalf("expected channel AVAILABLE after Activate, got %v", b.Properties().ChannelStatus)
	}
	return b
}

func TestGateRefusesWhenChannelNotAvailable(t *testing.T) {
	host := &fakeHost{}
	b := NewBase("TestChannel", host, rctypes.ChannelProperties{MaxLinks: 10})
	// never activated -> still UNAVAILABLE
	if b.Gate(OpCreate) {
		t.Fatal("expected Gate to refuse on an unavailable channel")
	}
}

func TestGateRefusesAtMaxLinks(t *testing.T) {
	host := &fakeHost{}
	b := activated(t, host, bothRole(), 1)
	b.LinkCreated(rctypes.NullRaceHandle, fakeLink(t, host, "link-1"), false)
	if b.Gate(OpCreate) {
		t.Fatal("expected Gate to refuse once numLinks reaches maxLinks")
	}
}

func TestGateEnforcesLinkSideForCreateVsLoad(t *testing.T) {
	host := &fakeHost{}

	loaderOnly := activated(t, host, loaderRole(), 10)
	if loaderOnly.Gate(OpCreate) {
		t.Fatal("a LOADER-only role must not pass the create-side gate")
	}
	if !loaderOnly.Gate(OpLoadAddress) {
		t.Fatal("a LOADER-only role should pass the load-side gate")
	}

	host2 := &fakeHost{}
	creatorOnly := activated(t, host2, creatorRole(), 10)
	if creatorOnly.Gate(OpLoadAddress) {
		t.Fatal("a CREATOR-only role must not pass the load-side gate")
	}
	if !creatorOnly.Gate(OpCreate) {
		t.Fatal("a CREATOR-only role should pass the create-side gate")
	}
}

func TestGateRefusesUndefinedRole(t *testing.T) {
	host := &fakeHost{}
	b := NewBase("TestChannel", host, rctypes.ChannelProperties{MaxLinks: 10})
	b.Activate(rctypes.NullRaceHandle, "undef", func(string) (rctypes.Role, error) {
		return rctypes.Role{Name: "undef", LinkSide: rctypes.LinkSideUndef}, nil
	})
	if b.Gate(OpCreate) || b.Gate(OpLoadAddress) || b.Gate(OpBootstrap) {
		t.Fatal("an UNDEF-side role must fail every gate")
	}
}

func TestActivateFailureTransitionsToFailed(t *testing.T) {
	host := &fakeHost{}
	b := NewBase("TestChannel", host, rctypes.ChannelProperties{})
	b.Activate(rctypes.NullRaceHandle, "broken", func(string) (rctypes.Role, error) {
		return rctypes.Role{}, ErrRoleUnknown
	})
	if b.Properties().ChannelStatus != rctypes.ChannelFailed {
		t.Fatalf("expected FAILED after a failing activation, got %v", b.Properties().ChannelStatus)
	}
}

func TestLinkDestroyedDecrementsNumLinks(t *testing.T) {
	host := &fakeHost{}
	b := activated(t, host, bothRole(), 10)
	b.LinkCreated(rctypes.NullRaceHandle, fakeLink(t, host, "link-1"), false)
	b.LinkCreated(rctypes.NullRaceHandle, fakeLink(t, host, "link-2"), false)
	if got := b.NumLinks(); got != 2 {
		t.Fatalf("got numLinks=%d want 2", got)
	}
	b.LinkDestroyed()
	if got := b.NumLinks(); got != 1 {
		t.Fatalf("got numLinks=%d want 1", got)
	}
}
