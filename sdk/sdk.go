// Package sdk defines the boundary between the comms core and the host
// application: the inbound PluginComms façade the host drives, and the
// outbound HostCallbacks the core drives back into the host. Mirrors the
// teacher's pattern of expressing an RPC-shaped boundary as a plain Go
// interface plus an injected implementation (see lnrpc.LightningServer and
// its rpcServer implementation in rpcserver.go), without inventing a new
// wire transport -- the host and core share a process.
package sdk

import (
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

// Config is the init(config) payload from spec.md §6.
type Config struct {
	EtcDirectory     string
	LoggingDirectory string
	AuxDataDirectory string
	TmpDirectory     string
	PluginDirectory  string
}

// PluginComms is the inbound façade the host calls into. Every operation
// returns a PluginResponse synchronously; the substantive result (if any)
// arrives later via a HostCallbacks method correlated by the RaceHandle
// passed in.
type PluginComms interface {
	Init(cfg Config) error
	Shutdown()

	SendPackage(handle rctypes.RaceHandle, connID rctypes.ConnectionID, pkg wire.EncPkg, timeoutTimestamp float64, batchID int64) rctypes.PluginResponse
	OpenConnection(handle rctypes.RaceHandle, linkType rctypes.LinkType, linkID rctypes.LinkID, hints string, sendTimeout int) rctypes.PluginResponse
	CloseConnection(handle rctypes.RaceHandle, connID rctypes.ConnectionID) rctypes.PluginResponse
	DestroyLink(handle rctypes.RaceHandle, linkID rctypes.LinkID) rctypes.PluginResponse

	CreateLink(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid) rctypes.PluginResponse
	CreateLinkFromAddress(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, address string) rctypes.PluginResponse
	LoadLinkAddress(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, address string) rctypes.PluginResponse
	LoadLinkAddresses(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, addresses []string) rctypes.PluginResponse
	CreateBootstrapLink(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, passphrase string) rctypes.PluginResponse

	ActivateChannel(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, roleName string) rctypes.PluginResponse
	DeactivateChannel(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid) rctypes.PluginResponse

	OnUserInputReceived(handle rctypes.RaceHandle, answered bool, response string) rctypes.PluginResponse
	OnUserAcknowledgementReceived(handle rctypes.RaceHandle) rctypes.PluginResponse

	FlushChannel(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, batchID int64) rctypes.PluginResponse
	ServeFiles(linkID rctypes.LinkID, path string) rctypes.PluginResponse
}

// HostCallbacks is the outbound surface the core drives into the host SDK.
// Implementations are assumed thread-safe and may themselves block; the
// core never holds an internal lock across one of these calls (§5).
type HostCallbacks interface {
	GenerateLinkID(channelGid rctypes.ChannelGid) rctypes.LinkID
	GenerateConnectionID(linkID rctypes.LinkID) rctypes.ConnectionID
	GetActivePersona() string
	GetChannelProperties(channelGid rctypes.ChannelGid) rctypes.ChannelProperties

	UpdateLinkProperties(linkID rctypes.LinkID, props rctypes.LinkProperties, timeout int)
	OnLinkStatusChanged(handle rctypes.RaceHandle, linkID rctypes.LinkID, status rctypes.LinkStatus, props rctypes.LinkProperties, timeout int)
	OnConnectionStatusChanged(handle rctypes.RaceHandle, connID rctypes.ConnectionID, status rctypes.ConnectionStatus, props rctypes.LinkProperties, timeout int)
	OnChannelStatusChanged(handle rctypes.RaceHandle, channelGid rctypes.ChannelGid, status rctypes.ChannelStatus, props rctypes.ChannelProperties, timeout int)
	OnPackageStatusChanged(handle rctypes.RaceHandle, status rctypes.PackageStatus, timeout int)

	ReceiveEncPkg(pkg wire.EncPkg, connIDs []rctypes.ConnectionID, timeout int)

	RequestPluginUserInput(key, prompt string, cache bool) string
	RequestCommonUserInput(key string) string
	DisplayInfoToUser(data string, displayType int)
	DisplayBootstrapInfoToUser(data string, displayType, actionType int)

	UnblockQueue(connID rctypes.ConnectionID)

	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
	ListDir(path string) ([]string, error)
	MakeDir(path string) error
	RemoveDir(path string) error
}
