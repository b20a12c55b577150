package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"

	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

// consoleHost is a minimal sdk.HostCallbacks good enough to drive one
// CommsCore from a terminal: identifiers are handed out sequentially, status
// changes are logged, user-input prompts fall back to stdin, and file I/O is
// rooted at a directory on disk -- mirroring how a real RACE node's SDK
// layer would back these calls, just without the cross-language ABI.
type consoleHost struct {
	label   string
	persona string
	auxDir  string

	requestedHostname string

	linkSeq int
	connSeq int

	lastLinkID rctypes.LinkID
	lastConnID rctypes.ConnectionID
}

func newConsoleHost(ctx *cli.Context, label string) *consoleHost {
	auxDir := ctx.GlobalString("aux-dir")
	if err := os.MkdirAll(auxDir, 0o700); err != nil {
		fatal(fmt.Errorf("creating aux dir %s: %w", auxDir, err))
	}
	etcDir := ctx.GlobalString("etc-dir")
	if err := os.MkdirAll(etcDir, 0o700); err != nil {
		fatal(fmt.Errorf("creating etc dir %s: %w", etcDir, err))
	}
	return &consoleHost{
		label:   label,
		persona: ctx.GlobalString("persona"),
		auxDir:  auxDir,
	}
}

func (h *consoleHost) GenerateLinkID(gid rctypes.ChannelGid) rctypes.LinkID {
	h.linkSeq++
	id := rctypes.LinkID(fmt.Sprintf("%s-link-%d", gid, h.linkSeq))
	h.lastLinkID = id
	return id
}

func (h *consoleHost) GenerateConnectionID(linkID rctypes.LinkID) rctypes.ConnectionID {
	h.connSeq++
	id := rctypes.ConnectionID(fmt.Sprintf("%s-conn-%d", linkID, h.connSeq))
	h.lastConnID = id
	return id
}

func (h *consoleHost) GetActivePersona() string { return h.persona }

func (h *consoleHost) GetChannelProperties(rctypes.ChannelGid) rctypes.ChannelProperties {
	return rctypes.ChannelProperties{}
}

func (h *consoleHost) UpdateLinkProperties(linkID rctypes.LinkID, props rctypes.LinkProperties, _ int) {
	log.Debugf("%s: link %v properties updated: %+v", h.label, linkID, props)
}

func (h *consoleHost) OnLinkStatusChanged(_ rctypes.RaceHandle, linkID rctypes.LinkID, status rctypes.LinkStatus, _ rctypes.LinkProperties, _ int) {
	log.Infof("%s: link %v -> %v", h.label, linkID, linkStatusString(status))
}

func (h *consoleHost) OnConnectionStatusChanged(_ rctypes.RaceHandle, connID rctypes.ConnectionID, status rctypes.ConnectionStatus, _ rctypes.LinkProperties, _ int) {
	log.Infof("%s: connection %v -> %v", h.label, connID, connStatusString(status))
}

func (h *consoleHost) OnChannelStatusChanged(_ rctypes.RaceHandle, gid rctypes.ChannelGid, status rctypes.ChannelStatus, _ rctypes.ChannelProperties, _ int) {
	log.Infof("%s: channel %v -> %v", h.label, gid, status)
}

func (h *consoleHost) OnPackageStatusChanged(_ rctypes.RaceHandle, status rctypes.PackageStatus, _ int) {
	log.Infof("%s: package -> %v", h.label, packageStatusString(status))
}

func (h *consoleHost) ReceiveEncPkg(pkg wire.EncPkg, connIDs []rctypes.ConnectionID, _ int) {
	fmt.Printf("%s: received %d bytes on %v: %q\n", h.label, len(pkg.CipherText), connIDs, string(pkg.CipherText))
}

func (h *consoleHost) RequestPluginUserInput(key, prompt string, _ bool) string {
	return h.prompt(key, prompt)
}

func (h *consoleHost) RequestCommonUserInput(key string) string {
	if key == "hostname" && h.requestedHostname != "" {
		return h.requestedHostname
	}
	return h.prompt(key, key)
}

func (h *consoleHost) prompt(key, prompt string) string {
	fmt.Printf("%s [%s]: ", prompt, key)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func (h *consoleHost) DisplayInfoToUser(data string, _ int) {
	fmt.Printf("%s: %s\n", h.label, data)
}

func (h *consoleHost) DisplayBootstrapInfoToUser(data string, _, _ int) {
	fmt.Printf("%s (bootstrap): %s\n", h.label, data)
}

func (h *consoleHost) UnblockQueue(connID rctypes.ConnectionID) {
	log.Tracef("%s: queue unblocked for %v", h.label, connID)
}

func (h *consoleHost) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(h.auxDir, p)
}

func (h *consoleHost) ReadFile(p string) ([]byte, error) { return os.ReadFile(h.path(p)) }

func (h *consoleHost) WriteFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(h.path(p)), 0o700); err != nil {
		return err
	}
	return os.WriteFile(h.path(p), data, 0o600)
}

func (h *consoleHost) AppendFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(h.path(p)), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path(p), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (h *consoleHost) ListDir(p string) ([]string, error) {
	entries, err := os.ReadDir(h.path(p))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (h *consoleHost) MakeDir(p string) error { return os.MkdirAll(h.path(p), 0o700) }

func (h *consoleHost) RemoveDir(p string) error { return os.RemoveAll(h.path(p)) }

func linkStatusString(s rctypes.LinkStatus) string {
	switch s {
	case rctypes.LinkCreated:
		return "CREATED"
	case rctypes.LinkLoaded:
		return "LOADED"
	case rctypes.LinkDestroyed:
		return "DESTROYED"
	default:
		return "UNDEF"
	}
}

func connStatusString(s rctypes.ConnectionStatus) string {
	switch s {
	case rctypes.ConnectionOpen:
		return "OPEN"
	case rctypes.ConnectionAvailable:
		return "AVAILABLE"
	case rctypes.ConnectionUnavailable:
		return "UNAVAILABLE"
	case rctypes.ConnectionClosed:
		return "CLOSED"
	default:
		return "UNDEF"
	}
}

func packageStatusString(s rctypes.PackageStatus) string {
	switch s {
	case rctypes.PackageSent:
		return "SENT"
	case rctypes.PackageFailedGeneric:
		return "FAILED_GENERIC"
	case rctypes.PackageFailedTimeout:
		return "FAILED_TIMEOUT"
	case rctypes.PackageInvalid:
		return "INVALID"
	default:
		return "UNDEF"
	}
}
