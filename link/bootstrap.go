package link

import (
	"net"
	"net/http"
	"sync"

	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

// BundleBuilder produces the bootstrap archive bytes for a directory, kept
// as an interface here so package link does not need to import package
// archive (archive has no reason to know about links).
type BundleBuilder func(dir string) ([]byte, error)

// BootstrapLink serves a directory's contents to a joining peer over plain
// HTTP, grounded on the original's BootstrapServer: it never carries
// ordinary EncPkg traffic through the duty-cycle send/receive pipeline, so
// SendInternal/StartReceive/StopReceive are no-ops, and Shutdown only needs
// to stop the HTTP server.
type BootstrapLink struct {
	*Link

	directory string
	build     BundleBuilder

	mu     sync.Mutex
	server *http.Server
	port   int
}

// NewBootstrapLink constructs a BootstrapLink bound to base.
func NewBootstrapLink(base *Link, directory string, build BundleBuilder) *BootstrapLink {
	b := &BootstrapLink{Link: base, directory: directory, build: build}
	base.SetTransport(b)
	return b
}

// AsBootstrap returns l's transport as a *BootstrapLink, for the serveFiles
// host call, which only makes sense against a bootstrap-channel link.
func AsBootstrap(l *Link) (*BootstrapLink, bool) {
	bl, ok := l.transport.(*BootstrapLink)
	return bl, ok
}

// Address emits {directory}, per spec.md §4.2 ("optional").
func (b *BootstrapLink) Address() string {
	return wire.BootstrapFileAddress{Directory: b.directory}.Emit()
}

// SendInternal is never actually exercised: nothing ever calls sendPackage
// against a bootstrap link's connections, since it serves a directory over
// plain HTTP instead of carrying EncPkg traffic. Present only so
// BootstrapLink satisfies Transport.
func (b *BootstrapLink) SendInternal(rctypes.RaceHandle, wire.EncPkg) bool { return true }

// StartReceive/StopReceive: bootstrap links have no duty-cycled receive
// path; ServeDirectory owns the HTTP listener's lifetime instead.
func (b *BootstrapLink) StartReceive() {}
func (b *BootstrapLink) StopReceive()  {}

// ShutdownInternal stops the HTTP server if ServeDirectory started one.
func (b *BootstrapLink) ShutdownInternal() {
	b.mu.Lock()
	srv := b.server
	b.server = nil
	b.mu.Unlock()

	if srv != nil {
		srv.Close()
	}
}

// ServeDirectory builds the bundle for b.directory and starts serving it
// over HTTP on an OS-assigned port, in response to the host's serveFiles
// call. Returns the port so the caller can fold it into what it tells the
// peer out of band (QR code, manual entry, ...).
func (b *BootstrapLink) ServeDirectory() (port int, err error) {
	bundle, err := b.build(b.directory)
	if err != nil {
		return 0, err
	}

	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return 0, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(bundle)
	})
	srv := &http.Server{Handler: mux}

	b.mu.Lock()
	b.server = srv
	b.port = ln.Addr().(*net.TCPAddr).Port
	b.mu.Unlock()

	go srv.Serve(ln)

	return b.port, nil
}
