package link

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

// directSoftAcceptErrors are the transient accept() failure strings the
// original implementation tolerates without tearing down the listener
// (spec.md §4.5): ENETDOWN, EPROTO, ENOPROTOOPT, EHOSTDOWN, ENONET,
// EHOSTUNREACH, EOPNOTSUPP, ENETUNREACH. Go's net package does not expose
// these as typed sentinels uniformly across platforms, so they are matched
// by substring against the listener error, mirroring how lnd's accept loops
// (e.g. its connmgr) tolerate transient listener errors without aborting.
var directSoftAcceptErrors = []string{
	"network is down",
	"protocol error",
	"protocol not available",
	"host is down",
	"no such device",
	"no route to host",
	"operation not supported",
	"network is unreachable",
}

func isSoftAcceptError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range directSoftAcceptErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// DirectLink is a unicast, direct-TCP link: SendInternal dials out one
// connection per package, and the receive side runs an accept loop that
// drains each inbound connection to EOF.
type DirectLink struct {
	*Link

	hostname string
	port     int

	listenerMu sync.Mutex
	listener   net.Listener
	receiving  int32 // atomic
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewDirectLink constructs a DirectLink and wires it into base.
func NewDirectLink(base *Link, hostname string, port int) *DirectLink {
	d := &DirectLink{Link: base, hostname: hostname, port: port}
	base.SetTransport(d)
	return d
}

// Address emits {hostname,port}.
func (d *DirectLink) Address() string {
	return wire.DirectAddress{Hostname: d.hostname, Port: d.port}.Emit()
}

// SendInternal connects to (hostname, port), writes the full raw-encoded
// package in one send, and closes. EADDRNOTAVAIL is retried with a 10ms
// back-off (warned after 50 retries); any other failure is a package
// failure, not a link failure, so it returns ok=true with a
// PACKAGE_FAILED_GENERIC report.
func (d *DirectLink) SendInternal(handle rctypes.RaceHandle, pkg wire.EncPkg) bool {
	addr := net.JoinHostPort(d.hostname, fmt.Sprintf("%d", d.port))
	raw := wire.Encode(pkg)

	var conn net.Conn
	var err error
	for attempt := 0; ; attempt++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if !isAddrNotAvailable(err) {
			break
		}
		if attempt == 50 {
			log.Warnf("direct link %v: still retrying connect to %v after 50 attempts: %v", d.id, addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		log.Errorf("direct link %v: send to %v failed: %v", d.id, addr, err)
		d.host.OnPackageStatusChanged(handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
		return true
	}
	defer conn.Close()

	n, err := conn.Write(raw)
	if err != nil || n != len(raw) {
		log.Errorf("direct link %v: short/failed write to %v: n=%d err=%v", d.id, addr, n, err)
		d.host.OnPackageStatusChanged(handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
		return true
	}

	d.host.OnPackageStatusChanged(handle, rctypes.PackageSent, rctypes.RaceBlocking)
	return true
}

func isAddrNotAvailable(err error) bool {
	return contains(err.Error(), "cannot assign requested address") ||
		contains(err.Error(), "address not available")
}

// StartReceive binds 0.0.0.0:port and begins accepting connections.
func (d *DirectLink) StartReceive() {
	if !atomic.CompareAndSwapInt32(&d.receiving, 0, 1) {
		return
	}
	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.acceptLoop()
}

// StopReceive unblocks the accept loop and waits for it to exit.
func (d *DirectLink) StopReceive() {
	if !atomic.CompareAndSwapInt32(&d.receiving, 1, 0) {
		return
	}
	close(d.stopCh)
	d.listenerMu.Lock()
	if d.listener != nil {
		d.listener.Close()
	}
	d.listenerMu.Unlock()
	d.wg.Wait()
}

// ShutdownInternal tears down the listener if still running.
func (d *DirectLink) ShutdownInternal() {
	d.StopReceive()
}

func (d *DirectLink) acceptLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", d.port))
		if err != nil {
			log.Errorf("direct link %v: bind 0.0.0.0:%d failed: %v", d.id, d.port, err)
			select {
			case <-d.stopCh:
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		d.listenerMu.Lock()
		d.listener = ln
		d.listenerMu.Unlock()

		d.serve(ln)

		select {
		case <-d.stopCh:
			return
		default:
			log.Warnf("direct link %v: accept loop exited, retrying bind in 5s", d.id)
			time.Sleep(5 * time.Second)
		}
	}
}

func (d *DirectLink) serve(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-d.stopCh:
				return
			default:
			}
			if isSoftAcceptError(err) {
				continue
			}
			log.Errorf("direct link %v: accept failed, rebinding: %v", d.id, err)
			ln.Close()
			return
		}
		go d.drain(c)
	}
}

func (d *DirectLink) drain(c net.Conn) {
	defer c.Close()

	var buf []byte
	chunk := make([]byte, 1024)
	for {
		n, err := c.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("direct link %v: read error before EOF: %v", d.id, err)
			break
		}
	}
	if len(buf) == 0 {
		return
	}
	d.ReceiveEncoded(buf)
}
