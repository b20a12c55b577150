// Package link implements the abstract Link base (duty-cycle send thread,
// fault injection, shutdown coordination) plus the two concrete transports
// that matter: DirectLink (TCP) and WhiteboardLink (HTTP bulletin board).
// The goroutine/quit-channel/WaitGroup shutdown idiom follows the teacher's
// peer.go (Start/Stop with atomic guards, p.quit, p.wg.Wait()).
package link

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twosix-race/racecomms/conn"
	"github.com/twosix-race/racecomms/metrics"
	"github.com/twosix-race/racecomms/rcerr"
	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/sdk"
	"github.com/twosix-race/racecomms/wire"
)

// maxQueueDepth is the design value from spec.md §3: bounded send-queue
// depth, exceeding it is a transient error rather than a drop or stall.
const maxQueueDepth = 10

// SendInfo is one queue entry: the package plus the metadata needed to
// report its outcome and to know when it has expired.
type SendInfo struct {
	Handle           rctypes.RaceHandle
	Pkg              wire.EncPkg
	TimeoutTimestamp float64
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Link is the shared base for every channel's link kind. Concrete
// transports (DirectLink, WhiteboardLink) embed *Link and supply a
// Transport implementation.
type Link struct {
	id         rctypes.LinkID
	channelGid rctypes.ChannelGid
	linkType   rctypes.LinkType
	props      rctypes.LinkProperties

	host    sdk.HostCallbacks
	connReg *conn.Registry

	fault FaultConfig
	rng   *rand.Rand

	transport Transport

	mu    sync.Mutex
	duty  *dutyState
	queue []SendInfo

	notify chan struct{}

	started      int32
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup

	receiveActive bool // guarded by mu; tracks whether StartReceive has been called
}

// New constructs a Link in its base (transport-less) state. The concrete
// constructor (NewDirectLink, NewWhiteboardLink) must call SetTransport
// before Start.
func New(id rctypes.LinkID, channelGid rctypes.ChannelGid, linkType rctypes.LinkType,
	props rctypes.LinkProperties, host sdk.HostCallbacks, connReg *conn.Registry,
	duty DutyCycle, fault FaultConfig) *Link {

	return &Link{
		id:         id,
		channelGid: channelGid,
		linkType:   linkType,
		props:      props,
		host:       host,
		connReg:    connReg,
		fault:      fault,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		duty:       newDutyState(duty),
		notify:     make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}
}

// SetTransport installs the per-kind behaviour. Must be called before
// Start.
func (l *Link) SetTransport(t Transport) { l.transport = t }

// ID returns the link's identifier (satisfies conn.LinkHandle).
func (l *Link) ID() rctypes.LinkID { return l.id }

// Type returns the link's type (satisfies conn.LinkHandle).
func (l *Link) Type() rctypes.LinkType { return l.linkType }

// ChannelGid returns the owning channel's gid.
func (l *Link) ChannelGid() rctypes.ChannelGid { return l.channelGid }

// Properties returns a copy of the link's (mostly static) properties.
func (l *Link) Properties() rctypes.LinkProperties { return l.props }

// Address returns the link's LinkAddress document.
func (l *Link) Address() string { return l.transport.Address() }

// Start launches the send thread iff the link's type is SEND or BIDI, per
// spec.md's invariant "A link's send thread exists iff the link's type is
// SEND or BIDI."
func (l *Link) Start() {
	if atomic.AddInt32(&l.started, 1) != 1 {
		return
	}
	if l.linkType == rctypes.LinkSend || l.linkType == rctypes.LinkBidi {
		l.wg.Add(1)
		go l.sendThread()
	}
}

func (l *Link) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Enqueue pushes a package onto the send queue, per the contract in
// spec.md §4.3.
func (l *Link) Enqueue(handle rctypes.RaceHandle, pkg wire.EncPkg, timeoutTimestamp float64) rctypes.PluginResponse {
	l.mu.Lock()

	if len(l.queue) >= maxQueueDepth {
		l.mu.Unlock()
		return rctypes.PluginTempError
	}

	if l.duty.sleeping && l.duty.nextChange > timeoutTimestamp {
		l.mu.Unlock()
		l.host.OnPackageStatusChanged(handle, rctypes.PackageFailedTimeout, rctypes.RaceBlocking)
		metrics.PackagesTotal.WithLabelValues("failed_timeout").Inc()
		return rctypes.PluginOK
	}

	l.queue = append(l.queue, SendInfo{Handle: handle, Pkg: pkg, TimeoutTimestamp: timeoutTimestamp})
	metrics.QueueDepth.WithLabelValues(string(l.id)).Set(float64(len(l.queue)))
	l.mu.Unlock()

	l.signal()
	return rctypes.PluginOK
}

// OpenConnection validates type compatibility and records a new Connection.
func (l *Link) OpenConnection(connID rctypes.ConnectionID, want rctypes.LinkType, hints string,
	sendTimeout int, resolve conn.Resolver) (*conn.Connection, error) {

	if !l.linkType.Compatible(want) {
		return nil, rcerr.ErrLinkTypeMismatch
	}

	c := conn.New(connID, l.id, want, hints, sendTimeout, resolve)
	l.connReg.Add(c)
	metrics.ConnectionsActive.WithLabelValues(string(l.id)).Inc()

	if want == rctypes.LinkRecv || want == rctypes.LinkBidi {
		l.mu.Lock()
		needStart := !l.receiveActive
		l.receiveActive = true
		l.mu.Unlock()
		if needStart {
			l.transport.StartReceive()
		}
	}

	return c, nil
}

// CloseConnection removes a connection by id; if it was the last
// receive-capable connection on this link, the transport's receiver is
// stopped.
func (l *Link) CloseConnection(connID rctypes.ConnectionID) {
	c, ok := l.connReg.Remove(connID)
	if !ok {
		return
	}
	metrics.ConnectionsActive.WithLabelValues(string(l.id)).Dec()

	if c.Type == rctypes.LinkRecv || c.Type == rctypes.LinkBidi {
		if len(l.receiveCapableConns()) == 0 {
			l.mu.Lock()
			l.receiveActive = false
			l.mu.Unlock()
			l.transport.StopReceive()
		}
	}
}

func (l *Link) receiveCapableConns() []*conn.Connection {
	var out []*conn.Connection
	for _, c := range l.connReg.Snapshot(l.id) {
		if c.Type == rctypes.LinkRecv || c.Type == rctypes.LinkBidi {
			out = append(out, c)
		}
	}
	return out
}

// connIDs returns the ids of every receive-capable connection on this link,
// for ReceiveEncPkg's conn_ids fan-out.
func (l *Link) connIDs() []rctypes.ConnectionID {
	caps := l.receiveCapableConns()
	ids := make([]rctypes.ConnectionID, len(caps))
	for i, c := range caps {
		ids[i] = c.ID
	}
	return ids
}

// Shutdown is cooperative and idempotent: two successive calls are
// observationally equivalent to one (spec.md §8).
func (l *Link) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
		l.signal()
		l.wg.Wait()

		l.mu.Lock()
		remaining := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, item := range remaining {
			l.host.OnPackageStatusChanged(item.Handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
			metrics.PackagesTotal.WithLabelValues("failed_generic").Inc()
		}

		l.transport.ShutdownInternal()

		l.host.OnLinkStatusChanged(rctypes.NullRaceHandle, l.id, rctypes.LinkDestroyed, l.props, rctypes.RaceBlocking)

		for _, c := range l.connReg.Snapshot(l.id) {
			l.connReg.Remove(c.ID)
			l.host.OnConnectionStatusChanged(rctypes.NullRaceHandle, c.ID, rctypes.ConnectionClosed, l.props, rctypes.RaceBlocking)
		}
	})
}

// sendThread is the duty-cycle main loop of spec.md §4.3.
func (l *Link) sendThread() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		now := nowSeconds()

		select {
		case <-l.shutdownCh:
			l.mu.Unlock()
			return
		default:
		}

		switch {
		case l.duty.shouldSleep(now):
			l.doSleep(now)
			l.mu.Unlock()
			continue

		case l.duty.shouldWake(now):
			l.duty.wake(now)
			l.wakeConnections()
			l.mu.Unlock()
			continue

		case !l.duty.sleeping && len(l.queue) > 0:
			item := l.queue[0]
			l.queue = l.queue[1:]
			l.duty.nextSleepAmount--
			metrics.QueueDepth.WithLabelValues(string(l.id)).Set(float64(len(l.queue)))
			l.mu.Unlock()

			for _, id := range l.connIDs() {
				l.host.UnblockQueue(id)
			}
			if !l.runSendPipeline(item) {
				// Shutdown waits for this goroutine to exit, so it must
				// run on another one.
				go l.Shutdown()
				return
			}
			continue
		}

		deadline := l.duty.nextChange
		l.mu.Unlock()
		l.waitForWork(deadline)
	}
}

// doSleep implements step 3 of spec.md §4.3. Must be called with l.mu held.
func (l *Link) doSleep(now float64) {
	l.duty.enterSleep(now)

	for _, c := range l.connReg.Snapshot(l.id) {
		if c.SendTimeout != rctypes.RaceUnlimited && float64(c.SendTimeout) < l.duty.cfg.SleepPeriodLength {
			c.SetAvailable(false)
			l.host.OnConnectionStatusChanged(rctypes.NullRaceHandle, c.ID, rctypes.ConnectionUnavailable, l.props, rctypes.RaceBlocking)
		}
	}

	var kept []SendInfo
	var timedOut []SendInfo
	for _, item := range l.queue {
		if item.TimeoutTimestamp < l.duty.nextChange {
			timedOut = append(timedOut, item)
		} else {
			kept = append(kept, item)
		}
	}
	l.queue = kept
	metrics.QueueDepth.WithLabelValues(string(l.id)).Set(float64(len(l.queue)))

	for _, item := range timedOut {
		l.host.OnPackageStatusChanged(item.Handle, rctypes.PackageFailedTimeout, rctypes.RaceBlocking)
		metrics.PackagesTotal.WithLabelValues("failed_timeout").Inc()
	}
}

// wakeConnections marks every connection AVAILABLE again. Must be called
// with l.mu held.
func (l *Link) wakeConnections() {
	for _, c := range l.connReg.Snapshot(l.id) {
		if !c.Available() {
			c.SetAvailable(true)
			l.host.OnConnectionStatusChanged(rctypes.NullRaceHandle, c.ID, rctypes.ConnectionAvailable, l.props, rctypes.RaceBlocking)
		}
	}
}

// waitForWork blocks until shutdown, a signal (enqueue/state change), or
// deadline, whichever comes first. This is the channel-based substitute for
// the C++ condvar.wait_until described in spec.md §9 -- it preserves the
// same "wake on any of shutdown/sleep/wake/send predicate" ordering without
// requiring a condition variable with timed wait.
func (l *Link) waitForWork(deadline float64) {
	var timerC <-chan time.Time
	if !math.IsInf(deadline, 1) {
		d := time.Duration((deadline - nowSeconds()) * float64(time.Second))
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-l.shutdownCh:
	case <-l.notify:
	case <-timerC:
	}
}

// runSendPipeline applies fault injection then calls the transport. It
// returns false only when the transport reports the link itself must be
// torn down.
func (l *Link) runSendPipeline(item SendInfo) bool {
	if roll(l.rng, l.fault.SendDropRate) {
		log.Debugf("link %v: dropping package handle=%v (fault injection)", l.id, item.Handle)
		l.host.OnPackageStatusChanged(item.Handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
		metrics.PackagesTotal.WithLabelValues("dropped").Inc()
		return true
	}

	pkg := item.Pkg
	if roll(l.rng, l.fault.SendCorruptRate) {
		pkg.CipherText = append([]byte(nil), pkg.CipherText...)
		corrupt(l.rng, pkg.CipherText, l.fault.SendCorruptAmount)
		metrics.PackagesTotal.WithLabelValues("corrupted").Inc()
	}

	log.Tracef("link %v: sending handle=%v ct=%s", l.id, item.Handle,
		wire.TraceSnippet(pkg, l.fault.TraceCorruptSizeLimit))

	if !l.transport.SendInternal(item.Handle, pkg) {
		return false
	}
	return true
}

// ReceiveRaw is invoked by a transport whose wire format carries only
// cipher-text, with no EncPkg header (WhiteboardLink: a post body is just
// base64(cipherText)). It wraps buf as an EncPkg with zero-valued
// trace/span metadata, applies the receive fault pipeline, and delivers to
// every receive-capable connection on this link.
func (l *Link) ReceiveRaw(pkgType rctypes.PackageType, raw []byte) {
	l.deliverReceived(wire.NewFromRaw(pkgType, append([]byte(nil), raw...)))
}

// ReceiveEncoded is invoked by a transport whose wire format is the full
// EncPkg encoding (DirectLink: a connection writes wire.Encode(pkg) in one
// send). It decodes raw back into the original EncPkg -- preserving
// trace/span/packageType end to end, which is what makes the direct-link
// loopback round-trip invariant hold -- then runs the same receive
// pipeline as ReceiveRaw. A malformed buffer is logged and dropped.
func (l *Link) ReceiveEncoded(raw []byte) {
	pkg, err := wire.Decode(raw)
	if err != nil {
		log.Warnf("link %v: dropping malformed package: %v", l.id, err)
		return
	}
	l.deliverReceived(pkg)
}

func (l *Link) deliverReceived(pkg wire.EncPkg) {
	if roll(l.rng, l.fault.ReceiveDropRate) {
		log.Debugf("link %v: discarding received package (fault injection)", l.id)
		metrics.PackagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	if roll(l.rng, l.fault.ReceiveCorruptRate) {
		pkg.CipherText = append([]byte(nil), pkg.CipherText...)
		corrupt(l.rng, pkg.CipherText, l.fault.ReceiveCorruptAmount)
		metrics.PackagesTotal.WithLabelValues("corrupted").Inc()
	}

	ids := l.connIDs()
	if len(ids) == 0 {
		return
	}

	log.Tracef("link %v: received ct=%s", l.id, wire.TraceSnippet(pkg, l.fault.TraceCorruptSizeLimit))
	l.host.ReceiveEncPkg(pkg, ids, rctypes.RaceBlocking)
}
