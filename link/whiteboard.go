package link

import (
	"container/list"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twosix-race/racecomms/rctypes"
	"github.com/twosix-race/racecomms/wire"
)

const ownPostHashCap = 1024

// WhiteboardClient abstracts the three HTTP calls a whiteboard link makes,
// so tests can substitute a fake bulletin board instead of a live HTTP
// server.
type WhiteboardClient interface {
	Post(tag string, data []byte) error
	Get(tag string, from int) (data []string, length int, timestamp string, err error)
	After(tag string, seconds float64) (index int, err error)
}

// CursorStore persists (and recovers) the per-link polling cursor,
// implemented on top of package storage's encrypted-file envelope.
type CursorStore interface {
	Load(key string) (value string, ok bool, err error)
	Save(key, value string) error
}

// WhiteboardLink is a multicast, indirect link backed by an HTTP
// bulletin-board ("whiteboard"): posting base64(cipherText) under a tag, and
// polling for new posts under that tag.
type WhiteboardLink struct {
	*Link

	hostname       string
	port           int
	tag            string
	pollPeriod     time.Duration
	maxTries       int
	addressTS      float64
	cursorKey      string
	client         WhiteboardClient
	cursors        CursorStore

	mu           sync.Mutex
	latestIndex  int
	ownHashes    *list.List // FIFO of hash strings, front = oldest

	pollPeriodMu sync.Mutex // guards pollPeriod lowering via hints

	stopCh  chan struct{}
	wg      sync.WaitGroup
	polling int32 // atomic

	failures int32 // consecutive poll failures, atomic
}

// NewWhiteboardLink constructs a WhiteboardLink and wires it into base.
func NewWhiteboardLink(base *Link, hostname string, port int, tag string,
	pollPeriodMS int, maxTries int, addressTimestamp float64,
	client WhiteboardClient, cursors CursorStore) *WhiteboardLink {

	w := &WhiteboardLink{
		Link:       base,
		hostname:   hostname,
		port:       port,
		tag:        tag,
		pollPeriod: time.Duration(pollPeriodMS) * time.Millisecond,
		maxTries:   maxTries,
		addressTS:  addressTimestamp,
		cursorKey:  fmt.Sprintf("lastTimestamp:%s:%d:%s", hostname, port, tag),
		client:     client,
		cursors:    cursors,
		ownHashes:  list.New(),
	}
	base.SetTransport(w)
	return w
}

// Address emits all six whiteboard address fields.
func (w *WhiteboardLink) Address() string {
	return wire.WhiteboardAddress{
		Hostname:       w.hostname,
		Port:           w.port,
		Hashtag:        w.tag,
		CheckFrequency: int(w.pollPeriod / time.Millisecond),
		Timestamp:      w.addressTS,
		MaxTries:       w.maxTries,
	}.Emit()
}

// LowerPollPeriod applies a {"polling_interval_ms": N} connection hint.
// Per spec.md §4.6 the effective period may only be lowered, never raised.
func (w *WhiteboardLink) LowerPollPeriod(ms int) {
	w.pollPeriodMu.Lock()
	defer w.pollPeriodMu.Unlock()
	if d := time.Duration(ms) * time.Millisecond; ms > 0 && d < w.pollPeriod {
		w.pollPeriod = d
	}
}

func hashPost(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (w *WhiteboardLink) pushOwnHash(h string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ownHashes.Len() >= ownPostHashCap {
		log.Warnf("whiteboard link %v: own-post-hash ring full, dropping oldest", w.id)
		w.ownHashes.Remove(w.ownHashes.Front())
	}
	w.ownHashes.PushBack(h)
}

func (w *WhiteboardLink) removeOwnHash(h string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for e := w.ownHashes.Front(); e != nil; e = e.Next() {
		if e.Value.(string) == h {
			w.ownHashes.Remove(e)
			return
		}
	}
}

// isOwnEcho reports whether h is at the front of the own-post-hash queue
// (meaning this post is this link's own echo coming back from the board)
// and, if so, pops it.
func (w *WhiteboardLink) isOwnEcho(h string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	front := w.ownHashes.Front()
	if front != nil && front.Value.(string) == h {
		w.ownHashes.Remove(front)
		return true
	}
	return false
}

// SendInternal base64-encodes the cipher-text, records its hash before
// posting (to close the race between the post landing and the next poll
// seeing it), then POSTs with retry.
func (w *WhiteboardLink) SendInternal(handle rctypes.RaceHandle, pkg wire.EncPkg) bool {
	encoded := base64.StdEncoding.EncodeToString(pkg.CipherText)
	h := hashPost(encoded)
	w.pushOwnHash(h)

	var err error
	for attempt := 1; attempt <= w.maxTries; attempt++ {
		err = w.client.Post(w.tag, []byte(encoded))
		if err == nil {
			w.host.OnPackageStatusChanged(handle, rctypes.PackageSent, rctypes.RaceBlocking)
			return true
		}
		if attempt%30 == 0 {
			log.Warnf("whiteboard link %v: post attempt %d/%d failed: %v", w.id, attempt, w.maxTries, err)
		}
		time.Sleep(time.Second)
	}

	w.removeOwnHash(h)
	log.Errorf("whiteboard link %v: post permanently failed after %d tries: %v", w.id, w.maxTries, err)
	w.host.OnPackageStatusChanged(handle, rctypes.PackageFailedGeneric, rctypes.RaceBlocking)
	return true
}

// StartReceive seeds latestIndex and begins the polling loop.
func (w *WhiteboardLink) StartReceive() {
	if !atomic.CompareAndSwapInt32(&w.polling, 0, 1) {
		return
	}
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.pollLoop()
}

// StopReceive halts the polling loop.
func (w *WhiteboardLink) StopReceive() {
	if !atomic.CompareAndSwapInt32(&w.polling, 1, 0) {
		return
	}
	close(w.stopCh)
	w.wg.Wait()
}

// ShutdownInternal is StopReceive; the whiteboard transport owns no other
// resources (no listening socket).
func (w *WhiteboardLink) ShutdownInternal() { w.StopReceive() }

// seedCursor resolves the starting poll index, in order of precedence:
// persisted lastTimestamp, an explicit address timestamp, else "now".
func (w *WhiteboardLink) seedCursor() {
	var ts float64
	if v, ok, err := w.cursors.Load(w.cursorKey); err == nil && ok {
		if parsed, perr := strconv.ParseFloat(v, 64); perr == nil {
			ts = parsed
		}
	} else if w.addressTS != 0 {
		ts = w.addressTS
	} else {
		ts = nowSeconds()
	}

	idx, err := w.client.After(w.tag, ts)
	if err != nil {
		log.Warnf("whiteboard link %v: seedCursor After() failed, starting at 0: %v", w.id, err)
		idx = 0
	}
	w.mu.Lock()
	w.latestIndex = idx
	w.mu.Unlock()
}

func (w *WhiteboardLink) pollLoop() {
	defer w.wg.Done()
	w.seedCursor()

	for {
		w.pollPeriodMu.Lock()
		period := w.pollPeriod
		w.pollPeriodMu.Unlock()

		select {
		case <-w.stopCh:
			return
		case <-time.After(period):
		}

		if w.tick() {
			return // transitioned to failed state
		}
	}
}

// tick runs one poll iteration. It returns true if the link has exhausted
// maxTries and transitioned to a failed state.
func (w *WhiteboardLink) tick() bool {
	w.mu.Lock()
	latest := w.latestIndex
	w.mu.Unlock()

	data, length, serverTS, err := w.client.Get(w.tag, latest)
	if err != nil {
		return w.recordFailure(err)
	}
	atomic.StoreInt32(&w.failures, 0)

	if length-latest > len(data) {
		log.Warnf("whiteboard link %v: possible loss, server reports length=%d latest=%d got %d posts",
			w.id, length, latest, len(data))
	}

	for _, s := range data {
		h := hashPost(s)
		if w.isOwnEcho(h) {
			continue
		}
		raw, derr := base64.StdEncoding.DecodeString(s)
		if derr != nil {
			log.Warnf("whiteboard link %v: skipping post with bad base64: %v", w.id, derr)
			continue
		}
		w.ReceiveRaw(rctypes.PkgUndef, raw)
	}

	if len(data) > 0 && serverTS != "" {
		if err := w.cursors.Save(w.cursorKey, serverTS); err != nil {
			log.Warnf("whiteboard link %v: failed persisting cursor: %v", w.id, err)
		}
	}

	w.mu.Lock()
	w.latestIndex = length
	w.mu.Unlock()

	return false
}

func (w *WhiteboardLink) recordFailure(err error) bool {
	n := atomic.AddInt32(&w.failures, 1)
	log.Warnf("whiteboard link %v: poll failure %d/%d: %v", w.id, n, w.maxTries, err)
	if int(n) < w.maxTries {
		return false
	}
	log.Errorf("whiteboard link %v: exceeded maxTries, failing link", w.id)
	w.host.OnLinkStatusChanged(rctypes.NullRaceHandle, w.id, rctypes.LinkDestroyed, w.props, rctypes.RaceBlocking)
	return true
}
