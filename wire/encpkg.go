// Package wire implements the bit-exact encodings the comms core exchanges
// with the host and with peer nodes: the EncPkg envelope and the per-channel
// LinkAddress documents. The field-by-field binary.Write/Read style here
// follows the teacher's lnwire message codecs (lnwire/node_announcement.go,
// lnwire/single_funding_request.go).
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/twosix-race/racecomms/rctypes"
)

// EncPkg is the opaque cipher-text-plus-trace-metadata unit the core ferries
// between the host and the transports. The core never inspects CipherText;
// it only moves it.
type EncPkg struct {
	TraceID     uint64
	SpanID      uint64
	PackageType rctypes.PackageType
	CipherText  []byte
}

// headerLen is 8 bytes traceId + 8 bytes spanId + 1 byte packageType.
const headerLen = 8 + 8 + 1

// NewFromRaw wraps bytes received off a transport that do not carry the
// EncPkg header -- used by WhiteboardLink's poller, whose posts hold bare
// cipher-text without trace/span metadata of their own. DirectLink's
// accept loop receives the full encoding and uses Decode instead.
func NewFromRaw(pkgType rctypes.PackageType, cipherText []byte) EncPkg {
	return EncPkg{PackageType: pkgType, CipherText: cipherText}
}

// Encode serialises e as u64_le(traceId) || u64_le(spanId) || u8(packageType)
// || cipherText.
func Encode(e EncPkg) []byte {
	buf := make([]byte, headerLen+len(e.CipherText))
	binary.LittleEndian.PutUint64(buf[0:8], e.TraceID)
	binary.LittleEndian.PutUint64(buf[8:16], e.SpanID)
	buf[16] = byte(e.PackageType)
	copy(buf[headerLen:], e.CipherText)
	return buf
}

// Decode is the exact inverse of Encode; round-trip is an invariant.
func Decode(raw []byte) (EncPkg, error) {
	if len(raw) < headerLen {
		return EncPkg{}, fmt.Errorf("wire: short EncPkg, got %d bytes, want at least %d", len(raw), headerLen)
	}
	e := EncPkg{
		TraceID:     binary.LittleEndian.Uint64(raw[0:8]),
		SpanID:      binary.LittleEndian.Uint64(raw[8:16]),
		PackageType: rctypes.PackageType(raw[16]),
	}
	if n := len(raw) - headerLen; n > 0 {
		e.CipherText = make([]byte, n)
		copy(e.CipherText, raw[headerLen:])
	}
	return e, nil
}

// TraceSnippet returns the base64 encoding of e.CipherText truncated to at
// most limit source bytes, for use in Tracef log lines -- logging the full
// cipher-text of every package would blow out log files on a busy link.
func TraceSnippet(e EncPkg, limit int) string {
	ct := e.CipherText
	if limit >= 0 && len(ct) > limit {
		ct = ct[:limit]
	}
	return base64.StdEncoding.EncodeToString(ct)
}

// Equal reports whether two packages are byte-for-byte identical, used by
// the round-trip invariant tests.
func Equal(a, b EncPkg) bool {
	return a.TraceID == b.TraceID && a.SpanID == b.SpanID &&
		a.PackageType == b.PackageType && bytes.Equal(a.CipherText, b.CipherText)
}
