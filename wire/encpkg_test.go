package wire

import (
	"bytes"
	"testing"

	"github.com/twosix-race/racecomms/rctypes"
)

// TestEncPkgRoundTrip exercises the universal invariant from the spec:
// decode(encode(e)) == e for arbitrary trace/span/type/cipher-text.
func TestEncPkgRoundTrip(t *testing.T) {
	cases := []EncPkg{
		{TraceID: 1, SpanID: 2, PackageType: rctypes.PkgNetworkManager, CipherText: []byte{0, 1, 2, 3}},
		{TraceID: 0, SpanID: 0, PackageType: rctypes.PkgUndef, CipherText: nil},
		{TraceID: ^uint64(0), SpanID: 42, PackageType: rctypes.PkgSDK, CipherText: bytes.Repeat([]byte{0xAB}, 4096)},
	}

	for i, c := range cases {
		raw := Encode(c)
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("case %d: decode failed: %v", i, err)
		}
		if !Equal(c, got) {
			t.Fatalf("case %d: round-trip mismatch: got %+v, want %+v", i, got, c)
		}
	}
}

func TestEncPkgWireLayout(t *testing.T) {
	e := EncPkg{TraceID: 1, SpanID: 2, PackageType: rctypes.PkgNetworkManager, CipherText: []byte{0xAA}}
	raw := Encode(e)

	if len(raw) != headerLen+1 {
		t.Fatalf("unexpected length %d", len(raw))
	}
	// trace id little-endian in the first 8 bytes.
	if raw[0] != 1 || raw[1] != 0 {
		t.Fatalf("trace id not little-endian: %v", raw[:8])
	}
	if raw[16] != byte(rctypes.PkgNetworkManager) {
		t.Fatalf("package type byte wrong: %v", raw[16])
	}
	if raw[17] != 0xAA {
		t.Fatalf("cipher text not appended verbatim")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding too-short buffer")
	}
}

func TestTraceSnippetTruncates(t *testing.T) {
	e := EncPkg{CipherText: bytes.Repeat([]byte{1}, 100)}
	s := TraceSnippet(e, 8)
	// base64 of 8 bytes is 12 chars (with padding).
	if len(s) > 16 {
		t.Fatalf("snippet not truncated, got len %d", len(s))
	}
}
