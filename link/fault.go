package link

import "math/rand"

// FaultConfig configures the optional drop/corrupt injection on a link's
// send and receive pipelines (spec.md §4.3), used by test harnesses to
// exercise the host's handling of lossy or hostile transports without
// needing a genuinely unreliable network.
type FaultConfig struct {
	SendDropRate      float64
	SendCorruptRate   float64
	SendCorruptAmount int

	ReceiveDropRate      float64
	ReceiveCorruptRate   float64
	ReceiveCorruptAmount int

	// TraceCorruptSizeLimit bounds how many cipher-text bytes are
	// base64-logged in Tracef lines (wire.TraceSnippet).
	TraceCorruptSizeLimit int
}

// roll reports true with probability p, treating p<=0 as "never" and p>=1
// as "always" without consulting the RNG (keeps drop/corrupt-rate-0 tests
// deterministic).
func roll(rng *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// corrupt overwrites n random bytes of buf (length and position otherwise
// unchanged) with fresh random bytes. If n exceeds len(buf) the whole buffer
// is overwritten.
func corrupt(rng *rand.Rand, buf []byte, n int) {
	if len(buf) == 0 {
		return
	}
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		idx := rng.Intn(len(buf))
		buf[idx] = byte(rng.Intn(256))
	}
}
