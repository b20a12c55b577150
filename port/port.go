// Package port implements PortAllocator, a per-channel helper that hands out
// non-conflicting TCP ports from a half-open range, grounded on
// original_source/plugin-comms-twosix-cpp/source/utils/PortAllocator.{h,cpp}.
// No concurrency guarantee is provided; the owning Channel is expected to
// serialise access the same way a single goroutine owns a teacher send
// queue.
package port

import "github.com/go-errors/errors"

// Allocator hands out ports in [min, max).
type Allocator struct {
	min, max int
	inUse    map[int]struct{}
	cursor   int
}

// New constructs an Allocator over [min, max). min must be strictly less
// than max.
func New(min, max int) *Allocator {
	if min >= max {
		panic("port: min must be less than max")
	}
	return &Allocator{
		min:    min,
		max:    max,
		inUse:  make(map[int]struct{}),
		cursor: min,
	}
}

// Acquire scans forward from the cursor, skipping ports already marked
// in-use, and wraps at max. It fails with ErrExhausted once every
// port in the range is in use.
func (a *Allocator) Acquire() (int, error) {
	if len(a.inUse) >= a.max-a.min {
		return 0, ErrExhausted
	}

	p := a.cursor
	for {
		if _, taken := a.inUse[p]; !taken {
			a.inUse[p] = struct{}{}
			a.cursor = a.next(p)
			return p, nil
		}
		p = a.next(p)
	}
}

func (a *Allocator) next(p int) int {
	p++
	if p >= a.max {
		p = a.min
	}
	return p
}

// Mark asserts that port is in use by something outside the allocator (e.g.
// a port named explicitly in a loaded LinkAddress), so a subsequent Acquire
// will skip it.
func (a *Allocator) Mark(p int) {
	a.inUse[p] = struct{}{}
}

// Release returns port to the pool.
func (a *Allocator) Release(p int) {
	delete(a.inUse, p)
}

// SetRangeStart changes the lower bound of the range. The in-use set is
// retained as-is; it is the caller's responsibility to reconcile ports that
// fall outside the new range.
func (a *Allocator) SetRangeStart(start int) error {
	if start >= a.max {
		return ErrInvalidRange
	}
	a.min = start
	if a.cursor < start {
		a.cursor = start
	}
	return nil
}

// SetRangeEnd changes the upper bound of the range.
func (a *Allocator) SetRangeEnd(end int) error {
	if end <= a.min {
		return ErrInvalidRange
	}
	a.max = end
	return nil
}

// ErrExhausted and ErrInvalidRange are the two failure modes of the
// allocator itself (distinct from the broader rcerr catalog, since they are
// purely local to port bookkeeping).
var (
	ErrExhausted    = errors.New("port: range exhausted")
	ErrInvalidRange = errors.New("port: invalid range")
)
