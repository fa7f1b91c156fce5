// Package limits holds the tunable constants that are part of this
// kernel's test contract (spec §6.4), plus the atomically-enforced
// counters used to bound shared pools. Adapted from biscuit's
// limits.Syslimit_t/Sysatomic_t, which plays the same role for the
// whole-kernel resource limits (vnodes, futexes, sockets, ...); here
// the pool being bounded is physical frames and swap slots instead.
package limits

import "sync/atomic"

/// PGSIZE is the hardware page size in bytes (spec §6.4).
const PGSIZE int = 4096

/// Default tunables. A boot config (see package config) may override
/// these via Tunables_t before the kernel starts handling faults.
const (
	DefaultResidentMax   = 16
	DefaultMaxSwapSlots  = 128
	DefaultMaxPagesInfo  = 64
	DefaultFramePoolSize = 256
)

/// Tunables_t is the contract-visible configuration: RESIDENT_MAX,
/// MAX_SWAP_SLOTS, and MAX_PAGES_INFO from spec §6.4, plus the size of
/// the physical frame pool the Frame Allocator draws from.
type Tunables_t struct {
	ResidentMax   int
	MaxSwapSlots  int
	MaxPagesInfo  int
	FramePoolSize int
}

/// Default returns the built-in tunables used when no boot config is
/// supplied.
func Default() Tunables_t {
	return Tunables_t{
		ResidentMax:   DefaultResidentMax,
		MaxSwapSlots:  DefaultMaxSwapSlots,
		MaxPagesInfo:  DefaultMaxPagesInfo,
		FramePoolSize: DefaultFramePoolSize,
	}
}

/// Sysatomic_t is a resource counter that can be atomically taken and
/// given back. Mirrors biscuit's limits.Sysatomic_t exactly; frame and
/// swap-slot accounting both use it to fail fast instead of growing a
/// pool unboundedly.
type Sysatomic_t int64

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

/// Taken tries to decrement the limit by n and reports success.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64((*int64)(s), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), int64(n))
	return false
}

/// Take decrements the limit by one and reports success.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Cur returns the current value, for diagnostics.
func (s *Sysatomic_t) Cur() int64 {
	return atomic.LoadInt64((*int64)(s))
}
