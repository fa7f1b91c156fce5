// Package stats provides lightweight, compile-time-toggleable counters,
// adapted from biscuit's stats package. Counting is free in this
// kernel's test builds (spec and tests rely on exact console log
// lines, never on these counters), so Stats defaults to on here,
// unlike biscuit where it defaults to off to avoid perturbing cycle
// counts on real hardware.
package stats

import "sync/atomic"

/// Stats gates whether Counter_t.Inc has any effect.
const Stats = true

/// Counter_t is a statistical counter.
type Counter_t int64

/// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	if Stats {
		atomic.AddInt64((*int64)(c), 1)
	}
}

/// Get returns the current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

/// VmCounters_t are the per-process counters surfaced through memstat
/// as supplementary diagnostics (SPEC_FULL "SUPPLEMENTED FEATURES").
type VmCounters_t struct {
	Faults    Counter_t
	ZeroFills Counter_t
	SwapIns   Counter_t
	Evictions Counter_t
	Kills     Counter_t
}
