// Package oommsg carries out-of-memory notifications to anything
// observing the kernel from outside the faulting process, the same
// contract as biscuit's oommsg package. The Frame Allocator sends on
// OomCh when its one retry after invoking the Replacement Policy still
// yields nothing (spec §4.1, §7): the fault itself still kills only
// the faulting process, but a monitor can use this channel to notice
// systemic memory pressure.
package oommsg

/// OomCh is sent on whenever frame reclamation fails completely.
var OomCh chan Oommsg_t = make(chan Oommsg_t, 16)

/// Oommsg_t describes one out-of-memory event.
type Oommsg_t struct {
	/// Need is the number of frames the failed allocation wanted (always 1
	/// in this kernel, which allocates a page at a time).
	Need int
	/// Pid identifies the process whose allocation failed.
	Pid int
}

/// Notify posts an OOM event without blocking; it drops the
/// notification if no one is listening and the channel is full, since
/// an OOM notification is advisory and must never stall the fault
/// path that is already failing.
func Notify(need, pid int) {
	select {
	case OomCh <- Oommsg_t{Need: need, Pid: pid}:
	default:
	}
}
