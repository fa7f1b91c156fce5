// Package frame is the Frame Allocator (spec §4.1): it owns the pool
// of physical 4 KiB frames and is the only place reclamation can be
// triggered from. Grounded on biscuit's mem.Physmem_t (mem/mem.go),
// stripped of the reference-counted/COW/per-CPU-free-list machinery
// that package needs for shared and copy-on-write pages — this
// spec's Non-goals rule both out, so a frame has exactly one owner
// and a single mutex-guarded free list is enough (spec §4.1
// rationale: "contention is not a design concern at this scale").
//
// biscuit's per-CPU free lists also lean on runtime.CPUHint, a hook
// added to biscuit's own patched Go runtime; that hook does not exist
// in stock Go, so it has no counterpart here.
package frame

import (
	"fmt"
	"sync"

	"limits"
	"oommsg"
	"stats"
)

/// Frame_t is a single 4 KiB physical frame.
type Frame_t [limits.PGSIZE]byte

/// poisonByte fills a freed frame so stale reads are easy to spot in a
/// core dump instead of silently returning old data (spec §4.1, §3
/// "Newly returned frames are poisoned").
const poisonByte byte = 0xd9

/// Reclaimer_i is implemented by the Replacement Policy. The allocator
/// calls it, and only it, when the free list runs dry (spec §4.1).
type Reclaimer_i interface {
	// Reclaim evicts one page from the current faulting process and
	// returns the frame it freed. ok is false if there was nothing left
	// to evict.
	Reclaim() (pa uintptr, ok bool)
}

/// Allocator_t is the single global pool of physical frames.
type Allocator_t struct {
	mu      sync.Mutex
	free    []uintptr
	backing map[uintptr]*Frame_t

	nextAddr uintptr
	total    int
	avail    limits.Sysatomic_t

	Counters stats.VmCounters_t
}

/// New creates a pool of n frames, addressed starting at base (an
/// arbitrary but stable base so log lines and tests can reason about
/// addresses without a real MMU underneath).
func New(n int, base uintptr) *Allocator_t {
	a := &Allocator_t{
		backing:  make(map[uintptr]*Frame_t, n),
		nextAddr: base,
		total:    n,
	}
	for i := 0; i < n; i++ {
		pa := a.nextAddr
		a.nextAddr += uintptr(limits.PGSIZE)
		fr := &Frame_t{}
		for j := range fr {
			fr[j] = poisonByte
		}
		a.backing[pa] = fr
		a.free = append(a.free, pa)
	}
	a.avail.Given(uint(n))
	return a
}

/// Total reports the size of the pool, for diagnostics.
func (a *Allocator_t) Total() int {
	return a.total
}

/// Alloc pops a frame off the free list. If the list is empty, it asks
/// reclaim (normally the faulting process's Replacement Policy) to
/// evict something and retries exactly once (spec §4.1): alloc is the
/// only site allowed to trigger eviction. reclaim is taken as a
/// parameter, not a shared field, because the eviction target is
/// always "whichever process is faulting right now" (spec §4.6) and a
/// mutable struct field would race across concurrently faulting
/// processes sharing one allocator. ok is false only when that retry
/// itself produces nothing (reclaim may be nil, e.g. while allocating
/// page-table pages with no natural victim).
func (a *Allocator_t) Alloc(pid int, reclaim Reclaimer_i) (pa uintptr, frame *Frame_t, ok bool) {
	pa, frame, ok = a.tryPop()
	if ok {
		return pa, frame, true
	}
	if reclaim == nil {
		oommsg.Notify(1, pid)
		return 0, nil, false
	}
	freed, evicted := reclaim.Reclaim()
	if !evicted {
		oommsg.Notify(1, pid)
		return 0, nil, false
	}
	a.mu.Lock()
	a.free = append(a.free, freed)
	a.avail.Give()
	a.mu.Unlock()
	pa, frame, ok = a.tryPop()
	if !ok {
		oommsg.Notify(1, pid)
	}
	return pa, frame, ok
}

// tryPop gates on avail, a Sysatomic_t mirroring len(free), so a pool
// run dry fails fast on the atomic decrement (spec §4.1) rather than
// after taking mu only to find the slice empty.
func (a *Allocator_t) tryPop() (uintptr, *Frame_t, bool) {
	if !a.avail.Take() {
		return 0, nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.free) - 1
	pa := a.free[n]
	a.free = a.free[:n]
	fr := a.backing[pa]
	return pa, fr, true
}

/// Free validates pa, poisons its contents, and returns it to the free
/// list. Misuse (unaligned or out-of-pool address) is a fatal kernel
/// bug, not a recoverable error (spec §7).
func (a *Allocator_t) Free(pa uintptr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pa%uintptr(limits.PGSIZE) != 0 {
		panic(fmt.Sprintf("frame: unaligned free %#x", pa))
	}
	fr, ok := a.backing[pa]
	if !ok {
		panic(fmt.Sprintf("frame: free of out-of-pool address %#x", pa))
	}
	for i := range fr {
		fr[i] = poisonByte
	}
	a.free = append(a.free, pa)
	a.avail.Give()
}

/// At returns the frame backing a physical address, for callers that
/// already hold it (page table service, swap store). Panics if pa is
/// not a frame this allocator owns.
func (a *Allocator_t) At(pa uintptr) *Frame_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	fr, ok := a.backing[pa]
	if !ok {
		panic(fmt.Sprintf("frame: unknown address %#x", pa))
	}
	return fr
}

/// FreeCount reports how many frames are currently on the free list.
func (a *Allocator_t) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

/// IsPoisoned reports whether fr currently holds only the poison byte,
/// a debug-mode check used by tests to confirm a newly allocated frame
/// was never silently reused with stale contents before being zeroed
/// or read into.
func IsPoisoned(fr *Frame_t) bool {
	for _, b := range fr {
		if b != poisonByte {
			return false
		}
	}
	return true
}

/// Zero fills fr with zero bytes (used on the zero-fill fault path).
func Zero(fr *Frame_t) {
	for i := range fr {
		fr[i] = 0
	}
}
