// Fault Handler (spec §4.5) and Replacement Policy (spec §4.6).
// Grounded on biscuit's Sys_pgfault (vm/as.go): same overall shape —
// classify, then dispatch to a resolving path, with any failure
// killing only the faulting process (spec §7) rather than panicking.
// biscuit's classification branches on COW/shared-file/anon mapping
// types this kernel's Non-goals exclude; what's kept is the
// "impossible under the MMU's own rules" permission-violation check
// and the pattern of returning a defs.Err_t the trap epilogue
// interprets.
package vm

import (
	"io"

	"defs"
	"frame"
	"limits"
	"pgtbl"
)

/// classify implements spec §4.5's four-way fault classification.
func (p *Proc_t) classify(va uintptr) defs.FaultCause_t {
	if va == 0 || va >= p.Sz {
		return defs.CAUSE_INVALID
	}
	if va < p.ExeEnd {
		if !p.coveredBySegment(va) {
			return defs.CAUSE_INVALID
		}
		return defs.CAUSE_EXEC
	}
	// spec §9 open question: the stack heuristic only recognizes a
	// fault in the one page starting at the current stack pointer,
	// [sp, sp+PGSIZE); deeper growth misclassifies as heap, preserved
	// deliberately.
	if va >= p.sp && va < p.sp+uintptr(limits.PGSIZE) {
		return defs.CAUSE_STACK
	}
	return defs.CAUSE_HEAP
}

func (p *Proc_t) coveredBySegment(va uintptr) bool {
	_, ok := p.segmentFor(va)
	return ok
}

/// Fault resolves a page fault at va for access, per spec §4.5. It
/// returns 0 on success (the caller should retry the faulting
/// instruction) or a negative defs.Err_t; in the error case the
/// process has already been marked killed.
func (p *Proc_t) Fault(va uintptr, access defs.AccessType_t) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageVA := va &^ uintptr(limits.PGSIZE-1)
	cause := p.classify(pageVA)

	var pte *pgtbl.PTE
	if cause != defs.CAUSE_INVALID {
		var ok bool
		pte, ok = p.pgsvc.Walk(p.Root, pageVA, true)
		if !ok {
			logPagefault(p.Pid, va, access, cause)
			p.Counters.Faults.Inc()
			p.killReason("oom")
			return -defs.ENOMEM
		}
		// A swap-bit-set PTE overrides the address-range
		// classification: the swap bit is checked first, ahead of
		// anything range-based (_examples/original_source/kernel/
		// trap.c: the swapped-out check runs before the
		// fresh-vs-invalid-vs-mapped switch).
		if *pte&pgtbl.S != 0 {
			cause = defs.CAUSE_SWAP
		}
	}

	logPagefault(p.Pid, va, access, cause)
	p.Counters.Faults.Inc()

	if cause == defs.CAUSE_INVALID {
		return p.killInvalid(va, access)
	}

	var err defs.Err_t
	switch {
	case *pte&pgtbl.V != 0:
		// Resident already: the MMU would not have faulted for a
		// legitimate access, so this is a permission violation (spec
		// §4.5 classification 3).
		return p.killInvalid(va, access)
	case *pte&pgtbl.S != 0:
		err = p.swapIn(pageVA, pte, access)
	default:
		err = p.zeroFill(pageVA, cause, access)
	}
	if err != 0 && !p.Note.IsKilled() {
		// finishInstall failed (no room could be made in the resident
		// set, or the map failed): the fault still kills the process.
		p.killReason("install-failed")
	}
	return err
}

func (p *Proc_t) killInvalid(va uintptr, access defs.AccessType_t) defs.Err_t {
	logKillInvalidAccess(p.Pid, va, access)
	p.Note.Kill("invalid-access")
	p.Counters.Kills.Inc()
	return -defs.EFAULT
}

func (p *Proc_t) killReason(reason string) {
	p.Note.Kill(reason)
	p.Counters.Kills.Inc()
}

/// zeroFill implements spec §4.5's zero-fill path: acquire a frame,
/// zero it, optionally populate it from the executable image, ensure
/// resident-set room, map, and record the entry.
func (p *Proc_t) zeroFill(va uintptr, cause defs.FaultCause_t, access defs.AccessType_t) defs.Err_t {
	pa, fr, ok := p.alloc.Alloc(int(p.Pid), p)
	if !ok {
		p.killReason("oom")
		return -defs.ENOMEM
	}
	frame.Zero(fr)

	perms := pgtbl.U | pgtbl.R | pgtbl.W
	if cause == defs.CAUSE_EXEC {
		if err := p.loadExecBytes(va, fr); err != 0 {
			p.alloc.Free(pa)
			p.killReason("exec-io-error")
			return err
		}
		// Open question (spec §9): the source maps loaded text pages
		// writable; kept as-is rather than tightened to R+X, which
		// would need copy-on-write this kernel's Non-goals exclude.
		if seg, ok := p.segmentFor(va); ok && seg.Perms&pgtbl.X != 0 {
			perms |= pgtbl.X
		}
	}

	p.Counters.ZeroFills.Inc()
	return p.finishInstall(va, pa, perms, access == defs.ACCESS_WRITE)
}

/// installZeroFill backs va with a fresh zeroed frame outside of fault
/// resolution (exec's eager stack page, eager sbrk growth). It is not
/// itself a fault and emits no PAGEFAULT line.
func (p *Proc_t) installZeroFill(va uintptr, perms pgtbl.PTE) defs.Err_t {
	pa, fr, ok := p.alloc.Alloc(int(p.Pid), p)
	if !ok {
		return -defs.ENOMEM
	}
	frame.Zero(fr)
	return p.finishInstall(va, pa, perms, false)
}

func (p *Proc_t) loadExecBytes(va uintptr, fr *frame.Frame_t) defs.Err_t {
	seg, ok := p.segmentFor(va)
	if !ok {
		return 0
	}
	off := int64(va - seg.VAStart)
	if off >= seg.FileSz {
		return 0 // entirely within the zero-filled bss tail
	}
	want := int64(limits.PGSIZE)
	if remaining := seg.FileSz - off; remaining < want {
		want = remaining
	}
	n, err := p.exeFile.ReadAt(fr[:want], seg.FileOff+off)
	if int64(n) != want || (err != nil && err != io.EOF) {
		return -defs.EIO
	}
	return 0
}

/// swapIn implements spec §4.5's swap-in path.
func (p *Proc_t) swapIn(va uintptr, pte *pgtbl.PTE, access defs.AccessType_t) defs.Err_t {
	slot, perms := pgtbl.DecodeSwap(*pte)
	pa, fr, ok := p.alloc.Alloc(int(p.Pid), p)
	if !ok {
		p.killReason("oom")
		return -defs.ENOMEM
	}
	if err := p.Swap.ReadSlot(slot, (*[limits.PGSIZE]byte)(fr)); err != 0 {
		p.alloc.Free(pa)
		p.killReason("swap-io-error")
		return err
	}
	p.Swap.FreeSlot(slot)
	delete(p.swapped, va)
	*pte = 0

	p.Counters.SwapIns.Inc()
	logSwapin(p.Pid, va, slot)
	return p.finishInstall(va, pa, perms, access == defs.ACCESS_WRITE)
}

/// finishInstall ensures resident-set room, installs the PTE, stamps
/// the dirty bit when the triggering access was a write (this
/// kernel's stand-in for hardware setting D, since there is no real
/// MMU underneath), and records the resident-set entry.
func (p *Proc_t) finishInstall(va, pa uintptr, perms pgtbl.PTE, dirty bool) defs.Err_t {
	if err := p.ensureResidentRoom(); err != 0 {
		p.alloc.Free(pa)
		return err
	}
	if err := p.pgsvc.Map(p.Root, va, pa, perms); err != 0 {
		p.alloc.Free(pa)
		return err
	}
	if dirty {
		if pte, ok := p.pgsvc.Walk(p.Root, va, false); ok {
			*pte |= pgtbl.D
		}
	}
	seq := p.nextSeq()
	p.Rset.Add(va, seq)
	logResident(p.Pid, va, seq)
	return 0
}

/// ensureResidentRoom evicts the oldest resident page if the set is
/// already at RESIDENT_MAX (spec §4.6 invocation condition (b)).
func (p *Proc_t) ensureResidentRoom() defs.Err_t {
	if !p.Rset.Full() {
		return 0
	}
	pa, err := p.evictOnce()
	if err != 0 {
		return err
	}
	p.alloc.Free(pa)
	return 0
}

/// Reclaim implements frame.Reclaimer_i: invoked by the Frame
/// Allocator when its free list is empty (spec §4.6 invocation
/// condition (a)). The faulting process is always its own eviction
/// target (spec §4.6 step 1, "never any other process").
func (p *Proc_t) Reclaim() (uintptr, bool) {
	pa, err := p.evictOnce()
	return pa, err == 0
}

/// evictOnce runs the FIFO Replacement Policy algorithm (spec §4.6
/// steps 2-8): pick the oldest resident page, write it back to swap,
/// re-encode its PTE, and remove it from the resident set. The freed
/// frame is returned to the caller rather than pushed onto the
/// allocator's free list directly, since the two call sites
/// (ensureResidentRoom and Reclaim) need it for different purposes.
func (p *Proc_t) evictOnce() (uintptr, defs.Err_t) {
	logMemfull(p.Pid)
	victim, ok := p.Rset.Oldest()
	if !ok {
		return 0, -defs.ENOMEM
	}
	logVictim(p.Pid, victim.Va, victim.Seq)

	pte, found := p.pgsvc.Walk(p.Root, victim.Va, false)
	if !found || *pte&pgtbl.V == 0 {
		panic("vm: resident-set entry without a resident PTE")
	}
	pa := pgtbl.Addr(*pte)
	perms := *pte & pgtbl.PermMask

	if err := p.Swap.EnsureFile(); err != nil {
		return 0, -defs.EIO
	}
	slot, ok := p.Swap.AllocSlot()
	if !ok {
		return 0, -defs.ENOSPC
	}
	fr := p.alloc.At(pa)
	if err := p.Swap.WriteSlot(slot, (*[limits.PGSIZE]byte)(fr)); err != 0 {
		p.Swap.FreeSlot(slot)
		return 0, err
	}

	*pte = pgtbl.EncodeSwap(slot, perms)
	p.Rset.Remove(victim.Va)
	p.swapped[victim.Va] = slot
	p.Counters.Evictions.Inc()
	logEvict(p.Pid, victim.Va, slot)
	return pa, 0
}
