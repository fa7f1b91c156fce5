// Package vm is the Process VM State (spec §4.7) and the glue that
// drives the Fault Handler (§4.5) and Replacement Policy (§4.6)
// against one process's Frame Allocator, Swap Store, Resident Set,
// and Page Table Service. Grounded on biscuit's vm.Vm_t (vm/as.go):
// same role (one struct per address space, a mutex serializing fault
// resolution against it, a Pmap root), but biscuit's Vm_t leans on
// Vmregion_t/COW/shared-file mappings this kernel's Non-goals rule
// out (no shared pages, no COW, no prefetching). What's kept is the
// shape: a lock taken for the duration of fault resolution (spec §5:
// "not interruptible by another fault in the same process"), and a
// retained file handle for demand-reading program text, mirroring
// biscuit's executable inode handling.
package vm

import (
	"io"
	"sync"

	"defs"
	"frame"
	"limits"
	"pgtbl"
	"rset"
	"stats"
	"swap"
	"tinfo"
	"util"
)

/// Segment_t describes one loadable ELF segment's virtual range and
/// the backing file range it is paged in from (spec §4.5 zero-fill
/// step (c), §4.7 exec). Perms carries the segment's R/W/X bits as
/// pgtbl flags (U is always implied and added by the fault handler).
type Segment_t struct {
	VAStart uintptr
	VAEnd   uintptr
	FileOff int64
	FileSz  int64
	Perms   pgtbl.PTE
}

/// Proc_t is one process's virtual memory state (spec §3 "Process VM
/// State", §4.7). The mutex enforces the single-threaded-per-address-
/// space discipline spec §5 assumes: fault resolution, sbrk, fork and
/// exit all hold it for their duration.
type Proc_t struct {
	mu sync.Mutex

	Pid      defs.Pid_t
	Root     uintptr
	Sz       uintptr
	ExeEnd   uintptr
	sp       uintptr
	segments []Segment_t
	exeFile  io.ReaderAt

	Rset *rset.Set_t
	Swap *swap.Store_t
	// swapped maps a swapped-out virtual address to its slot index.
	// Not part of the spec's data model directly, but needed to
	// enumerate swapped pages for memstat (§6.3) and to carry swap
	// contents across fork (§4.7) without a full page-table scan.
	swapped map[uintptr]int
	fifo    uint64

	Note     *tinfo.Note_t
	Counters stats.VmCounters_t

	alloc    *frame.Allocator_t
	pgsvc    *pgtbl.Service_t
	tunables limits.Tunables_t
	swapDir  string
}

/// New allocates Process VM State for pid. The process has no address
/// space until Exec is called.
func New(pid defs.Pid_t, alloc *frame.Allocator_t, pgsvc *pgtbl.Service_t, tun limits.Tunables_t, swapDir string, note *tinfo.Note_t) *Proc_t {
	return &Proc_t{
		Pid:      pid,
		Rset:     rset.New(tun.ResidentMax),
		swapped:  make(map[uintptr]int),
		Note:     note,
		alloc:    alloc,
		pgsvc:    pgsvc,
		tunables: tun,
		swapDir:  swapDir,
	}
}

/// Exec replaces the process's page table, sets exe_end/sz from the
/// loaded image, and eagerly maps only the top stack page, leaving
/// everything else lazy (spec §4.7 exec). Any prior swap file and
/// resident set are discarded. exeFile is retained so text pages can
/// be re-faulted from disk (spec §9 "Executable inode retained").
func (p *Proc_t) Exec(exeFile io.ReaderAt, segments []Segment_t, exeEnd, sz uintptr) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Root != 0 {
		p.teardownLocked()
	}

	root, ok := p.pgsvc.NewRoot()
	if !ok {
		return -defs.ENOMEM
	}
	p.Root = root
	p.ExeEnd = exeEnd
	p.Sz = sz
	// sp starts at the bottom of the page exec just mapped: nothing
	// has been pushed yet, and further stack growth (tracked by
	// SetSP as the trap entry reports it) moves it below this
	// watermark one page at a time (spec §4.7, §9).
	p.sp = sz - uintptr(limits.PGSIZE)
	p.segments = append([]Segment_t(nil), segments...)
	p.exeFile = exeFile
	p.Rset = rset.New(p.tunables.ResidentMax)
	p.Swap = swap.New(p.swapDir, int(p.Pid), p.tunables.MaxSwapSlots)
	p.swapped = make(map[uintptr]int)
	p.fifo = 0

	logInitLazymap(p.Pid, exeEnd, sz, p.sp)

	stackVA := sz - uintptr(limits.PGSIZE)
	if err := p.installZeroFill(stackVA, pgtbl.U|pgtbl.R|pgtbl.W); err != 0 {
		return err
	}
	return 0
}

func (p *Proc_t) teardownLocked() {
	for _, e := range p.Rset.Entries() {
		p.pgsvc.Unmap(p.Root, e.Va, true)
	}
	if p.Swap != nil {
		p.Swap.Destroy()
	}
	p.exeFile = nil
}

/// Sbrk grows or shrinks the logical address space (spec §4.7). Eager
/// mode backs new pages with frames immediately; lazy mode only grows
/// sz, letting the fault path do the work (P6). Shrinking unmaps and
/// frees any resident or swapped pages in the truncated range.
func (p *Proc_t) Sbrk(delta int, mode defs.SbrkMode_t) (oldSz uintptr, err defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.Sz
	if delta == 0 {
		return old, 0
	}
	if delta < 0 {
		return p.sbrkShrinkLocked(old, uintptr(-delta))
	}

	newSz := old + uintptr(delta)
	if newSz < old {
		return 0, -defs.EINVAL
	}
	if mode == defs.SBRK_LAZY {
		p.Sz = newSz
		return old, 0
	}

	for va := util.Roundup(old, uintptr(limits.PGSIZE)); va < newSz; va += uintptr(limits.PGSIZE) {
		if err := p.installZeroFill(va, pgtbl.U|pgtbl.R|pgtbl.W); err != 0 {
			return 0, err
		}
	}
	p.Sz = newSz
	return old, 0
}

func (p *Proc_t) sbrkShrinkLocked(old, shrinkBy uintptr) (uintptr, defs.Err_t) {
	if shrinkBy > old-p.ExeEnd {
		return 0, -defs.EINVAL
	}
	newSz := old - shrinkBy
	for va := util.Roundup(newSz, uintptr(limits.PGSIZE)); va < old; va += uintptr(limits.PGSIZE) {
		p.unmapPageLocked(va)
	}
	p.Sz = newSz
	return old, 0
}

func (p *Proc_t) unmapPageLocked(va uintptr) {
	pte, ok := p.pgsvc.Lookup(p.Root, va)
	if !ok {
		return
	}
	switch {
	case pte&pgtbl.V != 0:
		p.pgsvc.Unmap(p.Root, va, true)
		p.Rset.Remove(va)
	case pte&pgtbl.S != 0:
		slot, _ := pgtbl.DecodeSwap(pte)
		p.Swap.FreeSlot(slot)
		delete(p.swapped, va)
		if full, ok := p.pgsvc.Walk(p.Root, va, false); ok {
			*full = 0
		}
	}
}

/// SetSP records the process's current stack pointer, as a trap entry
/// would report it, so the fault handler can apply the single-page
/// stack-growth heuristic (spec §9 open question).
func (p *Proc_t) SetSP(sp uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sp = sp
}

/// Fork deep-copies resident page contents and duplicates swapped
/// slots into a fresh swap file for the child (spec §4.7, "stated for
/// completeness"). Shared pages are not supported: every resident
/// page gets its own frame.
func (p *Proc_t) Fork(childPid defs.Pid_t, childNote *tinfo.Note_t) (*Proc_t, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	child := New(childPid, p.alloc, p.pgsvc, p.tunables, p.swapDir, childNote)
	root, ok := p.pgsvc.NewRoot()
	if !ok {
		return nil, -defs.ENOMEM
	}
	child.Root = root
	child.Sz = p.Sz
	child.ExeEnd = p.ExeEnd
	child.sp = p.sp
	child.segments = append([]Segment_t(nil), p.segments...)
	child.exeFile = p.exeFile
	child.fifo = p.fifo

	for _, e := range p.Rset.Entries() {
		pte, ok := p.pgsvc.Lookup(p.Root, e.Va)
		if !ok || pte&pgtbl.V == 0 {
			continue
		}
		pa, fr, ok := child.alloc.Alloc(int(childPid), nil)
		if !ok {
			return nil, -defs.ENOMEM
		}
		*fr = *p.alloc.At(pgtbl.Addr(pte))
		perms := pte & pgtbl.PermMask
		if err := child.pgsvc.Map(child.Root, e.Va, pa, perms); err != 0 {
			child.alloc.Free(pa)
			return nil, err
		}
		child.Rset.Add(e.Va, e.Seq)
	}

	for va, slot := range p.swapped {
		var buf [limits.PGSIZE]byte
		if err := p.Swap.ReadSlot(slot, &buf); err != 0 {
			return nil, err
		}
		pte, ok := p.pgsvc.Walk(p.Root, va, false)
		if !ok {
			continue
		}
		_, perms := pgtbl.DecodeSwap(*pte)
		if err := child.Swap.EnsureFile(); err != nil {
			return nil, -defs.EIO
		}
		childSlot, ok := child.Swap.AllocSlot()
		if !ok {
			return nil, -defs.ENOSPC
		}
		if err := child.Swap.WriteSlot(childSlot, &buf); err != 0 {
			return nil, err
		}
		childPTE, ok := child.pgsvc.Walk(child.Root, va, true)
		if !ok {
			return nil, -defs.ENOMEM
		}
		*childPTE = pgtbl.EncodeSwap(childSlot, perms)
		child.swapped[va] = childSlot
	}

	return child, 0
}

/// Exit unmaps and frees every resident page, frees every swap slot,
/// deletes the swap file, and releases the executable handle (spec
/// §4.7 exit).
func (p *Proc_t) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.Rset.Entries() {
		p.pgsvc.Unmap(p.Root, e.Va, true)
	}
	p.Rset.Clear()
	for va := range p.swapped {
		delete(p.swapped, va)
	}
	if p.Swap != nil {
		p.Swap.Destroy()
	}
	p.exeFile = nil
}

func (p *Proc_t) segmentFor(va uintptr) (Segment_t, bool) {
	for _, seg := range p.segments {
		if va >= seg.VAStart && va < seg.VAEnd {
			return seg, true
		}
	}
	return Segment_t{}, false
}

func (p *Proc_t) nextSeq() uint64 {
	seq := p.fifo
	p.fifo++
	return seq
}
