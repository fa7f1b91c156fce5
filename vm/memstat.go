// The memstat record returned to user space (spec §6.3).
package vm

import (
	"defs"
	"limits"
	"pgtbl"
	"util"
)

/// PageState_t is one page's classification in a memstat snapshot.
type PageState_t int

const (
	PAGE_RESIDENT PageState_t = iota
	PAGE_SWAPPED
	PAGE_UNMAPPED
)

func (s PageState_t) String() string {
	switch s {
	case PAGE_RESIDENT:
		return "RESIDENT"
	case PAGE_SWAPPED:
		return "SWAPPED"
	case PAGE_UNMAPPED:
		return "UNMAPPED"
	default:
		return "UNKNOWN"
	}
}

/// PageInfo_t is one entry of memstat's per-page array (spec §6.3).
/// Seq and SwapSlot are -1 when not applicable, matching the spec's
/// "(−1 if N/A)" convention verbatim.
type PageInfo_t struct {
	VA       uintptr
	State    PageState_t
	IsDirty  bool
	Seq      int64
	SwapSlot int
}

/// MemStat_t mirrors the fields spec §6.3 lists for the memstat
/// syscall's user-supplied record, plus the supplemental per-process
/// counters (SPEC_FULL.md "SUPPLEMENTED FEATURES"), surfaced
/// alongside the contractual fields rather than only in-process.
type MemStat_t struct {
	Pid              defs.Pid_t
	NextFifoSeq      uint64
	NumPagesTotal    int
	NumResidentPages int
	NumSwappedPages  int
	Faults           int64
	ZeroFills        int64
	SwapIns          int64
	Evictions        int64
	Kills            int64
	Pages            []PageInfo_t
}

/// Memstat snapshots the process's current memory state (spec §6.3,
/// scenario 6). It walks [0, sz) in address order, one entry per
/// page up to MaxPagesInfo, classifying each as resident, swapped, or
/// unmapped (_examples/original_source/kernel/sysproc.c's sys_memstat
/// loop: "for(va = 0; va < p->sz && page_count < MAX_PAGES_INFO; va
/// += PGSIZE)") rather than draining the resident and swapped sets
/// separately, which would report pages out of address order and, for
/// the swapped half (a Go map), nondeterministically across runs.
func (p *Proc_t) Memstat() MemStat_t {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := int(util.Roundup(p.Sz, uintptr(limits.PGSIZE))) / limits.PGSIZE
	ms := MemStat_t{
		Pid:              p.Pid,
		NextFifoSeq:      p.fifo,
		NumPagesTotal:    total,
		NumResidentPages: p.Rset.Len(),
		NumSwappedPages:  len(p.swapped),
		Faults:           p.Counters.Faults.Get(),
		ZeroFills:        p.Counters.ZeroFills.Get(),
		SwapIns:          p.Counters.SwapIns.Get(),
		Evictions:        p.Counters.Evictions.Get(),
		Kills:            p.Counters.Kills.Get(),
	}

	max := p.tunables.MaxPagesInfo
	for va := uintptr(0); va < p.Sz && len(ms.Pages) < max; va += uintptr(limits.PGSIZE) {
		pte, ok := p.pgsvc.Lookup(p.Root, va)
		info := PageInfo_t{VA: va, Seq: -1, SwapSlot: -1}
		switch {
		case ok && pte&pgtbl.V != 0:
			info.State = PAGE_RESIDENT
			info.IsDirty = pte&pgtbl.D != 0
			if seq, found := p.Rset.FindSeq(va); found {
				info.Seq = int64(seq)
			}
		case ok && pte&pgtbl.S != 0:
			info.State = PAGE_SWAPPED
			slot, _ := pgtbl.DecodeSwap(pte)
			info.SwapSlot = slot
		default:
			info.State = PAGE_UNMAPPED
		}
		ms.Pages = append(ms.Pages, info)
	}
	return ms
}
