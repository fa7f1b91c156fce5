package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"defs"
	"frame"
	"limits"
	"pgtbl"
	"tinfo"
)

// Scenario 1 (spec §8): a process lazily grows its heap by ten pages,
// then touches three of them out of order. Lazy growth alone must
// produce no log lines; each first touch produces exactly one
// PAGEFAULT/RESIDENT pair, never a repeat for the same page.
func TestScenario1LazyHeapSbrk(t *testing.T) {
	p := newTestProc(t, testTunables())

	sbrkOut := captureStdout(t, func() {
		if _, err := p.Sbrk(10*limits.PGSIZE, defs.SBRK_LAZY); err != 0 {
			t.Fatalf("Sbrk failed: %v", err)
		}
	})
	if sbrkOut != "" {
		t.Errorf("lazy sbrk must emit no log lines, got %q", sbrkOut)
	}

	heapBase := uintptr(0x10000)
	offsets := []uintptr{0, 5 * uintptr(limits.PGSIZE), 9 * uintptr(limits.PGSIZE)}
	wantSeq := []uint64{1, 2, 3} // seq 0 was consumed by the exec-time stack page

	for i, off := range offsets {
		va := heapBase + off
		out := captureStdout(t, func() {
			if err := p.Fault(va, defs.ACCESS_WRITE); err != 0 {
				t.Fatalf("Fault(%#x) failed: %v", va, err)
			}
		})
		wantPF := fmt.Sprintf("PAGEFAULT va=%#x access=write cause=heap", va)
		if !strings.Contains(out, wantPF) {
			t.Errorf("offset %#x: missing %q, got %q", off, wantPF, out)
		}
		wantRes := fmt.Sprintf("RESIDENT va=%#x seq=%d", va, wantSeq[i])
		if !strings.Contains(out, wantRes) {
			t.Errorf("offset %#x: missing %q, got %q", off, wantRes, out)
		}
		if n := strings.Count(out, "PAGEFAULT"); n != 1 {
			t.Errorf("offset %#x: expected exactly one PAGEFAULT line, got %d", off, n)
		}
		if n := strings.Count(out, "RESIDENT"); n != 1 {
			t.Errorf("offset %#x: expected exactly one RESIDENT line, got %d", off, n)
		}
	}
}

// Scenario 2 (spec §8): repeated stack growth one page at a time, each
// classified cause=stack and resolved, never heap.
func TestScenario2StackGrowth(t *testing.T) {
	p := newTestProc(t, testTunables())

	sp := uintptr(0xF000) // initial sp, set by Exec
	for i := 0; i < 5; i++ {
		sp -= uintptr(limits.PGSIZE)
		p.SetSP(sp)
		out := captureStdout(t, func() {
			if err := p.Fault(sp, defs.ACCESS_WRITE); err != 0 {
				t.Fatalf("growth %d: Fault failed: %v", i, err)
			}
		})
		wantPF := fmt.Sprintf("PAGEFAULT va=%#x access=write cause=stack", sp)
		if !strings.Contains(out, wantPF) {
			t.Errorf("growth %d: missing %q, got %q", i, wantPF, out)
		}
	}
}

// Scenario 3 (spec §8): filling the resident set to RESIDENT_MAX and
// then touching one more page evicts the FIFO head (the exec-time
// stack page) and logs MEMFULL/VICTIM/EVICT before the new RESIDENT.
func TestScenario3FIFOEviction(t *testing.T) {
	tun := testTunables()
	tun.ResidentMax = 4
	p := newTestProc(t, tun)

	captureStdout(t, func() {
		if _, err := p.Sbrk(7*limits.PGSIZE, defs.SBRK_LAZY); err != 0 {
			t.Fatalf("Sbrk failed: %v", err)
		}
	})

	heapBase := uintptr(0x10000)
	pages := make([]uintptr, 7)
	for i := range pages {
		pages[i] = heapBase + uintptr(i)*uintptr(limits.PGSIZE)
	}

	// Resident set starts with one entry (the exec-time stack page,
	// seq 0). Touching p1..p3 fills it to RESIDENT_MAX=4.
	for i := 0; i < 3; i++ {
		captureStdout(t, func() {
			if err := p.Fault(pages[i], defs.ACCESS_WRITE); err != 0 {
				t.Fatalf("fault on page %d failed: %v", i, err)
			}
		})
	}
	if got := p.Rset.Len(); got != 4 {
		t.Fatalf("resident set = %d entries, want 4 (full)", got)
	}

	stackVA := uintptr(0xF000)
	out := captureStdout(t, func() {
		if err := p.Fault(pages[3], defs.ACCESS_WRITE); err != 0 {
			t.Fatalf("fault on page 4 failed: %v", err)
		}
	})
	if !strings.Contains(out, "MEMFULL") {
		t.Errorf("expected MEMFULL, got %q", out)
	}
	if want := fmt.Sprintf("VICTIM va=%#x seq=0", stackVA); !strings.Contains(out, want) {
		t.Errorf("expected %q (the oldest entry, the exec-time stack page), got %q", want, out)
	}
	if want := fmt.Sprintf("EVICT va=%#x slot=0", stackVA); !strings.Contains(out, want) {
		t.Errorf("expected %q, got %q", want, out)
	}
	if want := fmt.Sprintf("RESIDENT va=%#x seq=4", pages[3]); !strings.Contains(out, want) {
		t.Errorf("expected %q, got %q", want, out)
	}
	if got := p.Rset.Len(); got != 4 {
		t.Errorf("resident set should remain at its bound, got %d", got)
	}
	if p.Rset.Contains(stackVA) {
		t.Errorf("evicted page %#x should no longer be resident", stackVA)
	}
}

// Scenario 4 (spec §8): a page written, evicted, and then faulted back
// in must come back byte-for-byte identical, and the swap-in must be
// logged.
func TestScenario4SwapRoundTrip(t *testing.T) {
	tun := testTunables()
	tun.ResidentMax = 2
	p := newTestProc(t, tun)

	captureStdout(t, func() {
		if _, err := p.Sbrk(10*limits.PGSIZE, defs.SBRK_LAZY); err != 0 {
			t.Fatalf("Sbrk failed: %v", err)
		}
	})

	heapBase := uintptr(0x10000)
	p0 := heapBase
	p1 := heapBase + uintptr(limits.PGSIZE)
	p2 := heapBase + 2*uintptr(limits.PGSIZE)

	captureStdout(t, func() {
		if err := p.Fault(p0, defs.ACCESS_WRITE); err != 0 {
			t.Fatalf("fault p0: %v", err)
		}
	})
	pte, ok := p.pgsvc.Lookup(p.Root, p0)
	if !ok || pte&pgtbl.V == 0 {
		t.Fatal("p0 not resident after first fault")
	}
	p.alloc.At(pgtbl.Addr(pte))[0] = 0xAB

	// p0 and the exec-time stack page already fill the (max 2)
	// resident set, so p1 evicts the stack page and p2 then evicts p0.
	captureStdout(t, func() {
		if err := p.Fault(p1, defs.ACCESS_WRITE); err != 0 {
			t.Fatalf("fault p1: %v", err)
		}
	})
	captureStdout(t, func() {
		if err := p.Fault(p2, defs.ACCESS_WRITE); err != 0 {
			t.Fatalf("fault p2: %v", err)
		}
	})

	if p.Rset.Contains(p0) {
		t.Fatal("test setup invariant broken: p0 should have been evicted by now")
	}

	out := captureStdout(t, func() {
		if err := p.Fault(p0, defs.ACCESS_READ); err != 0 {
			t.Fatalf("fault p0 again: %v", err)
		}
	})
	if want := fmt.Sprintf("PAGEFAULT va=%#x access=read cause=swap", p0); !strings.Contains(out, want) {
		t.Errorf("expected %q, got %q", want, out)
	}
	if !strings.Contains(out, "SWAPIN") {
		t.Errorf("expected a SWAPIN line, got %q", out)
	}

	pte2, ok := p.pgsvc.Lookup(p.Root, p0)
	if !ok || pte2&pgtbl.V == 0 {
		t.Fatal("p0 not resident after swap-in")
	}
	fr := p.alloc.At(pgtbl.Addr(pte2))
	if fr[0] != 0xAB {
		t.Errorf("byte 0 after swap round trip = %#x, want 0xab", fr[0])
	}
}

// Scenario 5 (spec §8): an access past sz is classified invalid and
// kills the process.
func TestScenario5InvalidAccessKillsProcess(t *testing.T) {
	p := newTestProc(t, testTunables())

	va := uintptr(0x1000000) // far past sz
	out := captureStdout(t, func() {
		if err := p.Fault(va, defs.ACCESS_WRITE); err == 0 {
			t.Fatal("expected the fault to fail")
		}
	})
	if !strings.Contains(out, "cause=invalid") {
		t.Errorf("expected cause=invalid, got %q", out)
	}
	if !strings.Contains(out, "KILL invalid-access") {
		t.Errorf("expected a KILL invalid-access line, got %q", out)
	}
	if !p.Note.IsKilled() {
		t.Error("expected the process to be marked killed")
	}
}

// Scenario 6 (spec §8): memstat reports a freshly-written heap page as
// resident, dirty, with no swap slot.
func TestScenario6MemstatSnapshot(t *testing.T) {
	p := newTestProc(t, testTunables())
	captureStdout(t, func() {
		if _, err := p.Sbrk(limits.PGSIZE, defs.SBRK_LAZY); err != 0 {
			t.Fatalf("Sbrk failed: %v", err)
		}
	})

	heapVA := uintptr(0x10000)
	captureStdout(t, func() {
		if err := p.Fault(heapVA, defs.ACCESS_WRITE); err != 0 {
			t.Fatalf("Fault failed: %v", err)
		}
	})

	ms := p.Memstat()
	if ms.NumResidentPages < 1 {
		t.Fatalf("NumResidentPages = %d, want >= 1", ms.NumResidentPages)
	}
	var found *PageInfo_t
	for i := range ms.Pages {
		if ms.Pages[i].VA == heapVA {
			found = &ms.Pages[i]
		}
	}
	if found == nil {
		t.Fatalf("memstat did not report va=%#x; pages=%+v", heapVA, ms.Pages)
	}
	if found.State != PAGE_RESIDENT {
		t.Errorf("state = %v, want RESIDENT", found.State)
	}
	if !found.IsDirty {
		t.Error("expected is_dirty=true after a write fault")
	}
	if found.Seq < 0 {
		t.Errorf("seq = %d, want >= 0", found.Seq)
	}
	if found.SwapSlot != -1 {
		t.Errorf("swap_slot = %d, want -1", found.SwapSlot)
	}
}

// A page within [0, sz) that was never faulted in reports UNMAPPED, not
// simply absent from the snapshot.
func TestMemstatReportsUnmappedPages(t *testing.T) {
	p := newTestProc(t, testTunables())

	ms := p.Memstat()
	if len(ms.Pages) != int(p.Sz)/limits.PGSIZE {
		t.Fatalf("len(Pages) = %d, want %d (one entry per page in [0, sz))",
			len(ms.Pages), int(p.Sz)/limits.PGSIZE)
	}
	for i, pi := range ms.Pages {
		wantVA := uintptr(i * limits.PGSIZE)
		if pi.VA != wantVA {
			t.Fatalf("Pages[%d].VA = %#x, want %#x (address order)", i, pi.VA, wantVA)
		}
		if pi.VA == p.Sz-uintptr(limits.PGSIZE) {
			continue // the exec-time stack page, resident since Exec
		}
		if pi.State != PAGE_UNMAPPED {
			t.Errorf("va=%#x state=%v, want UNMAPPED", pi.VA, pi.State)
		}
	}
}

// Memstat caps its per-page array at MaxPagesInfo even when the address
// range has more pages to report, matching the contract's truncation rule.
func TestMemstatCapsAtMaxPagesInfo(t *testing.T) {
	tun := testTunables()
	tun.MaxPagesInfo = 3
	p := newTestProc(t, tun)

	ms := p.Memstat()
	if len(ms.Pages) != 3 {
		t.Fatalf("len(Pages) = %d, want 3", len(ms.Pages))
	}
	for i, pi := range ms.Pages {
		if pi.VA != uintptr(i*limits.PGSIZE) {
			t.Errorf("Pages[%d].VA = %#x, want %#x", i, pi.VA, uintptr(i*limits.PGSIZE))
		}
	}
}

// Faulting in a text page after Exec loads the segment's file bytes
// and zero-fills the remainder of the page (spec §4.5 zero-fill step
// (c)); Exec itself reads nothing.
func TestExecLoadsSegmentBytesWithZeroTail(t *testing.T) {
	alloc := frame.New(64, 0x80000000)
	pgsvc := pgtbl.New(alloc)
	note := &tinfo.Note_t{}
	tun := testTunables()
	p := New(defs.Pid_t(2), alloc, pgsvc, tun, t.TempDir(), note)

	fileSz := 100
	data := make([]byte, fileSz)
	for i := range data {
		data[i] = byte(i + 1)
	}
	segs := []Segment_t{
		{VAStart: 0x1000, VAEnd: 0x2000, FileOff: 0, FileSz: int64(fileSz), Perms: pgtbl.R | pgtbl.X},
	}
	if err := p.Exec(bytes.NewReader(data), segs, 0x2000, 0x3000); err != 0 {
		t.Fatalf("Exec failed: %v", err)
	}

	captureStdout(t, func() {
		if err := p.Fault(0x1000, defs.ACCESS_EXEC); err != 0 {
			t.Fatalf("fault on text page failed: %v", err)
		}
	})

	pte, ok := p.pgsvc.Lookup(p.Root, 0x1000)
	if !ok || pte&pgtbl.V == 0 {
		t.Fatal("text page not resident")
	}
	fr := p.alloc.At(pgtbl.Addr(pte))
	for i := 0; i < fileSz; i++ {
		if fr[i] != byte(i+1) {
			t.Fatalf("byte %d = %#x, want %#x", i, fr[i], byte(i+1))
		}
	}
	for i := fileSz; i < limits.PGSIZE; i++ {
		if fr[i] != 0 {
			t.Fatalf("bss tail byte %d = %#x, want 0", i, fr[i])
		}
	}
	if pte&pgtbl.X == 0 {
		t.Error("expected exec permission on the text page")
	}
}

// The null page is always invalid (spec §4.5 classification 1),
// regardless of whether a segment happens to be positioned to cover
// it; exercised separately from the text-page test above since no
// realistic segment layout starts at address 0.
func TestNullPageAlwaysInvalid(t *testing.T) {
	p := newTestProc(t, testTunables())
	out := captureStdout(t, func() {
		if err := p.Fault(0, defs.ACCESS_READ); err == 0 {
			t.Fatal("expected fault at va=0 to fail")
		}
	})
	if !strings.Contains(out, "cause=invalid") {
		t.Errorf("expected cause=invalid, got %q", out)
	}
}
