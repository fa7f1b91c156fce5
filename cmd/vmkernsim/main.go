// Command vmkernsim drives the memory subsystem end to end the way a
// userspace test harness would if this were booted inside the real
// kernel: exec a tiny synthetic program, grow its heap, touch enough
// pages to force an eviction and a swap-in, then dump a memstat
// snapshot. Grounded on mkfs.go's plain os.Args entry point (biscuit
// has no flag-parsing dependency anywhere in the retrieval pack).
package main

import (
	"bytes"
	"fmt"
	"os"

	"config"
	"defs"
	"frame"
	"limits"
	"pgtbl"
	"tinfo"
	"vm"
)

func main() {
	tun := limits.Default()
	if len(os.Args) > 1 {
		loaded, err := config.LoadBootConfig(os.Args[1])
		if err != nil {
			fmt.Printf("vmkernsim: %v, using built-in defaults\n", err)
		} else {
			tun = loaded
		}
	}

	swapDir, err := os.MkdirTemp("", "vmkernsim-swap")
	if err != nil {
		fmt.Printf("vmkernsim: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(swapDir)

	alloc := frame.New(tun.FramePoolSize, 0x80000000)
	pgsvc := pgtbl.New(alloc)
	note := &tinfo.Note_t{}
	proc := vm.New(defs.Pid_t(1), alloc, pgsvc, tun, swapDir, note)

	text := make([]byte, limits.PGSIZE)
	copy(text, []byte("vmkernsim demo program\x00"))
	segs := []vm.Segment_t{
		{VAStart: 0x1000, VAEnd: 0x2000, FileOff: 0, FileSz: int64(len(text)), Perms: pgtbl.R | pgtbl.X},
	}
	exeEnd := uintptr(0x2000)
	sz := uintptr(0x10000)
	if err := proc.Exec(bytes.NewReader(text), segs, exeEnd, sz); err != 0 {
		fmt.Printf("vmkernsim: exec failed: %v\n", err)
		os.Exit(1)
	}

	if err := proc.Fault(0x1000, defs.ACCESS_EXEC); err != 0 {
		fmt.Printf("vmkernsim: text fault failed: %v\n", err)
		os.Exit(1)
	}

	growBy := (tun.ResidentMax + 3) * limits.PGSIZE
	if _, err := proc.Sbrk(growBy, defs.SBRK_LAZY); err != 0 {
		fmt.Printf("vmkernsim: sbrk failed: %v\n", err)
		os.Exit(1)
	}

	heapBase := sz
	for i := 0; i < tun.ResidentMax+3; i++ {
		va := heapBase + uintptr(i*limits.PGSIZE)
		if err := proc.Fault(va, defs.ACCESS_WRITE); err != 0 {
			fmt.Printf("vmkernsim: heap fault at %#x failed: %v\n", va, err)
			os.Exit(1)
		}
	}

	// The first heap page has been evicted by now; touching it again
	// swaps it back in.
	if err := proc.Fault(heapBase, defs.ACCESS_READ); err != 0 {
		fmt.Printf("vmkernsim: swap-in fault at %#x failed: %v\n", heapBase, err)
		os.Exit(1)
	}

	ms := proc.Memstat()
	fmt.Printf("memstat: pid=%d resident=%d swapped=%d total=%d next_seq=%d\n",
		ms.Pid, ms.NumResidentPages, ms.NumSwappedPages, ms.NumPagesTotal, ms.NextFifoSeq)
	fmt.Printf("counters: faults=%d zerofills=%d swapins=%d evictions=%d kills=%d\n",
		ms.Faults, ms.ZeroFills, ms.SwapIns, ms.Evictions, ms.Kills)
	for _, pi := range ms.Pages {
		fmt.Printf("  va=%#x state=%s dirty=%v seq=%d swap_slot=%d\n",
			pi.VA, pi.State, pi.IsDirty, pi.Seq, pi.SwapSlot)
	}

	proc.Exit()
}
