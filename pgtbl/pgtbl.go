// Package pgtbl is the Page Table Service (spec §4.4): it walks and
// edits the hardware page table and encodes swap references into
// non-present PTEs. The layout follows RISC-V Sv39 (three 9-bit
// levels over a 4 KiB page, matching this kernel's "small RISC-V
// teaching kernel" target in spec §1) and repurposes one of the two
// RSW (reserved-for-software) bits the ISA already sets aside for the
// OS as the kernel-defined swap bit S called for in spec §3/§9.
//
// Grounded on biscuit's mem.Pmap_t ([512]Pa_t, one page-table page)
// and mem.pg2pmap (an unsafe.Pointer reinterpretation of a raw page as
// a table of entries, mem/dmap.go) — biscuit targets x86-64's 4-level
// tables with a recursive mapping trick, which this port replaces with
// a plain 3-level Sv39 walk and no recursive mapping, since nothing in
// this spec needs to address the page table itself as data.
package pgtbl

import (
	"unsafe"

	"defs"
	"frame"
)

/// PTE is one 64-bit RISC-V Sv39-shaped page table entry.
type PTE uint64

// Flag bits, in their real Sv39 positions.
const (
	V PTE = 1 << 0 /// present
	R PTE = 1 << 1 /// readable
	W PTE = 1 << 2 /// writable
	X PTE = 1 << 3 /// executable
	U PTE = 1 << 4 /// user-accessible
	G PTE = 1 << 5 /// global (unused by this kernel, carried for realism)
	A PTE = 1 << 6 /// accessed
	D PTE = 1 << 7 /// dirty
	// S occupies the low RSW bit (bit 8) that Sv39 reserves for
	// supervisor software use (spec §3/§9: "a kernel-defined swap bit
	// S"). It is set only when V is clear.
	S PTE = 1 << 8
)

/// PermMask isolates the permission bits memstat and the fault
/// handler care about, excluding V/S/PPN.
const PermMask PTE = R | W | X | U | A | D

const ppnShift = 10
const pgShift = 12
const pgsize = 1 << pgShift

/// Table_t is one page-table page: 512 entries of 8 bytes, exactly
/// filling a 4 KiB frame (matches biscuit's Pmap_t [512]Pa_t).
type Table_t [512]PTE

/// Service_t walks and edits page tables, charging any intermediate
/// table page it must allocate against the Frame Allocator (spec
/// §4.4).
type Service_t struct {
	alloc *frame.Allocator_t
}

/// New returns a page table service backed by alloc.
func New(alloc *frame.Allocator_t) *Service_t {
	return &Service_t{alloc: alloc}
}

func tableAt(fr *frame.Frame_t) *Table_t {
	return (*Table_t)(unsafe.Pointer(fr))
}

func vpn(va uintptr, level int) uintptr {
	shift := uint(pgShift + 9*level)
	return (va >> shift) & 0x1ff
}

/// Addr extracts the physical frame address from a resident PTE.
func Addr(pte PTE) uintptr {
	return uintptr(pte>>ppnShift) << pgShift
}

/// Encode builds a resident leaf PTE pointing at pa with perms.
func Encode(pa uintptr, perms PTE) PTE {
	return PTE(pa>>pgShift)<<ppnShift | (perms & PermMask) | V
}

/// EncodeSwap writes a non-present PTE with the swap bit set and the
/// slot index stored where the frame number would otherwise go,
/// preserving perms for restore on swap-in (spec §4.4 encode_swap).
func EncodeSwap(slot int, perms PTE) PTE {
	return PTE(slot)<<ppnShift | (perms & PermMask) | S
}

/// DecodeSwap is the inverse of EncodeSwap (spec §4.4 decode_swap).
func DecodeSwap(pte PTE) (slot int, perms PTE) {
	return int(pte >> ppnShift), pte & PermMask
}

func tablePTE(child uintptr) PTE {
	return PTE(child>>pgShift)<<ppnShift | V
}

/// NewRoot allocates and zeroes a fresh root page-table page and
/// returns its physical address.
func (s *Service_t) NewRoot() (root uintptr, ok bool) {
	pa, fr, ok := s.alloc.Alloc(0, nil)
	if !ok {
		return 0, false
	}
	frame.Zero(fr)
	return pa, true
}

/// Walk returns a pointer to the leaf PTE for va within root,
/// materializing intermediate page-table pages when allocIntermediate
/// is set (spec §4.4 walk). ok is false when an intermediate table is
/// missing and allocIntermediate is unset, or when one could not be
/// allocated.
func (s *Service_t) Walk(root uintptr, va uintptr, allocIntermediate bool) (*PTE, bool) {
	cur := root
	for level := 2; level >= 1; level-- {
		table := tableAt(s.alloc.At(cur))
		idx := vpn(va, level)
		pte := &table[idx]
		if *pte&V == 0 {
			if !allocIntermediate {
				return nil, false
			}
			childPA, fr, ok := s.alloc.Alloc(0, nil)
			if !ok {
				return nil, false
			}
			frame.Zero(fr)
			*pte = tablePTE(childPA)
		}
		cur = Addr(*pte)
	}
	table := tableAt(s.alloc.At(cur))
	idx := vpn(va, 0)
	return &table[idx], true
}

/// Map installs a resident PTE for va pointing at pa with perms.
/// Fails (defs.EFAULT) if va is already Resident (spec §4.4: "Fails if
/// any target PTE is already Resident").
func (s *Service_t) Map(root, va, pa uintptr, perms PTE) defs.Err_t {
	pte, ok := s.Walk(root, va, true)
	if !ok {
		return -defs.ENOMEM
	}
	if *pte&V != 0 {
		return -defs.EFAULT
	}
	*pte = Encode(pa, perms)
	return 0
}

/// Unmap tears down a Resident mapping for va. If freeFrame is set the
/// underlying frame is returned to the allocator (spec §4.4 unmap).
/// ok is false if va was not Resident.
func (s *Service_t) Unmap(root, va uintptr, freeFrame bool) (pa uintptr, ok bool) {
	pte, found := s.Walk(root, va, false)
	if !found || *pte&V == 0 {
		return 0, false
	}
	pa = Addr(*pte)
	*pte = 0
	if freeFrame {
		s.alloc.Free(pa)
	}
	return pa, true
}

/// Lookup returns the current PTE value for va without materializing
/// missing intermediate tables, used by read-only callers like
/// memstat.
func (s *Service_t) Lookup(root uintptr, va uintptr) (PTE, bool) {
	pte, ok := s.Walk(root, va, false)
	if !ok {
		return 0, false
	}
	return *pte, true
}
