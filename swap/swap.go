// Package swap is the per-process Swap Store (spec §4.2): a
// fixed-size file of 4 KiB slots plus a bitmap tracking which slots
// are in use. Grounded on biscuit's disk-backed file I/O style in
// ufs/ufs.go (a userspace file standing in for a block device, opened
// lazily and accessed with plain os/io), adapted here to hold raw
// swap slots instead of a filesystem image. The bitmap bookkeeping
// follows the same "single mutex, fixed capacity, fail closed"
// discipline as biscuit's limits.Sysatomic_t-guarded pools.
package swap

import (
	"fmt"
	"io"
	"os"
	"sync"

	"defs"
	"limits"
)

/// Store_t is one process's swap file and slot bitmap. The file is
/// not created until the first eviction (spec §4.2): ensure_file is
/// idempotent and programs that never exceed RESIDENT_MAX never pay
/// for it.
type Store_t struct {
	mu    sync.Mutex
	dir   string
	pid   int
	file  *os.File
	used  []bool
	max   int
	avail limits.Sysatomic_t
}

/// New returns a swap store for pid with room for max slots. No file
/// is created yet.
func New(dir string, pid int, max int) *Store_t {
	s := &Store_t{
		dir:  dir,
		pid:  pid,
		used: make([]bool, max),
		max:  max,
	}
	s.avail.Given(uint(max))
	return s
}

func (s *Store_t) path() string {
	return fmt.Sprintf("%s/swap.%d", s.dir, s.pid)
}

/// EnsureFile creates the backing file the first time it is called
/// for this process; later calls are no-ops.
func (s *Store_t) EnsureFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureFileLocked()
}

func (s *Store_t) ensureFileLocked() error {
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(s.path(), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(s.max) * int64(limits.PGSIZE)); err != nil {
		f.Close()
		return err
	}
	s.file = f
	return nil
}

/// AllocSlot gates on avail, a Sysatomic_t counting free slots, so a
/// full store fails fast on the atomic decrement (spec §4.2) before
/// ever scanning the bitmap; then it scans for the clear bit the
/// decrement just reserved and sets it.
func (s *Store_t) AllocSlot() (idx int, ok bool) {
	if !s.avail.Take() {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.used {
		if !u {
			s.used[i] = true
			return i, true
		}
	}
	panic("swap: avail and bitmap disagree")
}

/// FreeSlot clears the bit for idx and returns it to avail.
func (s *Store_t) FreeSlot(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= s.max {
		panic(fmt.Sprintf("swap: slot %d out of range", idx))
	}
	s.used[idx] = false
	s.avail.Give()
}

/// ReadSlot reads exactly PGSIZE bytes from slot idx into dst.
/// A short read is reported as defs.EIO (spec §4.2, §7) rather than
/// panicking: swap contents can legitimately be absent if the caller
/// raced with process exit, which is the faulting process's problem,
/// not a kernel bug.
func (s *Store_t) ReadSlot(idx int, dst *[limits.PGSIZE]byte) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		if err := s.ensureFileLocked(); err != nil {
			return -defs.EIO
		}
	}
	n, err := s.file.ReadAt(dst[:], int64(idx)*int64(limits.PGSIZE))
	if n != limits.PGSIZE || (err != nil && err != io.EOF) {
		return -defs.EIO
	}
	return 0
}

/// WriteSlot writes exactly PGSIZE bytes from src into slot idx.
func (s *Store_t) WriteSlot(idx int, src *[limits.PGSIZE]byte) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFileLocked(); err != nil {
		return -defs.EIO
	}
	n, err := s.file.WriteAt(src[:], int64(idx)*int64(limits.PGSIZE))
	if n != limits.PGSIZE || err != nil {
		return -defs.EIO
	}
	return 0
}

/// Full reports whether every slot is allocated.
func (s *Store_t) Full() bool {
	return s.avail.Cur() == 0
}

/// AllocatedCount returns the number of slots currently in use,
/// exercised by memstat (spec §6.3) and the no-leak property (spec
/// P1).
func (s *Store_t) AllocatedCount() int {
	return s.max - int(s.avail.Cur())
}

/// Destroy closes and removes the backing file and clears the
/// bitmap, the swap half of exit (spec §4.7).
func (s *Store_t) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		os.Remove(s.path())
		s.file = nil
	}
	s.avail.Given(uint(s.max - int(s.avail.Cur())))
	for i := range s.used {
		s.used[i] = false
	}
}
