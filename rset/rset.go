// Package rset is the per-process Resident Set (spec §4.3): an
// ordered record, bounded by RESIDENT_MAX, of which virtual addresses
// currently hold a frame, each stamped with the sequence number it
// was given when it became resident. Ordering is FIFO by insertion,
// never by access, which is what makes Oldest() the correct victim
// selector for the Replacement Policy (spec §4.6, P4).
//
// There is no direct biscuit counterpart (biscuit's vm package never
// evicts — it relies on a much larger physical pool and COW sharing
// instead), so this is modeled on the spec's own data model (§3)
// using the same small, mutex-free, caller-synchronized style as
// biscuit's Vmregion_t: the owning process's single kernel thread
// serializes all access during fault handling (spec §5), so no
// internal locking is needed here.
package rset

/// Entry_t is one resident page: its virtual address and the
/// sequence number it entered the set with.
type Entry_t struct {
	Va  uintptr
	Seq uint64
}

/// Set_t is an ordered, size-bounded collection of resident entries.
type Set_t struct {
	entries []Entry_t
	max     int
}

/// New returns an empty resident set bounded at max entries.
func New(max int) *Set_t {
	return &Set_t{max: max}
}

/// Max returns RESIDENT_MAX for this set.
func (s *Set_t) Max() int {
	return s.max
}

/// Len returns the current number of resident entries.
func (s *Set_t) Len() int {
	return len(s.entries)
}

/// Full reports whether the set has reached its bound (spec P3).
func (s *Set_t) Full() bool {
	return len(s.entries) >= s.max
}

/// Add appends a new entry. Callers must ensure room exists first
/// (spec §4.3: "callers guarantee size < RESIDENT_MAX before
/// calling"); Add panics otherwise since that would be a caller bug,
/// not a runtime condition.
func (s *Set_t) Add(va uintptr, seq uint64) {
	if s.Full() {
		panic("rset: Add called without ensuring room first")
	}
	s.entries = append(s.entries, Entry_t{Va: va, Seq: seq})
}

/// Remove deletes the entry for va and returns its sequence number.
func (s *Set_t) Remove(va uintptr) (seq uint64, ok bool) {
	for i, e := range s.entries {
		if e.Va == va {
			seq = e.Seq
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return seq, true
		}
	}
	return 0, false
}

/// Oldest returns the entry with the smallest sequence number, the
/// FIFO head and the Replacement Policy's victim (spec §4.6, P4).
func (s *Set_t) Oldest() (Entry_t, bool) {
	if len(s.entries) == 0 {
		return Entry_t{}, false
	}
	oldest := s.entries[0]
	for _, e := range s.entries[1:] {
		if e.Seq < oldest.Seq {
			oldest = e
		}
	}
	return oldest, true
}

/// FindSeq is a read-only lookup for statistics (spec §4.3, §6.3).
func (s *Set_t) FindSeq(va uintptr) (seq uint64, ok bool) {
	for _, e := range s.entries {
		if e.Va == va {
			return e.Seq, true
		}
	}
	return 0, false
}

/// Contains reports whether va currently holds a frame.
func (s *Set_t) Contains(va uintptr) bool {
	_, ok := s.FindSeq(va)
	return ok
}

/// Entries returns a snapshot of the resident set ordered by
/// insertion, used by exec, fork and exit to walk the resident pages.
func (s *Set_t) Entries() []Entry_t {
	out := make([]Entry_t, len(s.entries))
	copy(out, s.entries)
	return out
}

/// Clear empties the set, used on exec/exit (spec §4.7).
func (s *Set_t) Clear() {
	s.entries = nil
}
