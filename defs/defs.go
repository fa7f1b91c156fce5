// Package defs holds the small cross-package vocabulary (error codes,
// process/thread identifiers) that the rest of the kernel's memory
// subsystem builds on, the same role biscuit's defs package plays for
// the whole kernel.
package defs

/// Err_t is a kernel error code: 0 on success, negative on failure.
/// Positive values are never used; callers compare against the named
/// constants below, never against raw numbers.
type Err_t int

/// Pid_t identifies a process.
type Pid_t int

/// Tid_t identifies a kernel thread running on behalf of a process.
type Tid_t int

// Error codes returned by the memory subsystem. Negated at the return
// site, as in biscuit: "return -defs.EFAULT", not "return EFAULT".
const (
	EFAULT       Err_t = 14 /// invalid virtual address or permission violation
	ENOMEM       Err_t = 12 /// no physical frame available and eviction produced none
	ENOSPC       Err_t = 28 /// swap store has no free slot
	EIO          Err_t = 5  /// short read/write against swap or the executable
	EINVAL       Err_t = 22 /// malformed argument (sbrk overflow, shrink below exe_end, ...)
	ENAMETOOLONG Err_t = 36 /// exec path or argv exceeded its bound
)

/// AccessType_t is the kind of memory reference that faulted.
type AccessType_t int

const (
	ACCESS_READ AccessType_t = iota
	ACCESS_WRITE
	ACCESS_EXEC
)

/// String renders the access type the way it appears in PAGEFAULT log
/// lines (spec §6.2): "read", "write", or "exec".
func (a AccessType_t) String() string {
	switch a {
	case ACCESS_READ:
		return "read"
	case ACCESS_WRITE:
		return "write"
	case ACCESS_EXEC:
		return "exec"
	default:
		return "unknown"
	}
}

/// FaultCause_t classifies why a fault occurred, as shown in PAGEFAULT
/// log lines. Stack and heap faults resolve the same way; an invalid
/// cause kills the process, and an exec cause also loads the page from
/// the executable.
type FaultCause_t int

const (
	CAUSE_EXEC FaultCause_t = iota
	CAUSE_HEAP
	CAUSE_STACK
	CAUSE_SWAP
	CAUSE_INVALID
)

func (c FaultCause_t) String() string {
	switch c {
	case CAUSE_EXEC:
		return "exec"
	case CAUSE_HEAP:
		return "heap"
	case CAUSE_STACK:
		return "stack"
	case CAUSE_SWAP:
		return "swap"
	case CAUSE_INVALID:
		return "invalid"
	default:
		return "unknown"
	}
}

/// SbrkMode_t selects whether sbrk growth is backed immediately or on
/// first touch (spec §4.7).
type SbrkMode_t int

const (
	SBRK_EAGER SbrkMode_t = iota
	SBRK_LAZY
)
