// Console diagnostics for the memory subsystem, one line per event,
// fields as space-separated key=value tokens (spec §6.2). Grounded on
// the teacher's plain fmt.Printf console style (kernel/chentry.go,
// vm/as.go) rather than a logging library: there is no structured
// logger anywhere in the retrieval pack, and tests key off these
// exact tokens, so a library that reformats or buffers output would
// fight the contract rather than serve it.
package vm

import (
	"fmt"

	"defs"
)

func logInitLazymap(pid defs.Pid_t, exeEnd, sz, stackTop uintptr) {
	fmt.Printf("[pid %d] INIT-LAZYMAP text=[0x0,%#x) data=[%#x,%#x) heap_start=%#x stack_top=%#x\n",
		pid, exeEnd, exeEnd, sz, exeEnd, stackTop)
}

func logPagefault(pid defs.Pid_t, va uintptr, access defs.AccessType_t, cause defs.FaultCause_t) {
	fmt.Printf("[pid %d] PAGEFAULT va=%#x access=%s cause=%s\n", pid, va, access, cause)
}

func logResident(pid defs.Pid_t, va uintptr, seq uint64) {
	fmt.Printf("[pid %d] RESIDENT va=%#x seq=%d\n", pid, va, seq)
}

func logMemfull(pid defs.Pid_t) {
	fmt.Printf("[pid %d] MEMFULL\n", pid)
}

func logVictim(pid defs.Pid_t, va uintptr, seq uint64) {
	fmt.Printf("[pid %d] VICTIM va=%#x seq=%d\n", pid, va, seq)
}

func logEvict(pid defs.Pid_t, va uintptr, slot int) {
	fmt.Printf("[pid %d] EVICT va=%#x slot=%d\n", pid, va, slot)
}

func logSwapin(pid defs.Pid_t, va uintptr, slot int) {
	fmt.Printf("[pid %d] SWAPIN va=%#x slot=%d\n", pid, va, slot)
}

func logKillInvalidAccess(pid defs.Pid_t, va uintptr, access defs.AccessType_t) {
	fmt.Printf("[pid %d] KILL invalid-access va=%#x access=%s\n", pid, va, access)
}
