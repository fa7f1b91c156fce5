// Package tinfo tracks per-process liveness state: whether a process
// has been marked killed, and why. The fault handler sets it when it
// kills a process; it does not re-check it after a swap or executable
// read or write. Adapted from biscuit's
// tinfo.Tnote_t/Threadinfo_t; this port drops the goroutine-local
// storage trick built on biscuit's patched runtime (runtime.Gptr /
// runtime.Setgptr, which do not exist outside that fork) in favor of
// passing the note explicitly, which is the idiomatic stock-Go way to
// thread per-request state through a call chain.
package tinfo

import "sync"

import "defs"

/// Note_t records whether a process has been marked for death, and
/// why. The fault handler marks it; no fault path reads Killed back
/// after a disk read or write, so a kill from outside does not cut
/// short a fault that is already being resolved.
type Note_t struct {
	sync.Mutex
	Killed bool
	Reason string
}

/// Kill marks the process dead with the given reason. Idempotent.
func (n *Note_t) Kill(reason string) {
	n.Lock()
	defer n.Unlock()
	if !n.Killed {
		n.Killed = true
		n.Reason = reason
	}
}

/// IsKilled reports whether the process has been marked dead.
func (n *Note_t) IsKilled() bool {
	n.Lock()
	defer n.Unlock()
	return n.Killed
}

/// Threadinfo_t tracks live notes by process id, mirroring biscuit's
/// Threadinfo_t. Not required by any spec invariant on its own, but
/// gives a place for a monitor (e.g. `wait`) to look up why a child
/// died.
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Pid_t]*Note_t
}

/// Init prepares an empty table.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Pid_t]*Note_t)
}

/// Add registers a fresh note for pid and returns it.
func (t *Threadinfo_t) Add(pid defs.Pid_t) *Note_t {
	t.Lock()
	defer t.Unlock()
	n := &Note_t{}
	t.Notes[pid] = n
	return n
}

/// Remove deletes pid's note, e.g. on exit.
func (t *Threadinfo_t) Remove(pid defs.Pid_t) {
	t.Lock()
	defer t.Unlock()
	delete(t.Notes, pid)
}
