package vm

import (
	"bytes"
	"io"
	"os"
	"testing"

	"defs"
	"frame"
	"limits"
	"pgtbl"
	"tinfo"
)

func testTunables() limits.Tunables_t {
	return limits.Tunables_t{
		ResidentMax:   4,
		MaxSwapSlots:  8,
		MaxPagesInfo:  32,
		FramePoolSize: 64,
	}
}

// newTestProc execs a process with a one-page text segment at
// [0x1000, 0x2000) and an initial sz big enough to hold a heap-growth region
// without colliding with the exec-time stack page.
func newTestProc(t *testing.T, tun limits.Tunables_t) *Proc_t {
	t.Helper()
	alloc := frame.New(tun.FramePoolSize, 0x80000000)
	pgsvc := pgtbl.New(alloc)
	note := &tinfo.Note_t{}
	dir := t.TempDir()

	p := New(defs.Pid_t(1), alloc, pgsvc, tun, dir, note)

	// Text starts at 0x1000, not 0: spec §4.5 classification 1 treats
	// the null page as always invalid regardless of segment coverage,
	// the usual guard against a null-pointer dereference.
	exeEnd := uintptr(0x2000)
	sz := uintptr(0x10000)
	exeData := make([]byte, limits.PGSIZE)
	for i := range exeData {
		exeData[i] = byte(i)
	}
	segs := []Segment_t{
		{VAStart: 0x1000, VAEnd: exeEnd, FileOff: 0, FileSz: int64(len(exeData)), Perms: pgtbl.R | pgtbl.X},
	}
	if err := p.Exec(bytes.NewReader(exeData), segs, exeEnd, sz); err != 0 {
		t.Fatalf("Exec failed: %v", err)
	}
	return p
}

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	f()
	w.Close()
	os.Stdout = orig
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}
