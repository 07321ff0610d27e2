//go:build linux

// Package liveaccess implements cursor.Validator against a live,
// ptrace-attached process's memory, for callers that want the decoding
// core's checked-cursor variants to validate reads against real process
// memory instead of a static byte slice. Grounded on
// github.com/go-delve/delve/pkg/proc/native/threads_linux.go's
// ReadMemory, which wraps the exact same sys.PtracePeekData call this
// package uses. Linux-only: the core's Validator is a plain function
// value, so every other platform simply has no implementation of this
// package to import.
package liveaccess

import (
	"golang.org/x/sys/unix"

	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// Process is a ptrace-attached process this package reads memory from.
// The caller is responsible for attaching (PTRACE_ATTACH or PTRACE_TRACEME
// plus a stop) and detaching; this package only issues PEEKDATA calls
// against the given pid.
type Process struct {
	pid int
}

// Attach wraps an already-traced process identified by pid. It does not
// itself call ptrace(PTRACE_ATTACH, ...); use it once a debugger has
// already stopped the target.
func Attach(pid int) *Process {
	return &Process{pid: pid}
}

// ReadMemory reads len(data) bytes starting at addr from the traced
// process into data.
func (p *Process) ReadMemory(data []byte, addr uintptr) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	return unix.PtracePeekData(p.pid, addr, data)
}

// Validator returns a cursor.Validator that treats addr as safe to read
// iff a PEEKDATA probe of n bytes starting at addr succeeds.
func (p *Process) Validator() cursor.Validator {
	return func(addr uint64, n int) bool {
		if n <= 0 {
			return true
		}
		buf := make([]byte, n)
		_, err := p.ReadMemory(buf, uintptr(addr))
		return err == nil
	}
}
