//go:build linux && amd64

package liveaccess

import (
	"encoding/binary"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/coredump-run/dwarfsym/internal/cursor"
)

// TestValidatorDrivesCheckedCursor ptrace-attaches a real child process
// and drives cursor.NewChecked through Process.Validator(): address 0 is
// never mapped, so a checked read there must fail, while the child's
// instruction pointer at its first stop names a mapped, executable page a
// checked read must succeed against.
func TestValidatorDrivesCheckedCursor(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "5")
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Stopped())

	defer func() {
		_ = syscall.PtraceDetach(pid)
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	var regs unix.PtraceRegs
	require.NoError(t, unix.PtraceGetRegs(pid, &regs))

	p := Attach(pid)
	validate := p.Validator()

	require.False(t, validate(0, 8))
	require.True(t, validate(regs.Rip, 1))

	unmapped := cursor.NewChecked(make([]byte, 8), binary.LittleEndian, 0, validate)
	_, err = unmapped.ReadU8()
	require.Error(t, err)

	mapped := cursor.NewChecked(make([]byte, 8), binary.LittleEndian, regs.Rip, validate)
	_, err = mapped.ReadU8()
	require.NoError(t, err)
}
