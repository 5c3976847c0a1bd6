package job

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NoPid marks a Process that has not been forked yet.
const NoPid = 0

// Process is one pipeline stage.
type Process struct {
	// Argv is the argument vector. It is never empty and never modified
	// after the Process is created.
	Argv []string

	// Pid is the OS process id, NoPid until the stage is started.
	Pid int

	// Completed becomes true once and stays true.
	Completed bool

	// Stopped is true while the process is suspended by a stop signal.
	Stopped bool

	// Status is the last wait status reported by the kernel.
	Status unix.WaitStatus
}

func newProcess(argv []string) *Process {
	cp := make([]string, len(argv))
	copy(cp, argv)
	return &Process{Argv: cp, Pid: NoPid}
}

// MarkStopped records a stop reported by the kernel. A completed process
// cannot be stopped again.
func (p *Process) MarkStopped(ws unix.WaitStatus) {
	if p.Completed {
		return
	}
	p.Status = ws
	p.Stopped = true
}

// MarkCompleted records termination of the process.
func (p *Process) MarkCompleted(ws unix.WaitStatus) {
	p.Status = ws
	p.Stopped = false
	p.Completed = true
}

// MarkRunning clears the stopped flag ahead of a continue signal.
func (p *Process) MarkRunning() {
	p.Stopped = false
}

// ExitCode returns the exit code of a completed process, 128+n when it was
// killed by signal n, and -1 when it has not completed.
func (p *Process) ExitCode() int {
	if !p.Completed {
		return -1
	}
	if p.Status.Signaled() {
		return 128 + int(p.Status.Signal())
	}
	return p.Status.ExitStatus()
}

func (p *Process) String() string {
	return fmt.Sprintf("%d %v", p.Pid, p.Argv)
}

// ExitedStatus builds the wait status the kernel reports for exit(code).
func ExitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus((code & 0xff) << 8)
}

// SignaledStatus builds the wait status of a process killed by sig.
func SignaledStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig & 0x7f)
}

// StoppedStatus builds the wait status of a process suspended by sig.
func StoppedStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(0x7f | (int(sig) << 8))
}
