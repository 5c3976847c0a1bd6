// Package launch turns a job's stages into running processes wired
// together by pipes and placed in the job's process group.
package launch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/log"
)

// Exit statuses recorded for a stage whose program could not be executed.
const (
	StatusNotFound      = 127
	StatusNotExecutable = 126
)

// Handoff is the terminal side of a launch: whether job control is on, and
// how a freshly launched job is given to the terminal or sent away from it.
type Handoff interface {
	Interactive() bool
	Terminal() *os.File
	Foreground(j *job.Job, resume bool)
	Background(j *job.Job, resume bool)
}

// Settler blocks until a job is stopped or completed.
type Settler interface {
	WaitUntilSettled(j *job.Job)
}

// PipeFunc creates a pipe. It has the signature of os.Pipe.
type PipeFunc func() (r *os.File, w *os.File, err error)

// Launcher starts jobs and registers them in a table.
type Launcher struct {
	table    *job.Table
	handoff  Handoff
	settler  Settler
	announce func(*job.Job)
	diag     io.Writer
	pipe     PipeFunc
	logger   *slog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ln *Launcher) {
		ln.logger = l
	}
}

// WithPipe replaces pipe creation, for tests.
func WithPipe(fn PipeFunc) Option {
	return func(ln *Launcher) {
		ln.pipe = fn
	}
}

// WithAnnounce sets the callback told about every registered job.
func WithAnnounce(fn func(*job.Job)) Option {
	return func(ln *Launcher) {
		ln.announce = fn
	}
}

// New creates a Launcher. Stage failures are reported on diag.
func New(table *job.Table, handoff Handoff, settler Settler, diag io.Writer, opts ...Option) *Launcher {
	ln := &Launcher{
		table:    table,
		handoff:  handoff,
		settler:  settler,
		announce: func(*job.Job) {},
		diag:     diag,
		pipe:     os.Pipe,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(ln)
	}
	ln.logger = ln.logger.With("component", "launch")
	return ln
}

// Launch starts every stage of j, registers it, and hands it to the
// terminal. For a foreground job, or any job when the shell is not
// interactive, Launch returns once the job has stopped or completed.
//
// Files recorded with j.IO.Own are closed before Launch returns. On a
// SpawnError every stage already started is killed and j is not registered.
func (ln *Launcher) Launch(j *job.Job) (job.Handle, error) {
	defer j.IO.CloseOwned()

	interactive := ln.handoff.Interactive()
	last := len(j.Processes) - 1
	in := j.IO.Input

	for i, p := range j.Processes {
		out := j.IO.Output
		var next *os.File
		if i < last {
			r, w, err := ln.pipe()
			if err != nil {
				ln.closeRolling(j, in)
				ln.abort(j)
				return job.Handle{}, &SpawnError{Op: "pipe", Stage: i, Err: err}
			}
			next, out = r, w
		}

		cmd := ln.command(j, p, in, out, interactive)
		err := cmd.Start()

		// The child holds its own copies now; keep only the read end that
		// feeds the next stage.
		if i < last {
			_ = out.Close()
		}
		ln.closeRolling(j, in)
		in = next

		if err != nil {
			code, fatal := classify(err)
			if fatal {
				ln.closeRolling(j, in)
				ln.abort(j)
				return job.Handle{}, &SpawnError{Op: "fork", Stage: i, Err: err}
			}
			ln.execFailed(p, code, err)
			continue
		}

		p.Pid = cmd.Process.Pid
		if j.Pgid == 0 {
			_ = j.SetPgid(p.Pid)
		}
		if interactive {
			ln.joinGroup(p.Pid, j.Pgid)
		}
		// Waiting belongs to the reaper.
		_ = cmd.Process.Release()
	}

	h := ln.table.Add(j)
	ln.logger.Info("job launched",
		"id", j.ID,
		"pgid", j.Pgid,
		"stages", len(j.Processes),
		"foreground", j.Foreground,
		"command", j.Command)
	// With no stage started there is no group to report; the completion
	// notice is the only line such a job gets.
	if j.Pgid != 0 {
		ln.announce(j)
	}

	switch {
	case !interactive:
		ln.settler.WaitUntilSettled(j)
	case j.Foreground:
		ln.handoff.Foreground(j, false)
	default:
		ln.handoff.Background(j, false)
	}
	return h, nil
}

// command builds the exec.Cmd for one stage.
func (ln *Launcher) command(j *job.Job, p *job.Process, in, out *os.File, interactive bool) *exec.Cmd {
	cmd := exec.Command(p.Argv[0], p.Argv[1:]...)
	// A nil *os.File must not reach the interface fields, where exec would
	// treat it as a file and leave the descriptor closed in the child.
	if in != nil {
		cmd.Stdin = in
	}
	if out != nil {
		cmd.Stdout = out
	}
	if j.IO.Error != nil {
		cmd.Stderr = j.IO.Error
	}

	if !interactive {
		return cmd
	}
	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: j.Pgid}
	if tty := ln.handoff.Terminal(); j.Foreground && ttyIndex(tty, in, out, j.IO.Error) >= 0 {
		// The child claims the terminal for its group before exec, so it
		// never runs in the background of its own terminal. The ioctl runs
		// before the child's descriptors are rearranged, so Ctty is the
		// shell's own descriptor for the terminal.
		attr.Foreground = true
		attr.Ctty = int(tty.Fd())
	}
	cmd.SysProcAttr = attr
	return cmd
}

// joinGroup puts pid in pgid from the parent side as well, so the group is
// correct whichever of parent and child runs first. Once the child has
// exec'd the call fails with EACCES, which is fine if it already joined.
func (ln *Launcher) joinGroup(pid, pgid int) {
	err := unix.Setpgid(pid, pgid)
	if err == nil {
		return
	}
	if got, gerr := unix.Getpgid(pid); gerr == nil && got == pgid {
		return
	}
	ln.logger.Debug("parent-side setpgid failed", "pid", pid, "pgid", pgid, "error", err)
}

// execFailed records a stage whose program never ran as completed.
func (ln *Launcher) execFailed(p *job.Process, code int, err error) {
	p.MarkCompleted(job.ExitedStatus(code))
	if code == StatusNotFound {
		fmt.Fprintf(ln.diag, "jobshell: %s: command not found\n", p.Argv[0])
	} else {
		fmt.Fprintf(ln.diag, "jobshell: %s: %v\n", p.Argv[0], unwrapStart(err))
	}
	ln.logger.Debug("stage failed to execute", "argv", p.Argv, "status", code, "error", err)
}

// abort kills every stage already started for a job that will not be
// registered.
func (ln *Launcher) abort(j *job.Job) {
	for _, p := range j.Processes {
		if p.Pid == job.NoPid || p.Completed {
			continue
		}
		if err := unix.Kill(p.Pid, unix.SIGKILL); err != nil {
			ln.logger.Warn("failed to kill partially launched stage", "pid", p.Pid, "error", err)
		}
	}
}

// closeRolling closes a pipe end that is not one of the job's own endpoints.
func (ln *Launcher) closeRolling(j *job.Job, f *os.File) {
	if f != nil && f != j.IO.Input {
		_ = f.Close()
	}
}

// classify maps a Start error to the exit status recorded for the stage.
// fatal reports that the fork itself failed for lack of resources.
func classify(err error) (code int, fatal bool) {
	var ee *exec.Error
	if errors.As(err, &ee) {
		if errors.Is(ee.Err, exec.ErrNotFound) {
			return StatusNotFound, false
		}
		return StatusNotExecutable, false
	}
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM):
		return 0, true
	case errors.Is(err, unix.ENOENT):
		return StatusNotFound, false
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		return StatusNotExecutable, false
	}
	return 0, true
}

// unwrapStart strips the "fork/exec <path>:" prefix os/exec puts on errors.
func unwrapStart(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// ttyIndex returns which of the child's standard descriptors refers to the
// terminal, or -1 if none does.
func ttyIndex(tty *os.File, files ...*os.File) int {
	if tty == nil {
		return -1
	}
	ti, err := tty.Stat()
	if err != nil {
		return -1
	}
	for i, f := range files {
		if f == nil {
			continue
		}
		fi, err := f.Stat()
		if err != nil {
			continue
		}
		if os.SameFile(ti, fi) {
			return i
		}
	}
	return -1
}
