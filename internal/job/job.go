package job

import (
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"
)

// State is the lifecycle state of a job, derived from its stages.
type State int

const (
	// StateRunning means at least one stage is neither stopped nor completed.
	StateRunning State = iota
	// StateStopped means every stage is stopped or completed and at least
	// one is stopped.
	StateStopped
	// StateCompleted means every stage has completed.
	StateCompleted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Handle identifies a job in a Table. Handles are never reused, so a handle
// whose job has been removed simply stops resolving.
type Handle uuid.UUID

// String returns the canonical text form of the handle.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// IO holds the three endpoints a job's stages are bound to.
type IO struct {
	Input  *os.File
	Output *os.File
	Error  *os.File

	// owned are files the shell opened for redirection. They are closed
	// once every stage holds its own copy.
	owned []*os.File
}

// NewIO returns endpoints bound to the given files.
func NewIO(in, out, errOut *os.File) IO {
	return IO{Input: in, Output: out, Error: errOut}
}

// Own records f as a shell-opened file that CloseOwned must release.
func (io *IO) Own(f *os.File) {
	io.owned = append(io.owned, f)
}

// CloseOwned closes every file recorded with Own.
func (io *IO) CloseOwned() {
	for _, f := range io.owned {
		_ = f.Close()
	}
	io.owned = nil
}

// Job is one pipeline: its stages, process group, and terminal state.
type Job struct {
	Handle    Handle
	ID        int
	Command   string
	Processes []*Process

	// Pgid is zero until the first stage is forked, then fixed.
	Pgid int

	Foreground bool

	// Notified is true once the user has been told the job is stopped.
	Notified bool

	// Mode is the terminal mode captured when the job last held the terminal.
	Mode *term.State

	IO      IO
	Started time.Time
}

// New creates a job for p. The caller is expected to have validated p.
func New(p Pipeline, io IO) *Job {
	j := &Job{
		Handle:     Handle(uuid.New()),
		Command:    p.CommandText(),
		Foreground: p.Foreground,
		IO:         io,
		Started:    time.Now(),
	}
	for _, s := range p.Stages {
		j.Processes = append(j.Processes, newProcess(s.Argv))
	}
	return j
}

// SetPgid assigns the job's process group. It may only be called once.
func (j *Job) SetPgid(pgid int) error {
	if j.Pgid != 0 {
		return ErrPgidAlreadySet
	}
	j.Pgid = pgid
	return nil
}

// IsCompleted reports whether every stage has completed.
func (j *Job) IsCompleted() bool {
	for _, p := range j.Processes {
		if !p.Completed {
			return false
		}
	}
	return true
}

// IsStopped reports whether every stage is stopped or completed.
func (j *Job) IsStopped() bool {
	for _, p := range j.Processes {
		if !p.Completed && !p.Stopped {
			return false
		}
	}
	return true
}

// Settled reports whether a blocking wait on the job may return.
func (j *Job) Settled() bool {
	return j.IsStopped()
}

// State derives the job state from its stages.
func (j *Job) State() State {
	switch {
	case j.IsCompleted():
		return StateCompleted
	case j.IsStopped():
		return StateStopped
	default:
		return StateRunning
	}
}

// MarkRunning clears every stage's stopped flag and the notified flag.
func (j *Job) MarkRunning() {
	for _, p := range j.Processes {
		p.MarkRunning()
	}
	j.Notified = false
}

// Pids returns the pids of the stages that have been started.
func (j *Job) Pids() []int {
	pids := make([]int, 0, len(j.Processes))
	for _, p := range j.Processes {
		if p.Pid != NoPid {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}
