package terminal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/log"
)

// Settler blocks until a job is stopped or completed.
type Settler interface {
	WaitUntilSettled(j *job.Job)
}

// KillFunc delivers a signal; a negative pid targets a process group.
type KillFunc func(pid int, sig unix.Signal) error

// Controller owns the shell's process group and terminal mode and hands the
// terminal to jobs.
type Controller struct {
	dev         Device
	disps       *dispositions
	interactive bool
	pgid        int
	mode        *term.State
	waiter      Settler
	kill        KillFunc
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettler sets the component that blocks on foreground jobs.
func WithSettler(s Settler) Option {
	return func(c *Controller) {
		c.waiter = s
	}
}

// WithKill replaces signal delivery, for tests.
func WithKill(fn KillFunc) Option {
	return func(c *Controller) {
		c.kill = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithInteractive overrides the interactive flag NewController derives from
// dev. Interactive mode without a device enables process groups but no
// terminal handoff.
func WithInteractive(on bool) Option {
	return func(c *Controller) {
		c.interactive = on
	}
}

// NewController returns a Controller over dev for a shell in process group
// pgid whose saved terminal mode is mode. It performs no session setup; use
// Initialize for that. dev may be nil when there is no terminal.
func NewController(dev Device, pgid int, mode *term.State, opts ...Option) *Controller {
	c := &Controller{
		dev:         dev,
		disps:       newDispositions(),
		interactive: dev != nil,
		pgid:        pgid,
		mode:        mode,
		kill:        unix.Kill,
		logger:      log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "terminal")
	return c
}

// Initialize prepares the shell's session on tty. When interactive is false
// nothing is changed and the returned Controller only delivers signals. When
// interactive is set but tty is not a terminal, the shell still leads its own
// process group but no terminal handoff takes place.
func Initialize(tty *os.File, interactive bool, opts ...Option) (*Controller, error) {
	c := NewController(nil, unix.Getpgrp(), nil, opts...)
	c.interactive = interactive
	if !interactive {
		return c, nil
	}
	if !isatty.IsTerminal(tty.Fd()) {
		c.logger.Info("interactive mode forced without a terminal")
		return c, c.ownGroup()
	}

	dev := newTTYDevice(tty, c.disps)
	c.dev = dev

	// Loop until we are in the foreground. An ancestor may need a stop
	// request before it hands the terminal over.
	for {
		fg, err := dev.ForegroundGroup()
		if err != nil {
			return nil, fmt.Errorf("read terminal foreground group: %w", err)
		}
		pgrp := unix.Getpgrp()
		if fg == pgrp {
			break
		}
		c.logger.Debug("shell started in background, requesting terminal", "pgrp", pgrp, "foreground", fg)
		_ = unix.Kill(-pgrp, unix.SIGTTIN)
	}

	c.ApplyPreset(ShellPreset)

	if err := c.ownGroup(); err != nil {
		return nil, err
	}

	if err := dev.SetForegroundGroup(c.pgid); err != nil {
		c.logger.Warn("failed to take terminal", "pgid", c.pgid, "error", err)
	}

	mode, err := dev.Mode()
	if err != nil {
		c.logger.Warn("failed to save terminal mode", "error", err)
	}
	c.mode = mode
	c.logger.Debug("session initialized", "pgid", c.pgid)
	return c, nil
}

// ownGroup puts the shell in its own process group unless it already leads
// one. A session leader cannot change group, and already leads its own.
func (c *Controller) ownGroup() error {
	pid := os.Getpid()
	if unix.Getpgrp() != pid {
		if err := unix.Setpgid(pid, pid); err != nil {
			return fmt.Errorf("%w: %v", ErrGroupAssignment, err)
		}
	}
	c.pgid = pid
	return nil
}

// SetSettler sets the component Foreground blocks on.
func (c *Controller) SetSettler(s Settler) {
	c.waiter = s
}

// ApplyPreset switches the job-control signal dispositions.
func (c *Controller) ApplyPreset(p Preset) {
	c.disps.apply(p)
	c.logger.Debug("applied signal preset", "preset", p.Name())
}

// Interactive reports whether job control is enabled.
func (c *Controller) Interactive() bool {
	return c.interactive
}

// Pgid returns the shell's process group.
func (c *Controller) Pgid() int {
	return c.pgid
}

// Terminal returns the controlling terminal file, or nil if there is none.
func (c *Controller) Terminal() *os.File {
	if c.dev == nil {
		return nil
	}
	return c.dev.File()
}

// ForegroundGroup returns the terminal's current foreground group.
func (c *Controller) ForegroundGroup() (int, error) {
	if c.dev == nil {
		return 0, ErrNotInteractive
	}
	return c.dev.ForegroundGroup()
}

// Foreground gives j the terminal and blocks until it stops or completes.
// If resume is set the job's terminal mode is restored and the group is
// continued first. The terminal is always reclaimed before returning.
func (c *Controller) Foreground(j *job.Job, resume bool) {
	if c.dev != nil {
		// A job none of whose stages started has no group to hand over,
		// but a failed stage may already have claimed the terminal.
		if j.Pgid > 0 {
			if err := c.dev.SetForegroundGroup(j.Pgid); err != nil {
				c.logger.Warn("failed to give terminal to job", "pgid", j.Pgid, "error", err)
			}
		}
		defer c.reclaim(j)
	}

	if resume && j.Pgid > 0 {
		if c.dev != nil && j.Mode != nil {
			if err := c.dev.SetMode(j.Mode); err != nil {
				c.logger.Warn("failed to restore job terminal mode", "pgid", j.Pgid, "error", err)
			}
		}
		c.Signal(j, unix.SIGCONT)
	}

	if c.waiter != nil {
		c.waiter.WaitUntilSettled(j)
	}
}

// reclaim returns the terminal to the shell and swaps terminal modes.
func (c *Controller) reclaim(j *job.Job) {
	if err := c.dev.SetForegroundGroup(c.pgid); err != nil {
		c.logger.Error("failed to reclaim terminal", "pgid", c.pgid, "error", err)
	}

	mode, err := c.dev.Mode()
	if err != nil {
		c.logger.Warn("failed to capture job terminal mode", "pgid", j.Pgid, "error", err)
	} else {
		j.Mode = mode
	}

	if err := c.dev.SetMode(c.mode); err != nil {
		c.logger.Warn("failed to restore shell terminal mode", "error", err)
	}
}

// Background continues j when resume is set. It never touches the
// terminal and never blocks.
func (c *Controller) Background(j *job.Job, resume bool) {
	if resume {
		c.Signal(j, unix.SIGCONT)
	}
}

// Signal delivers sig to j's process group. Failure is logged, not returned:
// the group may already be gone and bookkeeping carries on regardless.
func (c *Controller) Signal(j *job.Job, sig unix.Signal) {
	if j.Pgid <= 0 {
		c.logger.Warn("job has no process group", "command", j.Command)
		return
	}
	if err := c.kill(-j.Pgid, sig); err != nil {
		c.logger.Warn("failed to signal job", "pgid", j.Pgid, "signal", sig.String(), "error", err)
	}
}

// Close restores the default signal dispositions.
func (c *Controller) Close() {
	c.ApplyPreset(DefaultPreset)
}
