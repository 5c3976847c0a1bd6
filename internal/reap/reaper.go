// Package reap turns kernel-reported child status changes into updates of
// the job table.
package reap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/log"
)

// WaitFunc collects a child status change. It has the signature of unix.Wait4.
type WaitFunc func(pid int, wstatus *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)

// anomalyLimit is the number of consecutive unexpected wait failures after
// which the user is told something is wrong.
const anomalyLimit = 3

// Reaper applies child status changes to the processes in a table.
type Reaper struct {
	table     *job.Table
	wait      WaitFunc
	diag      io.Writer
	logger    *slog.Logger
	anomalies int
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithWait replaces the wait syscall, for tests.
func WithWait(fn WaitFunc) Option {
	return func(r *Reaper) {
		r.wait = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) {
		r.logger = l
	}
}

// New creates a Reaper over table. Diagnostics meant for the user, such as
// a stage killed by a signal, are written to diag.
func New(table *job.Table, diag io.Writer, opts ...Option) *Reaper {
	r := &Reaper{
		table:  table,
		wait:   unix.Wait4,
		diag:   diag,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reap")
	return r
}

// Poll applies every status change that is available without blocking.
func (r *Reaper) Poll() {
	for r.collect(unix.WUNTRACED | unix.WNOHANG) {
	}
}

// WaitUntilSettled blocks until j is stopped or completed. It also returns
// when there is nothing left to wait for.
func (r *Reaper) WaitUntilSettled(j *job.Job) {
	for !j.Settled() {
		if !r.collect(unix.WUNTRACED) {
			return
		}
	}
}

// collect runs one wait and applies its result. It returns false when
// there was nothing to report.
func (r *Reaper) collect(options int) bool {
	var ws unix.WaitStatus
	for {
		pid, err := r.wait(-1, &ws, options, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			r.anomalies = 0
			return false
		case err != nil:
			r.anomaly(err)
			return false
		case pid == 0:
			r.anomalies = 0
			return false
		case pid < 0:
			r.anomaly(fmt.Errorf("wait returned pid %d", pid))
			return false
		}
		r.anomalies = 0
		r.Apply(pid, ws)
		return true
	}
}

func (r *Reaper) anomaly(err error) {
	r.anomalies++
	r.logger.Error("unexpected wait failure", "error", err, "consecutive", r.anomalies)
	if r.anomalies == anomalyLimit {
		fmt.Fprintf(r.diag, "jobshell: cannot collect child status: %v\n", err)
	}
}

// Apply records status ws for pid. Unknown pids are ignored.
func (r *Reaper) Apply(pid int, ws unix.WaitStatus) {
	j, p := r.table.FindProcess(pid)
	if p == nil {
		r.logger.Debug("status for unknown child", "pid", pid, "status", uint32(ws))
		return
	}

	if ws.Stopped() {
		p.MarkStopped(ws)
		r.logger.Debug("stage stopped", "pid", pid, "pgid", j.Pgid, "signal", ws.StopSignal().String())
		return
	}

	p.MarkCompleted(ws)
	if ws.Signaled() {
		fmt.Fprintf(r.diag, "%d: Terminated by signal %d\n", pid, int(ws.Signal()))
	}
	r.logger.Debug("stage completed", "pid", pid, "pgid", j.Pgid, "exit", p.ExitCode())
}
