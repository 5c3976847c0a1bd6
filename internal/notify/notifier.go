// Package notify reports job state transitions to the user and prunes
// completed jobs from the table.
package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/log"
)

// Status words used in notification lines.
const (
	WordLaunched  = "launched"
	WordCompleted = "completed"
	WordStopped   = "stopped"
	WordActive    = "active"
)

// ErrAlreadyCompleted is returned when resuming a job that has finished.
var ErrAlreadyCompleted = errors.New("job has already completed")

// Poller applies pending status changes without blocking.
type Poller interface {
	Poll()
}

// Resumer continues a job in the foreground or background.
type Resumer interface {
	Foreground(j *job.Job, resume bool)
	Background(j *job.Job, resume bool)
}

// Notifier derives user-facing transitions from the job table.
type Notifier struct {
	table   *job.Table
	poller  Poller
	resumer Resumer
	out     io.Writer
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// New creates a Notifier that writes notification lines to out.
func New(table *job.Table, poller Poller, resumer Resumer, out io.Writer, opts ...Option) *Notifier {
	n := &Notifier{
		table:   table,
		poller:  poller,
		resumer: resumer,
		out:     out,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notify")
	return n
}

// Format renders a notification line for j.
func Format(j *job.Job, word string) string {
	return fmt.Sprintf("%d (%s): %s", j.Pgid, word, j.Command)
}

// Announce writes a notification line for j and returns it.
func (n *Notifier) Announce(j *job.Job, word string) string {
	line := Format(j, word)
	fmt.Fprintln(n.out, line)
	return line
}

// Reconcile collects pending status changes, then reports every completed
// job and removes it, and reports every newly stopped job once. Running jobs
// are not reported. It returns the lines written.
func (n *Notifier) Reconcile() []string {
	n.poller.Poll()

	var lines []string
	for _, j := range n.table.Jobs() {
		switch j.State() {
		case job.StateCompleted:
			lines = append(lines, n.Announce(j, WordCompleted))
			n.table.Remove(j.Handle)
			n.logger.Debug("job removed", "id", j.ID, "pgid", j.Pgid)
		case job.StateStopped:
			if !j.Notified {
				lines = append(lines, n.Announce(j, WordStopped))
				j.Notified = true
			}
		default:
			j.Notified = false
		}
	}
	return lines
}

// ListActive reports every running job. It collects pending status changes
// first but neither prunes the table nor marks jobs notified.
func (n *Notifier) ListActive() []string {
	n.poller.Poll()

	var lines []string
	for _, j := range n.table.Jobs() {
		if j.State() == job.StateRunning {
			lines = append(lines, n.Announce(j, WordActive))
		}
	}
	return lines
}

// Resume continues the job named by h. In the foreground the call blocks
// until the job stops or completes again.
func (n *Notifier) Resume(h job.Handle, foreground bool) error {
	j, ok := n.table.Get(h)
	if !ok {
		return fmt.Errorf("resume %s: %w", h, job.ErrJobNotFound)
	}
	if j.IsCompleted() {
		return fmt.Errorf("resume %d: %w", j.ID, ErrAlreadyCompleted)
	}

	j.MarkRunning()
	j.Foreground = foreground
	n.logger.Debug("resuming job", "id", j.ID, "pgid", j.Pgid, "foreground", foreground)

	if foreground {
		n.resumer.Foreground(j, true)
	} else {
		n.resumer.Background(j, true)
	}
	return nil
}
