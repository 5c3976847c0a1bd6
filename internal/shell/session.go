// Package shell assembles the job-control components into a single session
// owned by the read-loop.
package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/jobshell/internal/iostreams"
	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/launch"
	"github.com/PiranhaCodes/jobshell/internal/log"
	"github.com/PiranhaCodes/jobshell/internal/notify"
	"github.com/PiranhaCodes/jobshell/internal/reap"
	"github.com/PiranhaCodes/jobshell/internal/terminal"
)

// Session is the shell's job-control state: its process group and terminal,
// the job table, and the components that act on them. It is not safe for
// concurrent use; only Published may be called from other goroutines.
type Session struct {
	streams *iostreams.IOStreams
	in      *os.File
	out     *os.File
	errOut  *os.File

	table    *job.Table
	ctl      *terminal.Controller
	reaper   *reap.Reaper
	launcher *launch.Launcher
	notifier *notify.Notifier

	published atomic.Pointer[[]job.Info]
	logger    *slog.Logger
}

type settings struct {
	streams     *iostreams.IOStreams
	interactive *bool
	logger      *slog.Logger
	launchOpts  []launch.Option
}

// Option configures a Session.
type Option func(*settings)

// WithStreams sets the streams jobs inherit. Every stream must be an
// *os.File.
func WithStreams(s *iostreams.IOStreams) Option {
	return func(st *settings) {
		st.streams = s
	}
}

// WithInteractive forces job control on or off. By default it is on when
// standard input is a terminal.
func WithInteractive(on bool) Option {
	return func(st *settings) {
		st.interactive = &on
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(st *settings) {
		st.logger = l
	}
}

// WithLaunchOptions passes options through to the launcher.
func WithLaunchOptions(opts ...launch.Option) Option {
	return func(st *settings) {
		st.launchOpts = append(st.launchOpts, opts...)
	}
}

// New initializes the shell's session and returns it. A terminal.ErrGroupAssignment
// error means the host is misconfigured and the shell should exit.
func New(opts ...Option) (*Session, error) {
	st := settings{
		streams: iostreams.NewOSIOStreams(),
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(&st)
	}

	in, out, errOut, err := st.streams.Files()
	if err != nil {
		return nil, fmt.Errorf("shell streams: %w", err)
	}

	interactive := isatty.IsTerminal(in.Fd())
	if st.interactive != nil {
		interactive = *st.interactive
	}

	ctl, err := terminal.Initialize(in, interactive, terminal.WithLogger(st.logger))
	if err != nil {
		return nil, err
	}

	s := &Session{
		streams: st.streams,
		in:      in,
		out:     out,
		errOut:  errOut,
		table:   job.NewTable(),
		ctl:     ctl,
		logger:  st.logger.With("component", "shell"),
	}

	s.reaper = reap.New(s.table, st.streams.ErrOut, reap.WithLogger(st.logger))
	ctl.SetSettler(s.reaper)

	h := handoff{ctl}
	s.notifier = notify.New(s.table, s.reaper, h, st.streams.ErrOut, notify.WithLogger(st.logger))

	launchOpts := append([]launch.Option{
		launch.WithLogger(st.logger),
		launch.WithAnnounce(func(j *job.Job) {
			s.notifier.Announce(j, notify.WordLaunched)
		}),
	}, st.launchOpts...)
	s.launcher = launch.New(s.table, h, s.reaper, st.streams.ErrOut, launchOpts...)

	s.publish()
	s.logger.Debug("session ready", "interactive", ctl.Interactive(), "pgid", ctl.Pgid())
	return s, nil
}

// handoff silences the stderr mirror of the logger while a job owns the
// terminal.
type handoff struct {
	*terminal.Controller
}

func (h handoff) Foreground(j *job.Job, resume bool) {
	log.DisableErrorMirroring()
	defer log.EnableErrorMirroring()
	h.Controller.Foreground(j, resume)
}

// Submit launches p. For a foreground job, or any job when the shell is not
// interactive, Submit returns once the job has stopped or completed.
//
// A *RedirectionError means nothing was started. A *launch.SpawnError is
// fatal to the shell.
func (s *Session) Submit(p job.Pipeline) (job.Handle, error) {
	if err := p.Validate(); err != nil {
		return job.Handle{}, err
	}

	endpoints, err := s.resolveIO(p)
	if err != nil {
		return job.Handle{}, err
	}

	h, err := s.launcher.Launch(job.New(p, endpoints))
	s.publish()
	if err != nil {
		return job.Handle{}, err
	}
	return h, nil
}

// resolveIO opens the pipeline's redirection targets. Unredirected
// endpoints are the shell's own streams.
func (s *Session) resolveIO(p job.Pipeline) (job.IO, error) {
	endpoints := job.NewIO(s.in, s.out, s.errOut)

	if p.InputPath != "" {
		f, err := os.Open(p.InputPath)
		if err != nil {
			return job.IO{}, &RedirectionError{Path: p.InputPath, Err: unwrapPath(err)}
		}
		endpoints.Input = f
		endpoints.Own(f)
	}

	if p.OutputPath != "" {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if p.Append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(p.OutputPath, flags, 0o644)
		if err != nil {
			endpoints.CloseOwned()
			return job.IO{}, &RedirectionError{Path: p.OutputPath, Err: unwrapPath(err)}
		}
		endpoints.Output = f
		endpoints.Own(f)
	}
	return endpoints, nil
}

func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Reconcile reports stopped and completed jobs and prunes completed ones.
// Call it once per prompt.
func (s *Session) Reconcile() []string {
	lines := s.notifier.Reconcile()
	s.publish()
	return lines
}

// ListActive reports every running job.
func (s *Session) ListActive() []string {
	lines := s.notifier.ListActive()
	s.publish()
	return lines
}

// Resume continues the job named by h in the foreground or background.
func (s *Session) Resume(h job.Handle, foreground bool) error {
	err := s.notifier.Resume(h, foreground)
	s.publish()
	return err
}

// Lookup resolves a job specification: "%N" for display number N, a bare
// number for a process group, or "", "%%" and "%+" for the current job,
// which is the most recent stopped job or else the most recent job.
func (s *Session) Lookup(spec string) (job.Handle, error) {
	spec = strings.TrimSpace(spec)

	var (
		j  *job.Job
		ok bool
	)
	switch {
	case spec == "" || spec == "%" || spec == "%%" || spec == "%+":
		if j, ok = s.table.Latest(job.StateStopped); !ok {
			j, ok = s.table.Latest()
		}
	case strings.HasPrefix(spec, "%"):
		id, err := strconv.Atoi(spec[1:])
		if err != nil || id <= 0 {
			return job.Handle{}, fmt.Errorf("%w: %s", ErrBadJobSpec, spec)
		}
		j, ok = s.table.ByID(id)
	default:
		pgid, err := strconv.Atoi(spec)
		if err != nil || pgid <= 0 {
			return job.Handle{}, fmt.Errorf("%w: %s", ErrBadJobSpec, spec)
		}
		j, ok = s.table.ByPgid(pgid)
	}
	if !ok {
		if spec == "" {
			spec = "current"
		}
		return job.Handle{}, fmt.Errorf("%s: %w", spec, job.ErrJobNotFound)
	}
	return j.Handle, nil
}

// Job returns the current view of the job named by h.
func (s *Session) Job(h job.Handle) (job.Info, bool) {
	j, ok := s.table.Get(h)
	if !ok {
		return job.Info{}, false
	}
	return j.Info(), true
}

// Snapshot returns the current view of every job.
func (s *Session) Snapshot() []job.Info {
	return s.table.Snapshot()
}

// Published returns the snapshot taken after the last session operation.
// It is safe to call from any goroutine.
func (s *Session) Published() []job.Info {
	if p := s.published.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Session) publish() {
	snap := s.table.Snapshot()
	s.published.Store(&snap)
}

// Interactive reports whether job control is enabled.
func (s *Session) Interactive() bool {
	return s.ctl.Interactive()
}

// Pgid returns the shell's process group.
func (s *Session) Pgid() int {
	return s.ctl.Pgid()
}

// ForegroundGroup returns the terminal's current foreground group.
func (s *Session) ForegroundGroup() (int, error) {
	return s.ctl.ForegroundGroup()
}

// Close sends SIGTERM to every job still in the table, drops them, and
// restores the default signal dispositions. It does not wait for the jobs
// to exit.
func (s *Session) Close() {
	for _, j := range s.table.Jobs() {
		if !j.IsCompleted() && j.Pgid > 0 {
			s.logger.Debug("terminating job on exit", "id", j.ID, "pgid", j.Pgid)
			if s.ctl.Interactive() {
				s.ctl.Signal(j, unix.SIGTERM)
				s.ctl.Signal(j, unix.SIGCONT)
			} else {
				for _, pid := range j.Pids() {
					_ = unix.Kill(pid, unix.SIGTERM)
				}
			}
		}
	}
	s.reaper.Poll()
	for _, j := range s.table.Jobs() {
		s.table.Remove(j.Handle)
	}
	s.publish()
	s.ctl.Close()
}
