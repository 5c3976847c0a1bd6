// Package repl is the shell's read-loop: it reports job changes, prompts,
// reads a line, and runs it as a builtin or a pipeline.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	cmderr "github.com/PiranhaCodes/jobshell/internal/err"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/launch"
	"github.com/PiranhaCodes/jobshell/internal/log"
	"github.com/PiranhaCodes/jobshell/internal/parser"
)

// Session is the job-control side of the shell.
type Session interface {
	Submit(p job.Pipeline) (job.Handle, error)
	Reconcile() []string
	ListActive() []string
	Resume(h job.Handle, foreground bool) error
	Lookup(spec string) (job.Handle, error)
	Snapshot() []job.Info
}

// ExitError asks the caller to exit with Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// REPL reads command lines and runs them against a Session.
type REPL struct {
	session Session
	streams *iostreams.IOStreams
	prompt  string
	logger  *slog.Logger
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets a fixed prompt. The default shows the working directory.
func WithPrompt(p string) Option {
	return func(r *REPL) {
		r.prompt = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *REPL) {
		r.logger = l
	}
}

// New creates a REPL.
func New(session Session, streams *iostreams.IOStreams, opts ...Option) *REPL {
	r := &REPL{
		session: session,
		streams: streams,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "repl")
	return r
}

// Run loops until end of input, ctx is done, the exit builtin runs, or a
// launch fails in a way the shell cannot recover from. End of input and
// "exit" with status 0 return nil. Cancelling ctx interrupts a pending read.
func (r *REPL) Run(ctx context.Context) error {
	lines := newLineReader(r.streams.In)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.session.Reconcile()
		fmt.Fprint(r.streams.Out, r.promptText())

		line, err := lines.next(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.Debug("read interrupted", "error", err)
			return err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return &cmderr.ExecutionError{Msg: "read command line", Err: err}
		}
		eof := err != nil

		if strings.TrimSpace(line) != "" {
			if rerr := r.Execute(line); rerr != nil {
				var ee *ExitError
				if errors.As(rerr, &ee) && ee.Code == 0 {
					return nil
				}
				return rerr
			}
		}
		if eof {
			fmt.Fprintln(r.streams.Out)
			return nil
		}
	}
}

type readResult struct {
	line string
	err  error
}

// lineReader reads one line per request on its own goroutine, so a read
// can be abandoned when the context ends. It never reads ahead: input
// after the current line belongs to the jobs the line starts.
type lineReader struct {
	reader  *bufio.Reader
	pending chan readResult
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReader(in)}
}

func (lr *lineReader) next(ctx context.Context) (string, error) {
	if lr.pending == nil {
		lr.pending = make(chan readResult, 1)
		go func(out chan<- readResult) {
			line, err := lr.reader.ReadString('\n')
			out <- readResult{line, err}
		}(lr.pending)
	}

	select {
	case res := <-lr.pending:
		lr.pending = nil
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Execute runs one command line. It returns an error only when the shell
// should stop.
func (r *REPL) Execute(line string) error {
	if argv := strings.Fields(line); len(argv) > 0 {
		if b, ok := builtins[argv[0]]; ok && isPlain(line) {
			return b(r, argv[1:])
		}
	}

	p, err := parser.Parse(line)
	if err != nil {
		if errors.Is(err, parser.ErrEmpty) {
			return nil
		}
		fmt.Fprintf(r.streams.ErrOut, "jobshell: syntax error: %v\n", err)
		return nil
	}

	if _, err := r.session.Submit(p); err != nil {
		if errors.Is(err, launch.ErrSpawn) {
			return &cmderr.ExecutionError{Msg: "cannot launch pipeline", Err: err}
		}
		fmt.Fprintf(r.streams.ErrOut, "jobshell: %v\n", err)
		r.logger.Debug("submit failed", "line", strings.TrimSpace(line), "error", err)
	}
	return nil
}

// isPlain reports whether line has no pipeline or redirection syntax, so
// its first word may name a builtin.
func isPlain(line string) bool {
	return !strings.ContainsAny(line, "|<>&")
}

func (r *REPL) promptText() string {
	if r.prompt != "" {
		return r.prompt
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "$ "
	}
	return cwd + "$ "
}
