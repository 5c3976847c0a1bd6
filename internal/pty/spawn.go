package pty

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	ptylib "github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/PiranhaCodes/jobshell/internal/log"
)

// SessionEnv is set in the hosted program's environment to the session ID.
const SessionEnv = "JOBSHELL_HOST_SESSION"

// Options configures Spawn.
type Options struct {
	// Transcript, when set, receives a copy of everything the program
	// writes to its terminal. The file is appended to.
	Transcript string
	// Size is the initial window size. Zero leaves the kernel default.
	Size *ptylib.Winsize
	Env  []string
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Spawn starts program as a session leader whose controlling terminal is
// a new pseudo-terminal. The program is reaped in the background; the
// caller runs ReadLoop and calls Cleanup.
func Spawn(program string, args []string, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	id := uuid.New().String()
	logger = logger.With("component", "pty", "session", id)

	var transcript *os.File
	if opts.Transcript != "" {
		f, err := os.OpenFile(opts.Transcript, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		transcript = f
	}

	cmd := exec.Command(program, args...)
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(env[:len(env):len(env)], SessionEnv+"="+id)

	ptyFile, err := ptylib.StartWithSize(cmd, opts.Size)
	if err != nil {
		if transcript != nil {
			transcript.Close()
		}
		return nil, fmt.Errorf("failed to start %s on a pseudo-terminal: %w", program, err)
	}

	logger.Info("spawned", "program", program, "pid", cmd.Process.Pid)
	sess := &Session{
		ID:         id,
		Cmd:        cmd,
		Pty:        ptyFile,
		transcript: transcript,
		logger:     logger,
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go func() {
		sess.waitErr = cmd.Wait()
		close(sess.exited)
	}()
	return sess, nil
}
