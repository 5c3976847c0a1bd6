package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/PiranhaCodes/jobshell/internal/iostreams"
)

// drainGrace bounds how long Run keeps relaying output after the program
// exits. Descendants that still hold the terminal would otherwise keep
// the relay open.
const drainGrace = time.Second

// Run hosts program on a new pseudo-terminal, relaying streams to it
// until it exits, and returns its exit status. When streams.In is a
// terminal it is put in raw mode and its window size is followed.
func Run(ctx context.Context, streams *iostreams.IOStreams, program string, args []string, opts Options) (int, error) {
	in, _ := streams.In.(*os.File)
	if in != nil && term.IsTerminal(int(in.Fd())) {
		if size, err := getsize(in); err == nil {
			opts.Size = size
		}
	} else {
		in = nil
	}

	sess, err := Spawn(program, args, opts)
	if err != nil {
		return 0, err
	}

	if in != nil {
		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			Cleanup(sess)
			return 0, fmt.Errorf("make terminal raw: %w", err)
		}
		defer func() { _ = term.Restore(int(in.Fd()), state) }()

		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go followSize(winch, sess.Exited(), func() {
			if err := sess.InheritSize(in); err != nil {
				sess.logger.Debug("resize failed", "error", err)
			}
		})
	}

	go sess.ReadLoop(streams.Out)
	// The input relay stays blocked in Read until the caller's stdin
	// yields data or closes; it exits on the first write after Cleanup.
	go func() {
		if _, err := io.Copy(sess, streams.In); err != nil {
			sess.logger.Debug("input relay stopped", "error", err)
		}
	}()

	select {
	case <-sess.Exited():
	case <-ctx.Done():
		Cleanup(sess)
		return 0, ctx.Err()
	}

	select {
	case <-sess.Done():
	case <-time.After(drainGrace):
	}
	Cleanup(sess)
	select {
	case <-sess.Done():
	case <-time.After(drainGrace):
	}
	werr := sess.ExitErr()

	code := 0
	if werr != nil {
		var ee *exec.ExitError
		if !errors.As(werr, &ee) {
			return 0, fmt.Errorf("wait for %s: %w", program, werr)
		}
		code = ee.ExitCode()
		if code < 0 {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				code = 128 + int(ws.Signal())
			}
		}
	}
	sess.logger.Info("exited", "status", code)
	return code, nil
}

// followSize calls resize for every window change until stop is closed.
func followSize(winch <-chan os.Signal, stop <-chan struct{}, resize func()) {
	for {
		select {
		case <-winch:
			resize()
		case <-stop:
			return
		}
	}
}
