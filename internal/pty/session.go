package pty

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	ptylib "github.com/creack/pty"
)

// Session is a program running on the slave side of a pseudo-terminal.
type Session struct {
	ID  string
	Cmd *exec.Cmd
	Pty *os.File

	transcript *os.File
	logger     *slog.Logger

	mu   sync.Mutex
	done chan struct{}

	exited  chan struct{}
	waitErr error
}

// Write sends data to the program's terminal input.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Pty == nil {
		return 0, io.ErrClosedPipe
	}
	return s.Pty.Write(data)
}

// ReadLoop copies terminal output to out and the transcript until the
// terminal has no writers left. Wait returns once it is done.
func (s *Session) ReadLoop(out io.Writer) {
	defer close(s.done)

	s.mu.Lock()
	f, transcript := s.Pty, s.transcript
	s.mu.Unlock()
	if f == nil {
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				s.logger.Debug("relay output failed", "error", werr)
			}
			if transcript != nil {
				if _, werr := transcript.Write(buf[:n]); werr != nil {
					s.logger.Warn("transcript write failed", "error", werr)
				}
			}
		}
		if err != nil {
			// Linux reports EIO on the master once the last slave fd closes.
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
				s.logger.Debug("terminal closed")
				return
			}
			s.logger.Warn("terminal read failed", "error", err)
			return
		}
	}
}

// Done is closed when ReadLoop returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited is closed once the program has been reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// ExitErr returns the error from reaping the program. It is valid after
// Exited is closed.
func (s *Session) ExitErr() error {
	<-s.exited
	return s.waitErr
}

// Wait blocks until ReadLoop returns.
func (s *Session) Wait() {
	<-s.done
}

// Resize resizes the terminal to the specified dimensions.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Pty == nil {
		return io.ErrClosedPipe
	}
	return ptylib.Setsize(s.Pty, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// InheritSize copies the window size of from onto the terminal.
func (s *Session) InheritSize(from *os.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Pty == nil {
		return io.ErrClosedPipe
	}
	return ptylib.InheritSize(from, s.Pty)
}

func getsize(f *os.File) (*ptylib.Winsize, error) {
	return ptylib.GetsizeFull(f)
}
