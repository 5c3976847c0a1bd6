package terminal

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Device is the controlling terminal as the controller sees it.
type Device interface {
	// ForegroundGroup returns the terminal's foreground process group.
	ForegroundGroup() (int, error)
	// SetForegroundGroup makes pgid the terminal's foreground process group.
	SetForegroundGroup(pgid int) error
	// Mode snapshots the terminal's line-discipline state.
	Mode() (*term.State, error)
	// SetMode restores a snapshot taken by Mode.
	SetMode(*term.State) error
	// File returns the underlying terminal file, or nil for fakes.
	File() *os.File
}

type ttyDevice struct {
	f     *os.File
	fd    int
	disps *dispositions
}

func newTTYDevice(f *os.File, disps *dispositions) *ttyDevice {
	return &ttyDevice{f: f, fd: int(f.Fd()), disps: disps}
}

func (d *ttyDevice) ForegroundGroup() (int, error) {
	return unix.IoctlGetInt(d.fd, unix.TIOCGPGRP)
}

func (d *ttyDevice) SetForegroundGroup(pgid int) error {
	return d.disps.withTTOUIgnored(func() error {
		return unix.IoctlSetPointerInt(d.fd, unix.TIOCSPGRP, pgid)
	})
}

func (d *ttyDevice) Mode() (*term.State, error) {
	return term.GetState(d.fd)
}

func (d *ttyDevice) SetMode(s *term.State) error {
	if s == nil {
		return nil
	}
	return d.disps.withTTOUIgnored(func() error {
		return term.Restore(d.fd, s)
	})
}

func (d *ttyDevice) File() *os.File {
	return d.f
}
