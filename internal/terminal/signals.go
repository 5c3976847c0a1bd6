package terminal

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// JobControlSignals are the signals switched by the presets.
var JobControlSignals = []os.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTSTP,
	unix.SIGTTIN,
	unix.SIGTTOU,
	unix.SIGCHLD,
}

// Preset is a named set of signal dispositions applied in one call.
type Preset struct {
	name  string
	apply func(sink chan os.Signal)
}

// Name returns the preset's name.
func (p Preset) Name() string { return p.name }

var (
	// ShellPreset catches the job-control signals and drops them.
	ShellPreset = Preset{
		name: "shell",
		apply: func(sink chan os.Signal) {
			signal.Notify(sink, JobControlSignals...)
		},
	}

	// DefaultPreset restores the default dispositions.
	DefaultPreset = Preset{
		name: "default",
		apply: func(sink chan os.Signal) {
			signal.Reset(JobControlSignals...)
		},
	}
)

// dispositions owns the channel the shell preset delivers into.
type dispositions struct {
	mu      sync.Mutex
	sink    chan os.Signal
	current string
}

func newDispositions() *dispositions {
	d := &dispositions{sink: make(chan os.Signal, 16)}
	go func() {
		for range d.sink {
		}
	}()
	return d
}

func (d *dispositions) apply(p Preset) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.apply(d.sink)
	d.current = p.name
}

// withTTOUIgnored runs fn with SIGTTOU ignored, so a shell that is not in the
// foreground may still reassign the terminal's foreground group.
func (d *dispositions) withTTOUIgnored(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	signal.Ignore(unix.SIGTTOU)
	defer func() {
		if d.current == ShellPreset.name {
			signal.Notify(d.sink, unix.SIGTTOU)
		} else {
			signal.Reset(unix.SIGTTOU)
		}
	}()
	return fn()
}
