//go:build linux

package launch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestLaunchLeavesNoPipeOpen(t *testing.T) {
	f := newFixture(t, true)

	// The first pipe initialises the runtime poller, which keeps its own
	// descriptors open.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	r.Close()
	w.Close()

	pipes := 0
	launcher := New(f.table, f.handoff, f.reaper, f.diag, WithPipe(func() (*os.File, *os.File, error) {
		pipes++
		return os.Pipe()
	}))

	before := openFDs(t)
	j := job.New(job.Pipeline{
		Stages: stages(
			[]string{"printf", `a\nb\n`},
			[]string{"cat"},
			[]string{"sort"},
			[]string{"wc", "-l"},
		),
		Foreground: true,
	}, f.io)
	_, err = launcher.Launch(j)
	require.NoError(t, err)
	require.True(t, j.IsCompleted())

	require.Equal(t, len(j.Processes)-1, pipes)
	require.Equal(t, before, openFDs(t))
}
