package notify

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

// scriptedPoller applies one queued mutation per Poll call.
type scriptedPoller struct {
	steps []func()
	polls int
}

func (p *scriptedPoller) Poll() {
	p.polls++
	if len(p.steps) == 0 {
		return
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	step()
}

type resumeCall struct {
	job        *job.Job
	foreground bool
	resume     bool
	stopped    bool
	notified   bool
}

type recordingResumer struct {
	calls []resumeCall
	// settle runs in place of the blocking wait of a foreground resume.
	settle func(*job.Job)
}

func (r *recordingResumer) record(j *job.Job, fg, resume bool) {
	r.calls = append(r.calls, resumeCall{
		job:        j,
		foreground: fg,
		resume:     resume,
		stopped:    j.Processes[0].Stopped,
		notified:   j.Notified,
	})
}

func (r *recordingResumer) Foreground(j *job.Job, resume bool) {
	r.record(j, true, resume)
	if r.settle != nil {
		r.settle(j)
	}
}

func (r *recordingResumer) Background(j *job.Job, resume bool) {
	r.record(j, false, resume)
}

func addJob(t *testing.T, tbl *job.Table, pgid int, argv ...[]string) *job.Job {
	t.Helper()
	p := job.Pipeline{}
	for _, a := range argv {
		p.Stages = append(p.Stages, job.Stage{Argv: a})
	}
	j := job.New(p, job.IO{})
	require.NoError(t, j.SetPgid(pgid))
	for i, proc := range j.Processes {
		proc.Pid = pgid + i
	}
	tbl.Add(j)
	return j
}

func TestFormat(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 4242, []string{"ls", "-l"}, []string{"wc"})
	require.Equal(t, "4242 (launched): ls -l | wc", Format(j, WordLaunched))
}

func TestReconcileReportsCompletedAndRemoves(t *testing.T) {
	tbl := job.NewTable()
	done := addJob(t, tbl, 100, []string{"true"})
	running := addJob(t, tbl, 200, []string{"sleep", "5"}, []string{"cat"})

	poller := &scriptedPoller{steps: []func(){
		func() {
			done.Processes[0].MarkCompleted(job.ExitedStatus(0))
			running.Processes[1].MarkCompleted(job.ExitedStatus(0))
		},
	}}
	var out bytes.Buffer
	n := New(tbl, poller, &recordingResumer{}, &out)

	lines := n.Reconcile()
	require.Equal(t, []string{"100 (completed): true"}, lines)
	require.Equal(t, "100 (completed): true\n", out.String())
	require.Equal(t, 1, poller.polls)

	_, ok := tbl.Get(done.Handle)
	require.False(t, ok)
	_, ok = tbl.Get(running.Handle)
	require.True(t, ok, "a job with a running stage is never removed")
}

func TestReconcileReportsStopOnce(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 300, []string{"vi"})
	poller := &scriptedPoller{steps: []func(){
		func() { j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP)) },
	}}
	var out bytes.Buffer
	n := New(tbl, poller, &recordingResumer{}, &out)

	require.Equal(t, []string{"300 (stopped): vi"}, n.Reconcile())
	require.True(t, j.Notified)

	require.Empty(t, n.Reconcile())
	require.Equal(t, "300 (stopped): vi\n", out.String())
	require.Equal(t, 1, tbl.Len())
}

func TestReconcileClearsNotifiedWhenJobRunsAgain(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 300, []string{"vi"})
	j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP))
	j.Notified = true

	poller := &scriptedPoller{steps: []func(){
		// continued from outside the shell
		func() { j.Processes[0].MarkRunning() },
		func() { j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTTIN)) },
	}}
	n := New(tbl, poller, &recordingResumer{}, &bytes.Buffer{})

	require.Empty(t, n.Reconcile())
	require.False(t, j.Notified)
	require.Equal(t, []string{"300 (stopped): vi"}, n.Reconcile())
}

func TestReconcileTreatsMixedStoppedAndCompletedAsStopped(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 400, []string{"yes"}, []string{"head"})
	j.Processes[1].MarkCompleted(job.ExitedStatus(0))
	j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP))

	n := New(tbl, &scriptedPoller{}, &recordingResumer{}, &bytes.Buffer{})
	require.Equal(t, []string{"400 (stopped): yes | head"}, n.Reconcile())
	require.Equal(t, 1, tbl.Len())
}

func TestListActiveIsReadOnly(t *testing.T) {
	tbl := job.NewTable()
	running := addJob(t, tbl, 500, []string{"sleep", "5"})
	stopped := addJob(t, tbl, 600, []string{"vi"})
	stopped.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP))
	done := addJob(t, tbl, 700, []string{"true"})
	done.Processes[0].MarkCompleted(job.ExitedStatus(0))

	poller := &scriptedPoller{}
	var out bytes.Buffer
	n := New(tbl, poller, &recordingResumer{}, &out)

	require.Equal(t, []string{"500 (active): sleep 5"}, n.ListActive())
	require.Equal(t, 1, poller.polls)
	require.Equal(t, 3, tbl.Len())
	require.False(t, stopped.Notified)
	require.False(t, running.Notified)
}

func TestResumeForegroundClearsFlagsFirst(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 800, []string{"vi"})
	j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP))
	j.Notified = true

	resumer := &recordingResumer{settle: func(j *job.Job) {
		j.Processes[0].MarkCompleted(job.ExitedStatus(0))
	}}
	n := New(tbl, &scriptedPoller{}, resumer, &bytes.Buffer{})

	require.NoError(t, n.Resume(j.Handle, true))
	require.Len(t, resumer.calls, 1)
	call := resumer.calls[0]
	require.True(t, call.foreground)
	require.True(t, call.resume)
	require.False(t, call.stopped)
	require.False(t, call.notified)
	require.True(t, j.Foreground)

	require.Equal(t, []string{"800 (completed): vi"}, n.Reconcile())
}

func TestResumeBackground(t *testing.T) {
	tbl := job.NewTable()
	j := addJob(t, tbl, 900, []string{"make"})
	j.Foreground = true
	j.Processes[0].MarkStopped(job.StoppedStatus(unix.SIGTSTP))

	resumer := &recordingResumer{}
	n := New(tbl, &scriptedPoller{}, resumer, &bytes.Buffer{})

	require.NoError(t, n.Resume(j.Handle, false))
	require.Len(t, resumer.calls, 1)
	require.False(t, resumer.calls[0].foreground)
	require.False(t, j.Foreground)
	require.Equal(t, job.StateRunning, j.State())
}

func TestResumeUnknownOrFinishedJob(t *testing.T) {
	tbl := job.NewTable()
	n := New(tbl, &scriptedPoller{}, &recordingResumer{}, &bytes.Buffer{})

	err := n.Resume(job.Handle(uuid.New()), true)
	require.ErrorIs(t, err, job.ErrJobNotFound)

	j := addJob(t, tbl, 1000, []string{"true"})
	j.Processes[0].MarkCompleted(job.ExitedStatus(0))
	require.ErrorIs(t, n.Resume(j.Handle, false), ErrAlreadyCompleted)

	n.Reconcile()
	require.ErrorIs(t, n.Resume(j.Handle, false), job.ErrJobNotFound)
}
