package repl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	cmderr "github.com/PiranhaCodes/jobshell/internal/err"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/launch"
)

type resumed struct {
	handle     job.Handle
	foreground bool
}

type fakeSession struct {
	submitted  []job.Pipeline
	submitErr  error
	reconciles int
	listed     int
	resumed    []resumed
	handles    map[string]job.Handle
	infos      []job.Info
}

func newFakeSession() *fakeSession {
	return &fakeSession{handles: map[string]job.Handle{}}
}

func (s *fakeSession) Submit(p job.Pipeline) (job.Handle, error) {
	if s.submitErr != nil {
		return job.Handle{}, s.submitErr
	}
	s.submitted = append(s.submitted, p)
	return job.Handle(uuid.New()), nil
}

func (s *fakeSession) Reconcile() []string  { s.reconciles++; return nil }
func (s *fakeSession) ListActive() []string { s.listed++; return nil }
func (s *fakeSession) Snapshot() []job.Info { return s.infos }

func (s *fakeSession) Resume(h job.Handle, fg bool) error {
	s.resumed = append(s.resumed, resumed{h, fg})
	return nil
}

func (s *fakeSession) Lookup(spec string) (job.Handle, error) {
	h, ok := s.handles[spec]
	if !ok {
		return job.Handle{}, job.ErrJobNotFound
	}
	return h, nil
}

func run(t *testing.T, s *fakeSession, input string) (string, string, error) {
	t.Helper()
	streams, in, out, errOut := iostreams.NewTestIOStreams()
	in.WriteString(input)
	err := New(s, streams, WithPrompt("> ")).Run(context.Background())
	return out.String(), errOut.String(), err
}

func TestRunSubmitsParsedPipelines(t *testing.T) {
	s := newFakeSession()
	out, errOut, err := run(t, s, "ls | wc -l\nsleep 5 &\n\n")
	require.NoError(t, err)
	require.Empty(t, errOut)

	require.Len(t, s.submitted, 2)
	require.Len(t, s.submitted[0].Stages, 2)
	require.True(t, s.submitted[0].Foreground)
	require.False(t, s.submitted[1].Foreground)

	// one prompt per line read, plus the one answered by end of input
	require.Equal(t, "> > > > \n", out)
	require.Equal(t, 4, s.reconciles)
}

func TestRunRunsLastLineWithoutNewline(t *testing.T) {
	s := newFakeSession()
	_, _, err := run(t, s, "true")
	require.NoError(t, err)
	require.Len(t, s.submitted, 1)
}

func TestRunReportsSyntaxErrorsAndContinues(t *testing.T) {
	s := newFakeSession()
	_, errOut, err := run(t, s, "ls |\necho ok\n")
	require.NoError(t, err)
	require.Contains(t, errOut, "jobshell: syntax error: missing command in pipeline")
	require.Len(t, s.submitted, 1)
}

func TestRunReportsRecoverableSubmitErrors(t *testing.T) {
	s := newFakeSession()
	s.submitErr = errors.New("in.txt: no such file or directory")
	_, errOut, err := run(t, s, "cat < in.txt\n")
	require.NoError(t, err)
	require.Contains(t, errOut, "jobshell: in.txt: no such file or directory")
}

func TestRunStopsOnSpawnFailure(t *testing.T) {
	s := newFakeSession()
	s.submitErr = &launch.SpawnError{Op: "pipe", Stage: 0, Err: errors.New("too many open files")}
	_, _, err := run(t, s, "ls | wc\necho never\n")

	require.ErrorIs(t, err, launch.ErrSpawn)
	var ee *cmderr.ExecutionError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, 1, cmderr.ExitCode(err))
}

func TestRunStopsWhenContextDone(t *testing.T) {
	s := newFakeSession()
	streams, in, _, _ := iostreams.NewTestIOStreams()
	in.WriteString("ls\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(s, streams).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, s.submitted)
}

func TestRunReturnsWhenCancelledWhileReading(t *testing.T) {
	s := newFakeSession()
	in, w := io.Pipe()
	defer w.Close()
	streams, _, _, _ := iostreams.NewTestIOStreams()
	streams.In = in

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(s, streams, WithPrompt("> ")).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked reading after cancel")
	}
	require.Empty(t, s.submitted)
}

func TestLineReaderDoesNotReadAhead(t *testing.T) {
	in, w := io.Pipe()
	lr := newLineReader(in)

	go func() { _, _ = w.Write([]byte("first\n")) }()
	line, err := lr.next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first\n", line)
	require.Nil(t, lr.pending)

	// Nothing is buffered for the next line until it is asked for.
	require.Zero(t, lr.reader.Buffered())
	w.Close()
}

func TestExitBuiltin(t *testing.T) {
	s := newFakeSession()
	_, _, err := run(t, s, "exit\nls\n")
	require.NoError(t, err)
	require.Empty(t, s.submitted)

	_, _, err = run(t, s, "exit 3\n")
	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, 3, ee.Code)
}

func TestCdAndPwdBuiltins(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s := newFakeSession()
	out, errOut, err := run(t, s, "cd "+dir+"\npwd\ncd /no/such/dir\n")
	require.NoError(t, err)
	require.Contains(t, errOut, "cd: ")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.Contains(t, out, cwd+"\n")
	require.Empty(t, s.submitted)
}

func TestBuiltinNameInPipelineIsAProgram(t *testing.T) {
	s := newFakeSession()
	_, _, err := run(t, s, "pwd | cat\n")
	require.NoError(t, err)
	require.Len(t, s.submitted, 1)
}

func TestFgAndBgBuiltins(t *testing.T) {
	s := newFakeSession()
	first := job.Handle(uuid.New())
	current := job.Handle(uuid.New())
	s.handles["%1"] = first
	s.handles[""] = current

	_, errOut, err := run(t, s, "fg %1\nbg\nfg %7\n")
	require.NoError(t, err)
	require.Equal(t, []resumed{{first, true}, {current, false}}, s.resumed)
	require.Contains(t, errOut, "fg: job not found")
}

func TestJobsBuiltinFormats(t *testing.T) {
	s := newFakeSession()
	s.infos = []job.Info{{ID: 1, Handle: "h", Pgid: 42, State: "running", Command: "sleep 5", Pids: []int{42}}}

	_, _, err := run(t, s, "jobs\n")
	require.NoError(t, err)
	require.Equal(t, 1, s.listed)

	out, _, err := run(t, s, "jobs -o json\n")
	require.NoError(t, err)
	var fromJSON []job.Info
	require.NoError(t, json.Unmarshal([]byte(trimPrompts(out)), &fromJSON))
	require.Equal(t, 42, fromJSON[0].Pgid)

	out, _, err = run(t, s, "jobs --output yaml\n")
	require.NoError(t, err)
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(trimPrompts(out)), &fromYAML))
	require.Equal(t, "sleep 5", fromYAML[0]["command"])

	_, errOut, err := run(t, s, "jobs -o xml\n")
	require.NoError(t, err)
	require.Contains(t, errOut, `unknown output format "xml"`)
}

// trimPrompts removes the "> " prompts that surround a builtin's output.
func trimPrompts(out string) string {
	const prompt = "> "
	if len(out) >= len(prompt) && out[:len(prompt)] == prompt {
		out = out[len(prompt):]
	}
	for _, suffix := range []string{"> \n", "\n"} {
		if len(out) >= len(suffix) && out[len(out)-len(suffix):] == suffix {
			out = out[:len(out)-len(suffix)]
			break
		}
	}
	return out
}
