package api

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

type staticSource struct {
	mu    sync.Mutex
	infos []job.Info
}

func (s *staticSource) Published() []job.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infos
}

func startServer(t *testing.T, src Source) string {
	t.Helper()
	// Socket paths are limited to about 100 bytes; t.TempDir can exceed that.
	dir, err := os.MkdirTemp("", "jobshell-api")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "status.sock")
	srv := NewServer(path, src, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return path
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPing(t *testing.T) {
	src := &staticSource{infos: []job.Info{{ID: 1}, {ID: 2}}}
	path := startServer(t, src)

	resp, err := Ping(testContext(t), path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), resp.Pid)
	require.Equal(t, 2, resp.Jobs)
}

func TestListFiltersByState(t *testing.T) {
	src := &staticSource{infos: []job.Info{
		{ID: 1, Pgid: 100, State: "running", Command: "sleep 5"},
		{ID: 2, Pgid: 200, State: "stopped", Command: "vi"},
	}}
	path := startServer(t, src)
	ctx := testContext(t)

	all, err := List(ctx, path, "")
	require.NoError(t, err)
	require.Equal(t, 2, all.Count)
	require.Equal(t, src.infos, all.Jobs)

	stopped, err := List(ctx, path, "stopped")
	require.NoError(t, err)
	require.Equal(t, 1, stopped.Count)
	require.Equal(t, 200, stopped.Jobs[0].Pgid)

	none, err := List(ctx, path, "completed")
	require.NoError(t, err)
	require.Zero(t, none.Count)
	require.Empty(t, none.Jobs)
}

func TestUnknownActionAndBadRequest(t *testing.T) {
	path := startServer(t, &staticSource{})
	ctx := testContext(t)

	err := Call(ctx, path, "kill", nil, nil)
	require.EqualError(t, err, "unknown action: kill")

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	var resp rawResponse
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.False(t, resp.Ok)
	require.Contains(t, resp.Err, "invalid request")
}

func TestStopRemovesSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "jobshell-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "status.sock")

	// a stale file is replaced
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv := NewServer(path, &staticSource{}, nil)
	require.NoError(t, srv.Start())
	srv.Stop()
	srv.Stop()

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	_, err = Ping(testContext(t), path)
	require.Error(t, err)
}

func TestStopClosesIdleConnections(t *testing.T) {
	dir, err := os.MkdirTemp("", "jobshell-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "status.sock")

	srv := NewServer(path, &staticSource{}, nil)
	require.NoError(t, srv.Start())

	// connected but never sends a request
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	// give the accept loop time to hand the connection to a handler
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an idle connection")
	}
}
