// Package api serves a read-only view of the shell's jobs on a UNIX socket.
// Each connection carries one JSON request and one JSON response.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/PiranhaCodes/jobshell/internal/job"
	"github.com/PiranhaCodes/jobshell/internal/log"
)

// connTimeout bounds how long one connection may take to send its request
// and read the response.
const connTimeout = 5 * time.Second

// Source provides the job snapshot the server reports.
type Source interface {
	Published() []job.Info
}

// Server handles UNIX socket connections.
type Server struct {
	socketPath string
	source     Source
	logger     *slog.Logger

	listener net.Listener
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a new server instance. A nil logger discards.
func NewServer(socketPath string, source Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		socketPath: socketPath,
		source:     source,
		logger:     logger.With("component", "api"),
		stopChan:   make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket and accepts connections in the background.
// A stale socket file at the path is replaced.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	s.listener = listener
	s.logger.Info("status socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// track registers an open connection. It fails once Stop has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Stop closes the listener and every open connection, waits for the
// handlers to return, and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.stopChan)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove socket", "path", s.socketPath, "error", err)
		}
		s.logger.Info("status socket stopped")
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		s.logger.Debug("set deadline failed", "error", err)
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		s.reply(encoder, Response{Ok: false, Err: "invalid request: " + err.Error()})
		return
	}
	s.logger.Debug("request", "action", req.Action)

	switch req.Action {
	case ActionPing:
		s.reply(encoder, Response{Ok: true, Data: PingResponse{
			Pid:  os.Getpid(),
			Jobs: len(s.source.Published()),
		}})
	case ActionList:
		s.handleList(req.Data, encoder)
	default:
		s.reply(encoder, Response{Ok: false, Err: "unknown action: " + req.Action})
	}
}

func (s *Server) handleList(data json.RawMessage, encoder *json.Encoder) {
	var req ListRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(encoder, Response{Ok: false, Err: "invalid list request: " + err.Error()})
			return
		}
	}

	jobs := make([]job.Info, 0)
	for _, info := range s.source.Published() {
		if req.State == "" || info.State == req.State {
			jobs = append(jobs, info)
		}
	}

	s.reply(encoder, Response{
		Ok:   true,
		Data: ListResponse{Jobs: jobs, Count: len(jobs)},
	})
}

func (s *Server) reply(encoder *json.Encoder, resp Response) {
	if err := encoder.Encode(resp); err != nil {
		s.logger.Debug("reply failed", "error", err)
	}
}
