package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// DefaultSocketPath is where the detection socket is created
const DefaultSocketPath = "/tmp/rod_detection.sock"

// writeTimeout bounds a write to a single client so a stalled reader can
// not hold up the capture loop
const writeTimeout = 200 * time.Millisecond

// SocketServer publishes frame results to every client connected to a
// unix socket
type SocketServer struct {
	path     string
	logger   *slog.Logger
	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	sent    uint64
	dropped uint64

	wg sync.WaitGroup
}

// NewSocketServer returns a server for the socket at path
func NewSocketServer(path string, logger *slog.Logger) *SocketServer {

	if path == "" {
		path = DefaultSocketPath
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SocketServer{
		path:    path,
		logger:  logger,
		clients: make(map[net.Conn]struct{}),
	}
}

// Listen creates the socket, replacing one left by a previous run, and
// starts accepting clients
func (s *SocketServer) Listen() error {

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.path, err)
	}

	l, err := net.Listen("unix", s.path)

	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}

	s.listener = l

	s.wg.Add(1)
	go s.accept()

	s.logger.Info("socket server listening", "path", s.path)

	return nil
}

func (s *SocketServer) accept() {

	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()

		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Warn("socket accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		n := len(s.clients)
		s.mu.Unlock()

		s.logger.Info("socket client connected", "clients", n)
	}
}

// Publish writes res to all clients.  Clients that fail the write are
// disconnected.
func (s *SocketServer) Publish(ctx context.Context, res FrameResult) error {

	payload, err := Encode(res)

	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)

	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for conn := range s.clients {
		conn.SetWriteDeadline(deadline)

		if err := WriteFrame(conn, payload); err != nil {
			s.logger.Warn("socket client dropped", "error", err)
			conn.Close()
			delete(s.clients, conn)
			s.dropped++
			continue
		}

		s.sent++
	}

	return nil
}

// Clients returns the number of connected clients
func (s *SocketServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Sent returns the number of frames written to clients
func (s *SocketServer) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close stops accepting, disconnects all clients and removes the socket
func (s *SocketServer) Close() error {

	var err error

	if s.listener != nil {
		err = s.listener.Close()
		s.wg.Wait()
	}

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	clear(s.clients)
	s.mu.Unlock()

	os.Remove(s.path)

	return err
}
