// Package control exposes a running tournament to reviewer tooling over a
// unix domain socket: one JSON command per connection, one JSON response
// back. The server carries no tournament logic; the command handler is
// injected by whoever owns the controller.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command types understood by the review surface.
const (
	CmdApprove   = "approve"
	CmdReject    = "reject"
	CmdReinstate = "reinstate"
	CmdAbort     = "abort"
	CmdStatus    = "status"
)

// Command is one reviewer instruction sent to a running tournament.
type Command struct {
	Type        string    `json:"type"`
	CandidateID string    `json:"candidate_id,omitempty"` // target for reject/reinstate
	Actor       string    `json:"actor"`                  // who issued the command
	Note        string    `json:"note,omitempty"`         // reviewer note or abort reason
	Timestamp   time.Time `json:"timestamp"`
}

// Response is the result of one command.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler processes one command and returns response payload data.
type Handler func(cmd Command) (map[string]any, error)

// Server listens on the control socket for reviewer commands.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewServer creates a control server on the given socket path. A stale
// socket file from a crashed previous run is removed.
func NewServer(socketPath string, handler Handler) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins accepting reviewer connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	fmt.Printf("Review socket listening on %s\n", s.socketPath)
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Short accept deadline keeps the loop responsive to stop
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			fmt.Fprintf(os.Stderr, "control: failed to set deadline: %v\n", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			fmt.Fprintf(os.Stderr, "control: accept error: %v\n", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to set read deadline: %v\n", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	var resp Response
	if s.handler == nil {
		resp = Response{
			Success: false,
			Message: "no command handler registered",
			Error:   "server misconfiguration",
		}
	} else if data, err := s.handler(cmd); err != nil {
		resp = Response{
			Success: false,
			Message: fmt.Sprintf("%s failed: %v", cmd.Type, err),
			Error:   err.Error(),
		}
	} else {
		resp = Response{
			Success: true,
			Message: fmt.Sprintf("%s accepted", cmd.Type),
			Data:    data,
		}
	}

	if err := s.sendResponse(conn, resp); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to send response: %v\n", err)
	}
}

func (s *Server) sendError(conn net.Conn, message string) {
	_ = s.sendResponse(conn, Response{Success: false, Message: message, Error: message})
}

func (s *Server) sendResponse(conn net.Conn, resp Response) error {
	return json.NewEncoder(conn).Encode(resp)
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "control: error closing listener: %v\n", err)
		}
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		fmt.Fprintf(os.Stderr, "control: timeout waiting for server shutdown\n")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to remove socket file: %v\n", err)
	}
	return nil
}

// IsRunning reports whether the server is accepting connections
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path of the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}

// DefaultSocketPath returns the control socket location inside a data
// directory.
func DefaultSocketPath(dataDir string) string {
	return filepath.Join(dataDir, "control.sock")
}
