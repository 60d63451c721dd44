// Package transport implements the daemon side of the unix-socket protocol
// (listener, per-connection handling, reply delivery) and the short-lived
// client that talks to it. The listener runs in the async I/O domain; the
// only crossing into the GUI domain is the bridge channel of Envelopes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/snapmark/snapmark/internal/logger"
	"github.com/snapmark/snapmark/internal/protocol"
	"github.com/snapmark/snapmark/internal/security"
)

// Accept-loop flood guard. The socket is 0600 so only the owner can connect,
// but a runaway local script should not be able to starve the GUI tick.
const (
	acceptPerSecond = 100
	acceptBurst     = 32
)

// Envelope pairs one connection's request with its private, single-use reply
// channel. The GUI-side consumer sends exactly one Response on Reply; the
// connection's goroutine is its only receiver.
type Envelope struct {
	ConnID  string
	Request protocol.Request
	Reply   chan protocol.Response
}

// Server owns the daemon socket: stale-socket recovery, binding, permission
// enforcement, the accept loop, and unconditional cleanup.
type Server struct {
	socketPath string
	ln         net.Listener
	bridge     chan<- Envelope
	limiter    *rate.Limiter
	closeOnce  sync.Once
}

// NewServer removes any stale socket file, binds the unix socket and locks
// its permissions down before any connection can be accepted.
func NewServer(socketPath string, bridge chan<- Envelope) (*Server, error) {
	if _, err := os.Lstat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", socketPath, err)
	}

	if err := security.SetSocketPermissions(socketPath); err != nil {
		ln.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("secure socket: %w", err)
	}
	if err := security.VerifySocketOwnership(socketPath); err != nil {
		ln.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("secure socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		ln:         ln,
		bridge:     bridge,
		limiter:    rate.NewLimiter(rate.Limit(acceptPerSecond), acceptBurst),
	}, nil
}

// SocketPath returns the bound socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve accepts connections until the context is canceled or the listener
// fails. Individual misbehaving connections never stop the loop; a listener
// that cannot accept at all is fatal and reported to the caller.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn reads exactly one framed request, hands it across the bridge,
// then blocks on the private reply channel and writes the one response back.
// The blocking wait is scoped to this connection's goroutine, never the GUI
// thread.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()[:8]
	log := logger.Log.With("conn", connID)

	req, err := protocol.ReadRequest(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrConnectionClosed) {
			// Probe connections (is_daemon_running) land here; not an error.
			log.Debug("connection closed before request")
			return
		}
		log.Warn("rejecting request", "error", err)
		// Malformed framing or encoding still earns the one response this
		// connection is owed, when the socket is still writable.
		_ = protocol.WriteResponse(conn, protocol.ErrorResponse(err.Error()))
		return
	}

	reply := make(chan protocol.Response, 1)
	select {
	case s.bridge <- Envelope{ConnID: connID, Request: req, Reply: reply}:
	case <-ctx.Done():
		return
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			// GUI-side producer vanished mid-shutdown; drop this connection.
			log.Warn("reply channel closed, dropping connection")
			return
		}
		if err := protocol.WriteResponse(conn, resp); err != nil {
			log.Warn("write response", "error", err)
		}
	case <-ctx.Done():
	}
}

// Close shuts the listener and removes the socket file. Idempotent and
// unconditional, so a crashed or half-started daemon never leaves a socket
// that blocks the next instance.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.ln.Close()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove socket", "path", s.socketPath, "error", err)
		}
	})
}
