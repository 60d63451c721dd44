package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/snapmark/snapmark/internal/protocol"
)

// Client timeouts. The daemon replies before constructing the window, so 30s
// of read headroom covers even a cold, swapping machine.
const (
	connectTimeout = 5 * time.Second
	readTimeout    = 30 * time.Second
)

// Client sends one request to a running daemon. Fallback when the daemon is
// unreachable is the caller's policy, not the client's: every failure here
// is surfaced and the caller decides to cold-start instead.
type Client struct {
	socketPath string
}

// NewClient returns a client targeting the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// IsDaemonRunning reports whether something is accepting connections at the
// socket path. A socket file that refuses connections is stale, which counts
// as not running.
func (c *Client) IsDaemonRunning() bool {
	if _, err := os.Lstat(c.socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", c.socketPath, connectTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Send connects, writes the framed request and reads exactly one framed
// response, under a connect timeout and a separate read timeout. Blocking
// I/O is fine here: the client is a short-lived process.
func (c *Client) Send(req protocol.Request) (protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, connectTimeout)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect daemon: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(connectTimeout)); err != nil {
		return protocol.Response{}, fmt.Errorf("set write deadline: %w", err)
	}
	if err := protocol.WriteRequest(conn, req); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return protocol.Response{}, fmt.Errorf("set read deadline: %w", err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// SendContext is Send with explicit per-phase timeout wrapping: connect,
// write and read are each individually bounded, so a stall in any single
// phase fails with that phase's error instead of an indefinite hang.
func (c *Client) SendContext(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect daemon: %w", err)
	}
	defer conn.Close()

	// Context cancellation unblocks any in-flight read or write.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetWriteDeadline(time.Now().Add(connectTimeout)); err != nil {
		return protocol.Response{}, fmt.Errorf("set write deadline: %w", err)
	}
	if err := protocol.WriteRequest(conn, req); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return protocol.Response{}, fmt.Errorf("set read deadline: %w", err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Response{}, fmt.Errorf("read response: %w", ctx.Err())
		}
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
