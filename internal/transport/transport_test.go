package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapmark/snapmark/internal/protocol"
)

// setup starts a server on a throwaway socket with handle standing in for
// the GUI-side consumer. Each envelope is handled on its own goroutine so
// tests can exercise out-of-order replies.
func setup(t *testing.T, handle func(Envelope)) (*Client, func()) {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "snapmark.sock")
	bridge := make(chan Envelope, 16)

	srv, err := NewServer(sock, bridge)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	go func() {
		for {
			select {
			case env := <-bridge:
				go handle(env)
			case <-ctx.Done():
				return
			}
		}
	}()

	return NewClient(sock), func() {
		cancel()
		srv.Close()
	}
}

// echoWindowIDs replies ok with sequentially issued ids.
func echoWindowIDs() func(Envelope) {
	var mu sync.Mutex
	var next uint64
	return func(env Envelope) {
		mu.Lock()
		next++
		id := next
		mu.Unlock()
		env.Reply <- protocol.OkResponse(id)
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	client, cleanup := setup(t, echoWindowIDs())
	defer cleanup()

	resp, err := client.Send(protocol.NewRequest("/tmp/x.png"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Status != protocol.StatusOk {
		t.Errorf("want status=ok, got %s (%s)", resp.Status, resp.Message)
	}
	if resp.WindowID != 1 {
		t.Errorf("want window_id=1, got %d", resp.WindowID)
	}

	resp, err = client.Send(protocol.NewRequest("/tmp/y.png"))
	if err != nil {
		t.Fatalf("send second: %v", err)
	}
	if resp.WindowID != 2 {
		t.Errorf("want window_id=2, got %d", resp.WindowID)
	}
}

func TestErrorResponse(t *testing.T) {
	client, cleanup := setup(t, func(env Envelope) {
		env.Reply <- protocol.ErrorResponse("file not found: " + env.Request.Filename)
	})
	defer cleanup()

	resp, err := client.Send(protocol.NewRequest("/tmp/missing.png"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Errorf("want status=error, got %s", resp.Status)
	}
	if !strings.Contains(resp.Message, "/tmp/missing.png") {
		t.Errorf("want message naming the file, got %q", resp.Message)
	}
}

func TestConcurrentResponseCorrelation(t *testing.T) {
	const clients = 20

	// Tag every request with a marker and reply with marker+1000, delaying
	// early arrivals longest so completions happen out of arrival order.
	client, cleanup := setup(t, func(env Envelope) {
		base := strings.TrimSuffix(filepath.Base(env.Request.Filename), ".png")
		n, err := strconv.Atoi(strings.TrimPrefix(base, "marker-"))
		if err != nil {
			env.Reply <- protocol.ErrorResponse("bad marker")
			return
		}
		time.Sleep(time.Duration(clients-n) * 2 * time.Millisecond)
		env.Reply <- protocol.OkResponse(uint64(n + 1000))
	})
	defer cleanup()

	var wg sync.WaitGroup
	errs := make(chan string, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Send(protocol.NewRequest("/tmp/marker-" + strconv.Itoa(i) + ".png"))
			if err != nil {
				errs <- err.Error()
				return
			}
			if resp.WindowID != uint64(i+1000) {
				errs <- "client " + strconv.Itoa(i) + " got window_id " + strconv.FormatUint(resp.WindowID, 10)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestMalformedRequestGetsErrorResponse(t *testing.T) {
	client, cleanup := setup(t, echoWindowIDs())
	defer cleanup()

	conn, err := net.Dial("unix", client.socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteMessage(conn, []byte("this is not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Errorf("want status=error, got %s", resp.Status)
	}

	// The listener survives; the next well-formed request still works.
	if _, err := client.Send(protocol.NewRequest("/tmp/x.png")); err != nil {
		t.Errorf("send after malformed connection: %v", err)
	}
}

func TestDisconnectMidProtocolIsDiscarded(t *testing.T) {
	client, cleanup := setup(t, echoWindowIDs())
	defer cleanup()

	// Connect and immediately hang up, like a daemon-running probe.
	conn, err := net.Dial("unix", client.socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	resp, err := client.Send(protocol.NewRequest("/tmp/x.png"))
	if err != nil {
		t.Fatalf("send after disconnect: %v", err)
	}
	if resp.Status != protocol.StatusOk {
		t.Errorf("want status=ok, got %s", resp.Status)
	}
}

func TestSendContextRoundTrip(t *testing.T) {
	client, cleanup := setup(t, echoWindowIDs())
	defer cleanup()

	resp, err := client.SendContext(context.Background(), protocol.NewRequest("/tmp/x.png"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.WindowID != 1 {
		t.Errorf("want window_id=1, got %d", resp.WindowID)
	}
}

func TestSendContextTimeout(t *testing.T) {
	// Consumer that never replies: the bounded read phase must fail instead
	// of hanging.
	client, cleanup := setup(t, func(Envelope) {})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.SendContext(ctx, protocol.NewRequest("/tmp/x.png")); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, want prompt failure", elapsed)
	}
}

func TestIsDaemonRunning(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "absent.sock")
	if NewClient(sock).IsDaemonRunning() {
		t.Error("want false for missing socket")
	}

	client, cleanup := setup(t, echoWindowIDs())
	if !client.IsDaemonRunning() {
		t.Error("want true for live daemon")
	}
	cleanup()
	if client.IsDaemonRunning() {
		t.Error("want false after shutdown")
	}
}

func TestIsDaemonRunningStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "stale.sock")
	leaveStaleSocket(t, sock)

	if NewClient(sock).IsDaemonRunning() {
		t.Error("want false for socket nobody accepts on")
	}
}

func TestStaleSocketRecovery(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "snapmark.sock")
	leaveStaleSocket(t, sock)

	bridge := make(chan Envelope, 1)
	srv, err := NewServer(sock, bridge)
	if err != nil {
		t.Fatalf("new server over stale socket: %v", err)
	}
	defer srv.Close()

	info, err := os.Stat(sock)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("want mode 0600, got %o", mode)
	}
}

func TestCloseRemovesSocketIdempotently(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "snapmark.sock")
	bridge := make(chan Envelope, 1)
	srv, err := NewServer(sock, bridge)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	srv.Close()
	if _, err := os.Lstat(sock); !os.IsNotExist(err) {
		t.Errorf("want socket removed, got %v", err)
	}
	srv.Close() // second close must be a no-op
}

func TestClosedReplyChannelDropsConnection(t *testing.T) {
	client, cleanup := setup(t, func(env Envelope) {
		close(env.Reply) // GUI side vanished without answering
	})
	defer cleanup()

	if _, err := client.Send(protocol.NewRequest("/tmp/x.png")); err == nil {
		t.Fatal("expected error when daemon drops the reply")
	}

	// The listener must survive the dropped reply.
	if !client.IsDaemonRunning() {
		t.Error("want daemon still accepting")
	}
}

// leaveStaleSocket binds a unix socket and closes it without unlinking,
// emulating a crashed daemon.
func leaveStaleSocket(t *testing.T, path string) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()
	if _, err := os.Lstat(path); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}
}
