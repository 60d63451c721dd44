// Package daemon wires the transport listener to the GUI loop: it owns
// daemon startup, the request drain timer, config-change watching, and
// shutdown ordering. One daemon instance per user, enforced by probing the
// socket before binding it.
package daemon

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/gui"
	"github.com/snapmark/snapmark/internal/logger"
	"github.com/snapmark/snapmark/internal/transport"
)

// bridgeDepth bounds how many requests may sit between the listener and the
// GUI loop before connection goroutines block. Requests are tiny; the bound
// exists so a stalled GUI cannot grow memory without limit.
const bridgeDepth = 128

// Options configures one daemon run.
type Options struct {
	Config config.Config
	// ConfigPath, when set, is watched so operators see when the file on
	// disk has drifted from the loaded snapshot.
	ConfigPath string
	// SocketPath overrides the per-user default, mainly for tests.
	SocketPath string
	Toolkit    gui.Toolkit
}

// Run starts the daemon and blocks until SIGINT/SIGTERM or a listener
// failure. It must be called from the process main goroutine, which becomes
// the GUI loop thread.
func Run(opts Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, opts)
}

func run(ctx context.Context, opts Options) error {
	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = config.SocketPath()
	}
	toolkit := opts.Toolkit
	if toolkit == nil {
		toolkit = gui.NewHeadless()
	}

	if transport.NewClient(socketPath).IsDaemonRunning() {
		return fmt.Errorf("daemon already running on %s", socketPath)
	}

	bridge := make(chan transport.Envelope, bridgeDepth)
	srv, err := transport.NewServer(socketPath, bridge)
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer srv.Close()

	if opts.ConfigPath != "" {
		if err := WatchConfig(ctx, opts.ConfigPath); err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}

	loop := gui.NewLoop()
	mgr := NewManager(opts.Config, toolkit, loop)
	loop.Post(mgr.Prewarm)

	// Drain timer: each tick moves at most DrainBatch requests from the
	// bridge onto the loop thread, never blocking it.
	batch := opts.Config.Daemon.DrainBatch
	loop.TickEvery(opts.Config.Tick(), func() {
		for i := 0; i < batch; i++ {
			select {
			case env := <-bridge:
				mgr.Handle(env)
			default:
				return
			}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
		loop.Quit()
	}()

	logger.Info("daemon listening", "socket", socketPath)
	loop.Run()
	srv.Close()

	if err := <-errCh; err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	return nil
}
