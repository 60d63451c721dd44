package daemon

import (
	"context"

	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/gui"
	"github.com/snapmark/snapmark/internal/logger"
	"github.com/snapmark/snapmark/internal/protocol"
)

// RunStandalone opens a single annotation window with no daemon involved,
// the cold-start path the client falls back to when nothing is listening.
// It blocks until the window is closed or ctx ends. Like Run, it must be
// called from the process main goroutine.
func RunStandalone(ctx context.Context, cfg config.Config, toolkit gui.Toolkit, req protocol.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	res, err := LoadResource(req)
	if err != nil {
		return err
	}
	winCfg := config.DeriveWindow(cfg, req)

	loop := gui.NewLoop()
	errCh := make(chan error, 1)
	loop.Post(func() {
		win, err := toolkit.NewWindow(res, winCfg)
		if err != nil {
			errCh <- err
			loop.Quit()
			return
		}
		win.Present()
		errCh <- nil
		logger.Info("standalone window presented", "source", res.Path)
		go func() {
			select {
			case <-win.Done():
			case <-ctx.Done():
				win.Close()
			}
			loop.Quit()
		}()
	})
	loop.Run()
	return <-errCh
}
