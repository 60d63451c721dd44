package daemon

import (
	"bytes"
	"image"
	"image/png"

	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/gui"
	"github.com/snapmark/snapmark/internal/logger"
	"github.com/snapmark/snapmark/internal/protocol"
	"github.com/snapmark/snapmark/internal/transport"
)

// Manager owns every annotation window session. All of its fields, the
// window id counter included, are confined to the GUI loop thread: Handle
// and Prewarm must only run as posted loop work, which is why none of this
// needs a mutex.
type Manager struct {
	cfg     config.Config
	toolkit gui.Toolkit
	loop    *gui.Loop

	lastWindowID uint64
	windows      map[uint64]gui.Window
}

// NewManager builds a session manager bound to one loop and toolkit.
func NewManager(cfg config.Config, toolkit gui.Toolkit, loop *gui.Loop) *Manager {
	return &Manager{
		cfg:     cfg,
		toolkit: toolkit,
		loop:    loop,
		windows: make(map[uint64]gui.Window),
	}
}

// Handle services one drained request end to end: validate, load the image,
// resolve the window's configuration, build the window, reply, present.
// The reply goes out before Present so a slow or wedged toolkit cannot
// stall the client past its read timeout.
func (m *Manager) Handle(env transport.Envelope) {
	log := logger.Log.With("conn", env.ConnID)

	if err := env.Request.Validate(); err != nil {
		log.Warn("rejecting request", "error", err)
		env.Reply <- protocol.ErrorResponse(err.Error())
		return
	}

	res, err := LoadResource(env.Request)
	if err != nil {
		log.Warn("cannot load image", "error", err)
		env.Reply <- protocol.ErrorResponse(err.Error())
		return
	}

	winCfg := config.DeriveWindow(m.cfg, env.Request)
	win, err := m.toolkit.NewWindow(res, winCfg)
	if err != nil {
		log.Error("window construction failed", "error", err)
		env.Reply <- protocol.ErrorResponse(err.Error())
		return
	}

	m.lastWindowID++
	id := m.lastWindowID
	m.windows[id] = win

	env.Reply <- protocol.OkResponse(id)
	win.Present()
	log.Info("window presented", "window_id", id, "source", res.Path)

	go func() {
		<-win.Done()
		m.loop.Post(func() {
			delete(m.windows, id)
			logger.Debug("window closed", "window_id", id)
		})
	}()
}

// OpenWindows reports how many sessions are live. Loop thread only.
func (m *Manager) OpenWindows() int {
	return len(m.windows)
}

// Prewarm exercises window construction against a throwaway in-memory image
// so the toolkit's lazy initialization happens at startup, not on the first
// request. The window is torn down without ever being presented.
func (m *Manager) Prewarm() {
	res := &gui.Resource{Path: "prewarm", Data: blankPNG(), Width: 1, Height: 1}
	win, err := m.toolkit.NewWindow(res, config.StandaloneWindow(m.cfg, res.Path))
	if err != nil {
		logger.Warn("prewarm window failed", "error", err)
		return
	}
	m.toolkit.Pump()
	win.Close()
	logger.Debug("toolkit prewarmed")
}

func blankPNG() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	return buf.Bytes()
}
