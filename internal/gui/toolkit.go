package gui

import (
	"sync"

	"github.com/snapmark/snapmark/internal/config"
)

// Resource is a loaded, validated image ready to back an annotation window.
type Resource struct {
	// Path is the canonical source path, or "-" for inline data.
	Path string
	// Data holds the raw encoded image bytes.
	Data []byte
	// Width and Height come from decoding the image header.
	Width  int
	Height int
}

// Window is one presented annotation window. Its lifecycle after Present is
// driven by the user and is independent of whatever request created it.
type Window interface {
	Present()
	Close()
	// Done is closed once the window is gone, whether the user closed it
	// or Close was called.
	Done() <-chan struct{}
}

// Toolkit is the GUI toolkit collaborator. A production build wraps the
// desktop toolkit behind this interface; the daemon and the tests use the
// headless implementation below. NewWindow and Pump must only be called from
// the Loop thread.
type Toolkit interface {
	NewWindow(res *Resource, cfg config.WindowConfig) (Window, error)
	// Pump processes pending toolkit events until there is nothing left to
	// do, used after construction to let initialization settle.
	Pump()
}

// Headless is a Toolkit that tracks window state without rendering
// anything.
type Headless struct {
	mu        sync.Mutex
	open      map[*HeadlessWindow]struct{}
	presented uint64
}

// NewHeadless returns an empty headless toolkit.
func NewHeadless() *Headless {
	return &Headless{open: make(map[*HeadlessWindow]struct{})}
}

// NewWindow creates an unpresented window bound to the resource and its own
// configuration copy.
func (h *Headless) NewWindow(res *Resource, cfg config.WindowConfig) (Window, error) {
	w := &HeadlessWindow{toolkit: h, Resource: res, Config: cfg, done: make(chan struct{})}
	h.mu.Lock()
	h.open[w] = struct{}{}
	h.mu.Unlock()
	return w, nil
}

// Pump is a no-op: the headless toolkit has no deferred event work.
func (h *Headless) Pump() {}

// OpenWindows reports how many windows exist and are not closed.
func (h *Headless) OpenWindows() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

// Presented reports how many windows have ever been presented, including
// since-closed ones.
func (h *Headless) Presented() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presented
}

// HeadlessWindow records the lifecycle a real toolkit window would go
// through.
type HeadlessWindow struct {
	toolkit  *Headless
	Resource *Resource
	Config   config.WindowConfig

	mu        sync.Mutex
	presented bool
	closed    bool
	done      chan struct{}
}

func (w *HeadlessWindow) Present() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.presented {
		return
	}
	w.presented = true
	w.toolkit.mu.Lock()
	w.toolkit.presented++
	w.toolkit.mu.Unlock()
}

func (w *HeadlessWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	w.toolkit.mu.Lock()
	delete(w.toolkit.open, w)
	w.toolkit.mu.Unlock()
}

// Done reports window teardown.
func (w *HeadlessWindow) Done() <-chan struct{} {
	return w.done
}

// IsPresented reports whether Present has run.
func (w *HeadlessWindow) IsPresented() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.presented
}
