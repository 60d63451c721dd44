// Package gui bridges snapmark to its GUI toolkit. The toolkit itself
// (widget construction, rendering, input) lives behind the Toolkit
// interface; this package owns the main-loop discipline around it: a
// single-threaded cooperative event loop that all window/session state is
// confined to.
package gui

import (
	"runtime"
	"sync"
	"time"
)

// Loop is a cooperative event loop pinned to one OS thread, standing in for
// the GUI toolkit's main loop. All session state in the daemon is owned by
// the goroutine running Run; other goroutines hand it work via Post.
type Loop struct {
	work     chan func()
	quit     chan struct{}
	quitOnce sync.Once
}

// NewLoop returns an event loop ready to run.
func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 256),
		quit: make(chan struct{}),
	}
}

// Run processes posted work until Quit. It locks the calling goroutine to
// its OS thread for the duration, the way a real GUI main loop would own the
// main thread.
func (l *Loop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case f := <-l.work:
			f()
		case <-l.quit:
			return
		}
	}
}

// Post schedules f on the loop thread. It reports false once the loop has
// quit; callers treat that as "the GUI domain is gone".
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.quit:
		return false
	case l.work <- f:
		return true
	}
}

// TickEvery schedules f on the loop thread at the given interval until the
// loop quits. Ticks that find the loop busy are dropped rather than queued,
// so a slow handler cannot pile up timer work.
func (l *Loop) TickEvery(interval time.Duration, f func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.quit:
				return
			case <-ticker.C:
				select {
				case l.work <- f:
				case <-l.quit:
					return
				default:
					// Loop is saturated; skip this tick.
				}
			}
		}
	}()
}

// Quit stops the loop. Idempotent.
func (l *Loop) Quit() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Done reports the quit channel for callers that need to select on loop
// termination.
func (l *Loop) Done() <-chan struct{} {
	return l.quit
}
