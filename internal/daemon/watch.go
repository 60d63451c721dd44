package daemon

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/snapmark/snapmark/internal/logger"
)

// WatchConfig watches the configuration file until ctx ends. The daemon
// loads its config once at startup, so a change on disk cannot take effect
// until a restart; the watcher's job is to say so in the log instead of
// leaving operators to wonder why their edit did nothing.
func WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: editors replace files on save and
	// a file-level watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Info("configuration file changed; restart the daemon to apply it",
						"path", path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
