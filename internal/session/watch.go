package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds a best-effort fsnotify watch on a session's workspace root,
// letting ReadFiles/StatusCheck see a whitelist entry invalidated proactively
// instead of only detecting a stale hash lazily at edit time.
type Watcher struct {
	w   *fsnotify.Watcher
	log *slog.Logger
}

// WatchWorkspace starts watching dir recursively (skipping dotdirs) and
// invalidates st's whitelist entries as changes are observed. A failure to
// start the watch — platforms without inotify/FSEvents, or a workspace too
// large to enumerate — is logged at warn and returns nil: operations still
// work, they just fall back to lazy-only staleness detection.
func WatchWorkspace(log *slog.Logger, dir string, st *State) *Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, falling back to lazy staleness detection", "err", err)
		return nil
	}
	if err := addRecursive(w, dir); err != nil {
		log.Warn("fsnotify watch setup failed", "dir", dir, "err", err)
		w.Close()
		return nil
	}

	watcher := &Watcher{w: w, log: log}
	go watcher.run(st)
	return watcher
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (watcher *Watcher) run(st *State) {
	for {
		select {
		case ev, ok := <-watcher.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				st.InvalidateWhitelist(ev.Name)
			}
		case err, ok := <-watcher.w.Errors:
			if !ok {
				return
			}
			watcher.log.Warn("fsnotify error", "err", err)
		}
	}
}

// Close stops the watch. Safe to call on a nil Watcher.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}
	return watcher.w.Close()
}
