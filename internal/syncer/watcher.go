package syncer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	defaultDebounceTimeout = 500 * time.Millisecond
	defaultIgnoreTimeout   = time.Second
	eventBufferSize        = 64
)

// fileWatcher reports changes to a fixed set of files. Bursts of writes are
// debounced into a single callback. Files are matched by base name inside
// the watched directories since notify reports symlink-resolved paths on
// some platforms.
type fileWatcher struct {
	files map[string]struct{}
	dirs  []string

	debounceTimeout time.Duration

	ignoreMu    sync.Mutex
	suspended   bool
	ignoreUntil time.Time
}

func newFileWatcher(paths ...string) *fileWatcher {
	fw := &fileWatcher{
		files:           make(map[string]struct{}, len(paths)),
		debounceTimeout: defaultDebounceTimeout,
	}
	seen := make(map[string]struct{})
	for _, p := range paths {
		p = filepath.Clean(p)
		fw.files[filepath.Base(p)] = struct{}{}
		dir := filepath.Dir(p)
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			fw.dirs = append(fw.dirs, dir)
		}
	}
	return fw
}

// Suspend drops events until Resume, so that the writes of a pass do not
// trigger the next one.
func (fw *fileWatcher) Suspend() {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.suspended = true
}

// Resume accepts events again once grace has passed.
func (fw *fileWatcher) Resume(grace time.Duration) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.suspended = false
	fw.ignoreUntil = time.Now().Add(grace)
}

func (fw *fileWatcher) ignored() bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	return fw.suspended || time.Now().Before(fw.ignoreUntil)
}

// Watch blocks until ctx is done, calling fire with the last changed path
// once the files have been quiet for the debounce timeout.
func (fw *fileWatcher) Watch(ctx context.Context, fire func(path string)) error {
	raw := make(chan notify.EventInfo, eventBufferSize)
	for _, dir := range fw.dirs {
		if err := notify.Watch(dir, raw, notify.Write, notify.Create, notify.Rename, notify.Remove); err != nil {
			notify.Stop(raw)
			return err
		}
	}
	defer notify.Stop(raw)
	slog.Info("file watcher start", "dirs", fw.dirs)

	timer := time.NewTimer(fw.debounceTimeout)
	timer.Stop()
	defer timer.Stop()

	var pending string
	for {
		select {
		case <-ctx.Done():
			slog.Info("file watcher stopped")
			return nil
		case ev := <-raw:
			if _, ok := fw.files[filepath.Base(ev.Path())]; !ok {
				continue
			}
			if fw.ignored() {
				continue
			}
			pending = ev.Path()
			timer.Reset(fw.debounceTimeout)
		case <-timer.C:
			path := pending
			pending = ""
			if path == "" || fw.ignored() {
				continue
			}
			slog.Debug("file watcher", "path", path)
			fire(path)
		}
	}
}
