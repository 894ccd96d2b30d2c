package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const mdocExtension = ".mdoc"

// Handler receives settled metadata files, sorted, and yields those it could not take yet.
// A file is delivered again whenever it changes, failed files stay eligible for directory scans too.
type Handler func(mdocPaths []string) (failed []string)

// Watcher reports metadata files appearing anywhere below a root directory.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	handler Handler
	settle  time.Duration //quiet time before pending files are reported
	logger  *slog.Logger

	seen    map[string]bool
	pending map[string]bool
}

func New(root string, handler Handler, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		watcher: watcher,
		handler: handler,
		settle:  settle,
		logger:  logger,
		seen:    make(map[string]bool),
		pending: make(map[string]bool),
	}, nil
}

// MarkSeen suppresses reports for known files found by directory scans, changes to them are still reported.
func (w *Watcher) MarkSeen(paths ...string) {
	for _, path := range paths {
		w.seen[path] = true
	}
}

// Run watches until the context is done, the handler is called from this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	if err := w.addRecursive(w.root, false); err != nil {
		return err
	}

	var timer *time.Timer
	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Has(fsnotify.Create) {
					if err := w.addRecursive(event.Name, true); err != nil {
						w.logger.Warn("cannot watch new directory", "dir", event.Name, "error", err)
					}
				}
			} else if strings.HasSuffix(event.Name, mdocExtension) {
				w.pending[event.Name] = true
			}
			if len(w.pending) > 0 {
				if timer == nil {
					timer = time.NewTimer(w.settle)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.settle)
				}
				settled = timer.C
			}
		case <-settled:
			settled = nil
			w.flush()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// addRecursive watches the directory tree, metadata files already inside are queued if requested.
func (w *Watcher) addRecursive(root string, queueExisting bool) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil //vanished meanwhile
		}
		if entry.IsDir() {
			return w.watcher.Add(path)
		}
		if queueExisting && strings.HasSuffix(path, mdocExtension) && !w.seen[path] {
			w.pending[path] = true
		}
		return nil
	})
}

func (w *Watcher) flush() {
	if len(w.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	sort.Strings(paths)
	w.logger.Debug("settled metadata files", "count", len(paths))

	failed := make(map[string]bool)
	for _, path := range w.handler(paths) {
		failed[path] = true
	}
	for _, path := range paths {
		if failed[path] {
			delete(w.seen, path)
		} else {
			w.seen[path] = true
		}
	}
}
