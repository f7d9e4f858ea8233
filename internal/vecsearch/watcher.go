package vecsearch

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hanzoai/aci/internal/logging"
)

// Watcher observes source roots and marks collections stale when files
// under them change. Staleness is advisory: searches still run against
// the indexed snapshot, callers re-index when it matters.
type Watcher struct {
	fs *fsnotify.Watcher

	mu    sync.RWMutex
	stale bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching the given roots. Roots that do not exist
// are skipped with a warning rather than failing the whole watcher.
func NewWatcher(roots []string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fs: fs, done: make(chan struct{})}
	for _, root := range roots {
		if err := fs.Add(root); err != nil {
			logging.Get(logging.CategoryVector).Warn("Cannot watch %s: %v", root, err)
		}
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.stale = true
				w.mu.Unlock()
				logging.VectorDebug("Index marked stale by %s", event.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryVector).Warn("Watcher error: %v", err)
		}
	}
}

// Stale reports whether any watched file changed since the last Reset.
func (w *Watcher) Stale() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stale
}

// Reset clears the staleness flag, typically after a re-index.
func (w *Watcher) Reset() {
	w.mu.Lock()
	w.stale = false
	w.mu.Unlock()
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
