package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/taskdeck/internal/bundle"
)

// DefaultDebounce collapses the events of a single atomic replace.
const DefaultDebounce = 100 * time.Millisecond

// ChangeFunc receives the record after another writer changed it.
// A nil bundle means the record was removed or is no longer readable.
type ChangeFunc func(ctx context.Context, b *bundle.TokenBundle)

// Watcher observes a FileStore for changes made by other processes.
type Watcher struct {
	store    *FileStore
	onChange ChangeFunc
	debounce time.Duration
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatcher creates a watcher for store. Bursts of events within debounce
// are collapsed into one reload.
func NewWatcher(store *FileStore, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:    store,
		onChange: onChange,
		debounce: debounce,
		logger:   log.With().Str("component", "credstore.watcher").Logger(),
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. The credential directory is created if missing.
func (w *Watcher) Start() error {
	// the file is replaced via rename, so the directory is watched instead of the inode
	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating '%s': %w", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching '%s': %w", dir, err)
	}
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	name := filepath.Clean(w.store.Path())
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	b, err := w.store.Load(w.ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("could not reload credential file")
		return
	}
	w.onChange(w.ctx, b)
}

// Close stops watching. Pending reloads are discarded.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
