package storage

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher notices when the file behind a slot is rewritten and calls
// onChange. Bursts of events are debounced. The callback decides whether
// the write was foreign, typically through Slot.Changed.
type Watcher struct {
	files    *FileStorage
	path     string
	onChange func()
	log      *zap.Logger
	watcher  *fsnotify.Watcher

	debounceDelay time.Duration
	mu            sync.Mutex
	timer         *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for slot stored in files.
func NewWatcher(files *FileStorage, slot *Slot, log *zap.Logger, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		files:         files,
		path:          filepath.Clean(files.Path(slot.Key())),
		onChange:      onChange,
		log:           log.Named("watch"),
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		done:          make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file
// because atomic writes replace the file's inode.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.files.Dir()); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.eventLoop()
	w.log.Info("watching slot file", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.log.Debug("slot file event", zap.Stringer("op", event.Op))
	w.queueReload()
}

func (w *Watcher) queueReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	if w.timer != nil {
		w.timer.Reset(w.debounceDelay)
		return
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	w.log.Debug("slot file settled")
	w.onChange()
}
