package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	OnChange func(*Config)
	OnError  func(error)
}

// Watcher reloads the config file whenever it changes on disk
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	path     string
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)

	done     chan struct{}
	timer    *time.Timer
	timerMu  sync.Mutex
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the config file at cfg.Path
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path := filepath.Clean(cfg.Path)
	return &Watcher{
		watcher:  watcher,
		loader:   NewLoader(path),
		path:     path,
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		onError:  cfg.OnError,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file. Editors often
// replace the file instead of writing it, which a watch on the file itself
// would miss.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	go w.eventLoop()

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onError(err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// Saves usually arrive as several events; reload once they settle
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := w.loader.Load()
	if err != nil {
		w.onError(fmt.Errorf("failed to reload config: %w", err))
		return
	}
	w.onChange(cfg)
}
