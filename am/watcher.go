package am

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
)

// ConfigWatcher watches a config file for changes and triggers reload callbacks
type ConfigWatcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	loader         func(path string) (*Config, error)
	done           chan struct{}
}

// ReloadCallback is called when config is reloaded
type ReloadCallback func(*Config) error

// NewConfigWatcher creates a watcher for configPath.
// The directory is watched rather than the file so editors that replace files atomically still trigger reloads.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config directory for %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     configPath,
		watcher:        watcher,
		debouncePeriod: 500 * time.Millisecond,
		loader:         LoadFromFile,
		done:           make(chan struct{}),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	target := filepath.Clean(cw.configPath)
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}

	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			logger.Errorw("Config reload failed", logger.FieldError, err)
		}
	})
}

// reload re-reads the watched file and calls all callbacks
func (cw *ConfigWatcher) reload() error {
	newConfig, err := cw.loader(cw.configPath)
	if err != nil {
		return err
	}
	if err := newConfig.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid, keeping previous settings")
	}

	logger.Infow("Config reloaded", logger.FieldPath, cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			// Continue calling other callbacks even if one fails
			logger.Warnw("Config reload callback error", logger.FieldError, err)
		}
	}

	return nil
}

// Stop stops watching for config changes
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()

	select {
	case <-cw.done:
	default:
		close(cw.done)
	}
	return cw.watcher.Close()
}
