package gateway

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"othello-relay/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Restarter restarts the engine process.
type Restarter interface {
	Restart() error
}

// Watcher restarts the engine when its executable is rebuilt. It watches the
// binary's directory, since build tools usually replace the file rather than
// write it in place.
type Watcher struct {
	watcher   *fsnotify.Watcher
	restarter Restarter
	dir       string
	name      string
	delay     time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the executable at binaryPath.
func NewWatcher(restarter Restarter, binaryPath string) (*Watcher, error) {
	if binaryPath == "" {
		return nil, errors.New("watcher: empty binary path")
	}
	abs, err := filepath.Abs(binaryPath)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:   w,
		restarter: restarter,
		dir:       filepath.Dir(abs),
		name:      filepath.Base(abs),
		delay:     debounceDelay,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.run()
	logger.Info().Str("path", filepath.Join(w.dir, w.name)).Msg("Watching engine binary")
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// schedule restarts once writes have been quiet for the debounce delay.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.restart)
}

func (w *Watcher) restart() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	logger.Info().Str("binary", w.name).Msg("Engine binary changed, restarting")
	if err := w.restarter.Restart(); err != nil {
		logger.Error().Err(err).Msg("Failed to restart engine after binary change")
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		_ = w.watcher.Close()
	})
}
