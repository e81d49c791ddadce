// Package watcher rebuilds the knowledge base index when its content
// source changes on disk.
//
// Events are debounced: a burst of saves produces one reload once the
// source has been quiet for the debounce window. The watcher never touches
// the index itself; it only calls Reload, which swaps the index atomically.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dpshade/pocket-kb/internal/logging"
	"github.com/dpshade/pocket-kb/internal/service"
)

// Reloader rebuilds the index from the content source
type Reloader interface {
	Reload(ctx context.Context) (service.BuildReport, error)
}

// ReloadFunc is called after every debounced reload
type ReloadFunc func(report service.BuildReport, err error)

// Stats tracks watcher activity
type Stats struct {
	Events     int
	Reloads    int
	Failures   int
	Errors     int
	LastEvent  string
	LastReload time.Time
}

// ContentWatcher watches a content directory or collection file
type ContentWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	reloader    Reloader
	logger      *logging.Logger
	source      string // Directory or file being watched
	sourceIsDir bool
	onReload    ReloadFunc

	pendingSince time.Time // Zero when no change is waiting
	debounceDur  time.Duration
	tickInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	stats Stats
}

// NewContentWatcher creates a watcher for source. A debounce of zero or
// less uses 500ms.
func NewContentWatcher(source string, reloader Reloader, debounce time.Duration, logger *logging.Logger) (*ContentWatcher, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Nop()
	}

	tick := debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}

	return &ContentWatcher{
		watcher:      watcher,
		reloader:     reloader,
		logger:       logger.With("component", "watcher"),
		source:       filepath.Clean(source),
		sourceIsDir:  info.IsDir(),
		debounceDur:  debounce,
		tickInterval: tick,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after each reload. Call it before Start.
func (cw *ContentWatcher) OnReload(fn ReloadFunc) {
	cw.mu.Lock()
	cw.onReload = fn
	cw.mu.Unlock()
}

// Start begins watching. It is non-blocking; events are handled in a
// goroutine until Stop is called or ctx is cancelled.
func (cw *ContentWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if cw.sourceIsDir {
		if err := cw.addTree(cw.source); err != nil {
			cw.abortStart()
			return err
		}
	} else {
		// Editors often replace a file by rename, so watch its directory
		if err := cw.watcher.Add(filepath.Dir(cw.source)); err != nil {
			cw.abortStart()
			return err
		}
	}
	cw.logger.Info("watching content", "source", cw.source, "debounce", cw.debounceDur)

	go cw.run(ctx)
	return nil
}

func (cw *ContentWatcher) abortStart() {
	cw.mu.Lock()
	cw.running = false
	cw.mu.Unlock()
	close(cw.doneCh)
	_ = cw.watcher.Close()
}

// addTree watches dir and every non-hidden directory below it
func (cw *ContentWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return cw.watcher.Add(path)
	})
}

// Stop stops the watcher and waits for its goroutine to exit
func (cw *ContentWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh

	if err := cw.watcher.Close(); err != nil {
		cw.logger.Error("failed to close watcher", "error", err)
	}
	cw.logger.Info("watcher stopped")
}

// Done is closed when the event loop exits
func (cw *ContentWatcher) Done() <-chan struct{} {
	return cw.doneCh
}

// run is the main event loop
func (cw *ContentWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	ticker := time.NewTicker(cw.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("watch error", "error", err)
			cw.mu.Lock()
			cw.stats.Errors++
			cw.mu.Unlock()

		case <-ticker.C:
			cw.processPending(ctx)
		}
	}
}

// handleEvent marks the source as changed if the event concerns it
func (cw *ContentWatcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	path := filepath.Clean(event.Name)
	if cw.sourceIsDir {
		if event.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				if err := cw.addTree(path); err != nil {
					cw.logger.Warn("failed to watch new directory", "dir", path, "error", err)
				}
			}
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") && event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
			return
		}
	} else if path != cw.source {
		return
	}

	cw.logger.Debug("content changed", "path", path, "op", event.Op.String())

	cw.mu.Lock()
	cw.stats.Events++
	cw.stats.LastEvent = path
	cw.pendingSince = time.Now()
	cw.mu.Unlock()
}

// processPending reloads once changes have settled past the debounce window
func (cw *ContentWatcher) processPending(ctx context.Context) {
	cw.mu.Lock()
	if cw.pendingSince.IsZero() || time.Since(cw.pendingSince) < cw.debounceDur {
		cw.mu.Unlock()
		return
	}
	cw.pendingSince = time.Time{}
	onReload := cw.onReload
	cw.mu.Unlock()

	report, err := cw.reloader.Reload(ctx)

	cw.mu.Lock()
	cw.stats.Reloads++
	cw.stats.LastReload = time.Now()
	if err != nil {
		cw.stats.Failures++
	}
	cw.mu.Unlock()

	if err != nil {
		cw.logger.Warn("reload failed, previous index still active", "error", err)
	} else {
		cw.logger.Info("index reloaded", "records", report.Indexed, "excluded", len(report.Validation.Invalid))
	}

	if onReload != nil {
		onReload(report, err)
	}
}

// GetStats returns the current watcher statistics
func (cw *ContentWatcher) GetStats() Stats {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.stats
}

// IsWatching returns true if the watcher is currently running
func (cw *ContentWatcher) IsWatching() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.running
}
