// Package watcher revalidates configuration files as they change on
// disk, so a broken edit is reported before a run is launched with it.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/search"
)

// Result is the outcome of validating one configuration file.
type Result struct {
	Path         string
	Err          error     // nil when the file is valid
	Combinations int       // search-space size of a valid file, 1 when concrete
	Checked      time.Time
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Validations   int
	Failures      int
	LastEventTime time.Time
	LastEventPath string
}

// Watcher debounces filesystem events on configuration files and
// validates each settled file. Editors save in bursts; a file is only
// validated once its events have been quiet for the settle window.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	log         *zap.Logger
	onResult    func(Result)
	pinnedFiles map[string]bool // explicitly added files
	addedDirs   map[string]bool // explicitly added directories
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// New builds a watcher that reports every validation through onResult.
// onResult is called from the watcher goroutine.
func New(log *zap.Logger, onResult func(Result)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		watcher:     fw,
		log:         log,
		onResult:    onResult,
		pinnedFiles: make(map[string]bool),
		addedDirs:   make(map[string]bool),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Add watches a configuration file or a directory of them. For a file,
// the parent directory is watched and other files in it are ignored;
// editors that replace files on save keep being seen that way.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.IsDir() {
		w.addedDirs[abs] = true
		return w.watcher.Add(abs)
	}
	w.pinnedFiles[abs] = true
	return w.watcher.Add(filepath.Dir(abs))
}

// Start begins watching. Non-blocking; events are handled until Stop is
// called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("watching for config changes", zap.Strings("paths", w.watcher.WatchList()))
	go w.run(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit. Safe to
// call more than once, and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.log.Error("failed to close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			w.log.Error("watch error", zap.Error(err))
		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if !w.relevant(abs) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = abs

	switch {
	case event.Op&fsnotify.Create != 0:
		w.stats.FilesCreated++
	case event.Op&fsnotify.Write != 0:
		w.stats.FilesModified++
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.stats.FilesDeleted++
		delete(w.debounceMap, abs)
		return
	default:
		return // chmod and friends
	}

	w.debounceMap[abs] = time.Now()
}

// relevant reports whether a path is one of ours: a pinned file, or a
// YAML file in an explicitly watched directory.
func (w *Watcher) relevant(abs string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.pinnedFiles[abs] {
		return true
	}
	if !isYAML(abs) {
		return false
	}
	return w.addedDirs[filepath.Dir(abs)]
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.validate(path)
	}
}

// validate checks one settled file and reports the result.
func (w *Watcher) validate(path string) {
	rec, err := config.LoadRecord(path)
	if errors.Is(err, fs.ErrNotExist) {
		return // deleted between event and settle
	}

	res := Result{Path: path, Checked: time.Now()}
	if err != nil {
		res.Err = err
	} else if err := config.ValidateRecord(rec); err != nil {
		res.Err = err
	} else if x, err := search.Expand(rec); err != nil {
		res.Err = err
	} else {
		res.Combinations = x.Len()
	}

	w.mu.Lock()
	w.stats.Validations++
	if res.Err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if res.Err != nil {
		w.log.Warn("config invalid", zap.String("path", path), zap.Error(res.Err))
	} else {
		w.log.Info("config valid",
			zap.String("path", path),
			zap.Int("combinations", res.Combinations))
	}
	if w.onResult != nil {
		w.onResult(res)
	}
}

// CheckNow validates every watched file immediately: pinned files plus
// the YAML files of watched directories.
func (w *Watcher) CheckNow() {
	w.mu.RLock()
	var paths []string
	for f := range w.pinnedFiles {
		paths = append(paths, f)
	}
	for dir := range w.addedDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && isYAML(e.Name()) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	w.mu.RUnlock()

	for _, p := range paths {
		w.validate(p)
	}
}

// GetStats returns a snapshot of watcher activity.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
