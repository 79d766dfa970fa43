// Package watch implements the rebuild-and-relaunch daemon: a filesystem
// watcher over the engine sources, a debouncer that coalesces save bursts,
// and a supervisor that replaces the running engine through the regular
// launch pipeline. One engine at a time; a failed cycle leaves the daemon
// waiting for the next trigger.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
)

// SourceWatcher monitors the engine source tree and invokes the trigger
// callback for relevant changes. Filtering happens here so the debouncer
// only ever sees real source edits.
type SourceWatcher struct {
	watcher    *fsnotify.Watcher
	roots      []string
	extensions map[string]bool
	trigger    func()
	logger     *slog.Logger
	stopChan   chan struct{}
}

// NewSourceWatcher resolves the configured watch paths against the target
// directory and registers them (directories recursively).
func NewSourceWatcher(cfg *config.Config, trigger func(), logger *slog.Logger) (*SourceWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	sw := &SourceWatcher{
		watcher:    w,
		extensions: make(map[string]bool, len(cfg.Watch.Extensions)),
		trigger:    trigger,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
	for _, ext := range cfg.Watch.Extensions {
		sw.extensions[ext] = true
	}

	for _, p := range cfg.Watch.Paths {
		root := p
		if !filepath.IsAbs(root) {
			root = filepath.Join(cfg.Target.Dir, root)
		}
		info, statErr := os.Stat(root)
		if statErr != nil {
			logger.Warn("Watch path missing, skipping", "path", root, "error", statErr)
			continue
		}
		if info.IsDir() {
			if addErr := addDirsRecursive(w, root); addErr != nil {
				w.Close()
				return nil, addErr
			}
		} else if addErr := w.Add(root); addErr != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", root, addErr)
		}
		sw.roots = append(sw.roots, root)
	}
	if len(sw.roots) == 0 {
		w.Close()
		return nil, fmt.Errorf("no watchable paths under %s", cfg.Target.Dir)
	}
	return sw, nil
}

// Start begins delivering triggers until Stop or context cancellation.
func (sw *SourceWatcher) Start(ctx context.Context) {
	sw.logger.Info("Watching engine sources", "paths", sw.roots)
	go sw.watchLoop(ctx)
}

// Stop shuts the watcher down.
func (sw *SourceWatcher) Stop() {
	close(sw.stopChan)
	if err := sw.watcher.Close(); err != nil {
		sw.logger.Error("Error closing file watcher", "error", err)
	}
}

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("Watcher error", "error", err)
		}
	}
}

func (sw *SourceWatcher) handleEvent(event fsnotify.Event) {
	if shouldIgnorePath(event.Name) {
		return
	}
	// New directories get registered so fresh modules are covered.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(sw.watcher, event.Name)
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if !sw.extensions[filepath.Ext(event.Name)] {
		return
	}
	sw.logger.Debug("Source change detected", "path", event.Name, "op", event.Op.String())
	sw.trigger()
}

// addDirsRecursive registers root and every directory below it, skipping the
// toolchain's build output.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == "target" || (strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		if addErr := w.Add(path); addErr != nil {
			slog.Warn("Watch add failed", "dir", path, "error", addErr)
		}
		return nil
	})
}

// shouldIgnorePath returns true for filesystem events that should not
// trigger relaunches.
func shouldIgnorePath(path string) bool {
	if strings.Contains(path, string(filepath.Separator)+"target"+string(filepath.Separator)) {
		return true
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return false
}
