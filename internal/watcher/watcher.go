package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mechvault/mechvault/internal/classify"
	"github.com/mechvault/mechvault/internal/registry"
)

// Config contains configuration for the ingestion watcher
type Config struct {
	WatchDir  string        // Drop folder to watch for arriving files
	DataDir   string        // Canonical storage root files are moved into
	Debounce  time.Duration // Wait after a creation event before handling
	Workers   int           // Number of concurrent ingestion workers
	QueueSize int           // Bound of the event-to-worker channel
}

// Watcher reacts to files arriving in the drop folder and drives the
// classify -> ensure item -> move -> register -> extract pipeline. Every
// per-file failure is contained; the watch loop runs until its context ends.
type Watcher struct {
	cfg      Config
	registry *registry.Service
	runner   *ExtractRunner
	logger   *zap.Logger
}

// New creates an ingestion watcher.
func New(cfg Config, reg *registry.Service, runner *ExtractRunner, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Watcher{cfg: cfg, registry: reg, runner: runner, logger: logger}
}

// Run watches the drop folder until ctx is cancelled. Creation events are
// pushed into a bounded channel drained by a pool of workers, so detection
// keeps up while files are being processed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.WatchDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(w.cfg.DataDir, 0o755); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.cfg.WatchDir); err != nil {
		return err
	}
	w.logger.Info("watching drop folder",
		zap.String("dir", w.cfg.WatchDir),
		zap.Int("workers", w.cfg.Workers))

	paths := make(chan string, w.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case path, ok := <-paths:
					if !ok {
						return nil
					}
					w.handleFile(gctx, path)
				}
			}
		})
	}

	g.Go(func() error {
		defer close(paths)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case event, ok := <-fw.Events:
				if !ok {
					return nil
				}
				if !event.Has(fsnotify.Create) {
					continue
				}
				select {
				case paths <- event.Name:
				case <-gctx.Done():
					return gctx.Err()
				}
			case watchErr, ok := <-fw.Errors:
				if !ok {
					return nil
				}
				// Watch errors never terminate the loop
				w.logger.Error("filesystem watch error", zap.Error(watchErr))
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleFile runs the full ingestion pipeline for one detected path. All
// failures are logged and abandoned here; nothing propagates to the loop.
func (w *Watcher) handleFile(ctx context.Context, path string) {
	// Let the writer finish before touching the file
	if w.cfg.Debounce > 0 {
		timer := time.NewTimer(w.cfg.Debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("file vanished before handling", zap.String("path", path))
		return
	}
	if info.IsDir() {
		return
	}

	name := filepath.Base(path)
	result := classify.Classify(name)

	switch result.Kind {
	case classify.KindSkip:
		w.logger.Debug("ignoring file", zap.String("path", path))
		return
	case classify.KindCleanup:
		// Single-part neutral exports are deleted as housekeeping
		if err := os.Remove(path); err != nil {
			w.logger.Warn("failed to remove single-part neutral export",
				zap.String("path", path), zap.Error(err))
			return
		}
		w.logger.Info("removed single-part neutral export", zap.String("path", path))
		return
	}

	meta, err := w.registry.EnsureItem(ctx, result.ItemNumber)
	if err != nil {
		w.logger.Error("failed to ensure item",
			zap.String("item", result.ItemNumber),
			zap.String("path", path),
			zap.Error(err))
		return
	}

	destDir := filepath.Join(w.cfg.DataDir, result.DestFolder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		w.logger.Error("failed to create destination folder",
			zap.String("dir", destDir), zap.Error(err))
		return
	}

	destPath := filepath.Join(destDir, name)
	if err := os.Rename(path, destPath); err != nil {
		// Fatal for this file: no record is created for a file that
		// failed to relocate
		w.logger.Error("failed to move file, abandoning",
			zap.String("from", path),
			zap.String("to", destPath),
			zap.Error(err))
		return
	}

	// Re-derive the item from the moved filename; suffixed variants such as
	// <item>_dxf.dxf collapse to <item>
	itemNumber := classify.ItemNumber(name)
	if itemNumber != result.ItemNumber {
		meta, err = w.registry.EnsureItem(ctx, itemNumber)
		if err != nil {
			w.logger.Error("failed to ensure re-derived item",
				zap.String("item", itemNumber), zap.Error(err))
			return
		}
	}

	if err := w.registry.RegisterFile(ctx, itemNumber, destPath, result.FileType, meta.Revision, meta.Iteration); err != nil {
		w.logger.Error("failed to register file",
			zap.String("item", itemNumber),
			zap.String("path", destPath),
			zap.Error(err))
		return
	}

	if result.FileType == classify.TypeBOM {
		if _, err := os.Stat(destPath); err != nil {
			w.logger.Error("hierarchy export missing at canonical path",
				zap.String("item", itemNumber),
				zap.String("path", destPath),
				zap.Error(err))
			return
		}
		if err := w.runner.Submit(ctx, itemNumber, destPath); err != nil {
			w.logger.Error("failed to schedule BOM extraction",
				zap.String("item", itemNumber),
				zap.Error(err))
		}
	}
}
