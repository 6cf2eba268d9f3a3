// Package watch processes images as they land in a folder.
//
// File events are collected until the folder has been quiet for the debounce
// interval, then the new images are run as one batch. An optional cron
// schedule re-sweeps the whole folder; the runner's skip-existing mode keeps
// those sweeps cheap.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// DefaultDebounce is the quiet period before new files are processed
const DefaultDebounce = 2 * time.Second

// Batcher runs one batch; *runner.Runner implements it
type Batcher interface {
	Run(ctx context.Context, cfg types.JobConfiguration, paths []string) (types.BatchResult, error)
}

// Recorder stores finished batches; *store.Store implements it
type Recorder interface {
	SaveBatch(ctx context.Context, cfg types.JobConfiguration, r types.BatchResult) error
}

// Config controls a Watcher
type Config struct {
	Job          types.JobConfiguration
	Debounce     time.Duration
	Every        string // cron schedule for full re-sweeps, empty to disable
	InitialSweep bool
}

// Watcher turns file events into batches
type Watcher struct {
	cfg      Config
	batcher  Batcher
	recorder Recorder
	logger   *slog.Logger
	onBatch  func(types.BatchResult)
}

// New validates cfg and creates a watcher. recorder may be nil.
func New(cfg Config, batcher Batcher, recorder Recorder, logger *slog.Logger) (*Watcher, error) {
	if !utils.DirExists(cfg.Job.SourceFolder) {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrInvalidPath, cfg.Job.SourceFolder)
	}
	if cfg.Every != "" {
		if _, err := cron.ParseStandard(cfg.Every); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Every, err)
		}
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{cfg: cfg, batcher: batcher, recorder: recorder, logger: logger}, nil
}

// OnBatch registers a callback invoked after each batch
func (w *Watcher) OnBatch(fn func(types.BatchResult)) { w.onBatch = fn }

// Run watches until ctx is cancelled. Batches run one at a time on the
// calling goroutine; events arriving meanwhile queue up for the next one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Job.SourceFolder); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Job.SourceFolder, err)
	}

	sweeps := make(chan struct{}, 1)
	requestSweep := func() {
		select {
		case sweeps <- struct{}{}:
		default:
		}
	}
	if w.cfg.Every != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.cfg.Every, requestSweep); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", w.cfg.Every, err)
		}
		c.Start()
		defer c.Stop()
	}
	if w.cfg.InitialSweep {
		requestSweep()
	}

	w.logger.Info("watching folder",
		"folder", w.cfg.Job.SourceFolder,
		"debounce", w.cfg.Debounce,
		"every", w.cfg.Every)

	pending := map[string]struct{}{}
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !relevant(ev) {
				continue
			}
			pending[ev.Name] = struct{}{}
			if w.cfg.Debounce == 0 {
				w.flush(ctx, pending)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.flush(ctx, pending)

		case <-sweeps:
			paths, err := utils.ListImageFiles(w.cfg.Job.SourceFolder)
			if err != nil {
				w.logger.Error("sweep failed", "error", err)
				continue
			}
			w.logger.Debug("sweeping folder", "images", len(paths))
			w.batch(ctx, paths)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// flush runs the pending files that still exist as regular files
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	var paths []string
	for p := range pending {
		delete(pending, p)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	w.batch(ctx, paths)
}

func (w *Watcher) batch(ctx context.Context, paths []string) {
	if len(paths) == 0 || ctx.Err() != nil {
		return
	}

	result, err := w.batcher.Run(ctx, w.cfg.Job, paths)
	if err != nil && result.ID == "" {
		w.logger.Error("batch failed", "error", err)
		return
	}
	if w.recorder != nil {
		if err := w.recorder.SaveBatch(context.WithoutCancel(ctx), w.cfg.Job, result); err != nil {
			w.logger.Error("failed to record batch", "batch", result.ID, "error", err)
		}
	}
	if w.onBatch != nil {
		w.onBatch(result)
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return utils.IsImageFile(filepath.Base(ev.Name))
}
