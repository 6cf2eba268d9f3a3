// Package runner executes one batch: it loads the chosen adapter, feeds every
// image through it with bounded concurrency and folds the outcomes into a
// BatchResult.
//
// Per-image failures (decode, processing, timeout, output) are recorded on the
// task and never stop the batch. Only an unknown method or an adapter that
// cannot load aborts a run, and it does so before any task exists.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/processing"
	"github.com/DennySORA/Remove-Background/pkg/report"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// DefaultTimeout bounds a single image
const DefaultTimeout = 2 * time.Minute

// ReasonExists marks tasks skipped because their output is already present
const ReasonExists = "Exists"

// AdapterSource resolves method identifiers; *registry.Registry implements it
type AdapterSource interface {
	Get(id types.MethodID) (backend.Adapter, error)
}

// Runner executes batches. It holds no per-batch state and may be reused.
type Runner struct {
	source       AdapterSource
	processor    *processing.Processor
	workers      int
	timeout      time.Duration
	progress     func(types.ProgressEvent)
	logger       *slog.Logger
	skipExisting bool
}

// Option configures a Runner
type Option func(*Runner)

// WithWorkers sets the maximum number of images processed at once
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithTimeout bounds each image; zero or negative disables the limit
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithProgress registers the callback invoked once per resolved task, in
// completion order, from a single goroutine
func WithProgress(fn func(types.ProgressEvent)) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProcessor sets the image codec
func WithProcessor(p *processing.Processor) Option {
	return func(r *Runner) {
		if p != nil {
			r.processor = p
		}
	}
}

// WithSkipExisting skips images whose output PNG already exists
func WithSkipExisting(skip bool) Option {
	return func(r *Runner) { r.skipExisting = skip }
}

// New creates a runner. Defaults: one worker, DefaultTimeout, slog.Default().
func New(source AdapterSource, opts ...Option) *Runner {
	r := &Runner{
		source:    source,
		processor: processing.NewProcessor(),
		workers:   1,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome struct {
	index  int
	status types.TaskStatus
	reason string
	detail string
}

// Run processes paths with the configuration cfg.
//
// Cancelling ctx stops dispatch; images already handed to a worker finish
// (still bounded by the per-image timeout) and the rest are reported as
// skipped with reason Cancelled. In that case the partial result is returned
// together with ctx.Err().
func (r *Runner) Run(ctx context.Context, cfg types.JobConfiguration, paths []string) (types.BatchResult, error) {
	adapter, err := r.source.Get(cfg.Method)
	if err != nil {
		return types.BatchResult{}, err
	}
	// timed-out calls keep running; the exclusive slot outlives them
	adapter = backend.Exclusive(adapter)
	if err := adapter.Load(ctx); err != nil {
		if !errors.Is(err, types.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
		}
		return types.BatchResult{}, err
	}

	batchID := ksuid.New().String()
	log := r.logger.With("batch", batchID, "method", cfg.Method)
	started := time.Now()

	tasks := make([]types.ImageTask, len(paths))
	for i, p := range paths {
		tasks[i] = types.ImageTask{
			SourcePath:      p,
			DestinationPath: utils.OutputPath(p, cfg.OutputFolder),
			Status:          types.StatusPending,
		}
	}

	workers := r.workers
	if !adapter.Reentrant() {
		workers = 1
	}
	workers = max(1, min(workers, len(tasks)))

	log.Info("batch started", "images", len(tasks), "workers", workers, "strength", cfg.Strength, "mode", cfg.Mode)

	jobs := make(chan int)
	results := make(chan outcome, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- r.process(ctx, adapter, cfg, i, tasks[i].SourcePath, tasks[i].DestinationPath)
			}
		}()
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		completed := 0
		for o := range results {
			t := &tasks[o.index]
			t.Status, t.Reason, t.Detail = o.status, o.reason, o.detail
			completed++

			if o.status == types.StatusFailed {
				log.Warn("image failed", "path", t.SourcePath, "reason", o.reason, "detail", o.detail)
			} else {
				log.Debug("image done", "path", t.SourcePath, "status", o.status)
			}
			if r.progress != nil {
				r.progress(types.ProgressEvent{
					BatchID:   batchID,
					Completed: completed,
					Total:     len(tasks),
					Path:      t.SourcePath,
					Status:    o.status,
					Reason:    o.reason,
				})
			}
		}
	}()

	dispatched := 0
dispatch:
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	<-collected

	for i := dispatched; i < len(tasks); i++ {
		tasks[i].Status = types.StatusSkipped
		tasks[i].Reason = types.ReasonCancelled
	}

	result := report.Aggregate(tasks, time.Since(started).Seconds())
	result.ID = batchID
	result.Method = cfg.Method
	result.OutputFolder = cfg.OutputFolder
	result.StartedAt = started

	log.Info("batch finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", time.Duration(result.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond))

	if dispatched < len(tasks) {
		log.Warn("batch cancelled", "undispatched", len(tasks)-dispatched)
		return result, ctx.Err()
	}
	return result, nil
}

// process handles one image: load, remove background, save
func (r *Runner) process(ctx context.Context, adapter backend.Adapter, cfg types.JobConfiguration, index int, src, dst string) outcome {
	if r.skipExisting && utils.FileExists(dst) {
		return outcome{index: index, status: types.StatusSkipped, reason: ReasonExists}
	}

	// In-flight work survives batch cancellation but not its own deadline
	taskCtx, cancel := r.taskContext(ctx)
	defer cancel()

	out, err := r.removeWithDeadline(taskCtx, adapter, src, cfg.Strength)
	if err == nil {
		err = r.processor.SavePNG(out, dst)
	}
	if err != nil {
		err = classify(taskCtx, err)
		return outcome{index: index, status: types.StatusFailed, reason: types.Reason(err), detail: err.Error()}
	}
	return outcome{index: index, status: types.StatusSuccess}
}

func (r *Runner) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if r.timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, r.timeout)
}

type removal struct {
	img *image.NRGBA
	err error
}

// removeWithDeadline loads src and removes its background under guard
func (r *Runner) removeWithDeadline(ctx context.Context, adapter backend.Adapter, src string, strength float64) (*image.NRGBA, error) {
	return guard(ctx, filepath.Base(src), func() (*image.NRGBA, error) {
		img, err := r.processor.LoadImage(src)
		if err != nil {
			return nil, err
		}
		return adapter.RemoveBackground(ctx, img, strength)
	})
}

// Remove runs adapter over a decoded image with the protections a batch
// task gets: a panic becomes ProcessingError and an exceeded timeout becomes
// Timeout. Unlike a batch task, cancelling ctx aborts the call.
func Remove(ctx context.Context, adapter backend.Adapter, img image.Image, strength float64, timeout time.Duration) (*image.NRGBA, error) {
	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out, err := guard(taskCtx, "image", func() (*image.NRGBA, error) {
		return adapter.RemoveBackground(taskCtx, img, strength)
	})
	if err != nil {
		return nil, classify(taskCtx, err)
	}
	return out, nil
}

// guard runs fn in its own goroutine so a stuck adapter cannot hold the
// caller past the deadline. The abandoned goroutine's result is dropped.
func guard(ctx context.Context, label string, fn func() (*image.NRGBA, error)) (*image.NRGBA, error) {
	done := make(chan removal, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- removal{err: fmt.Errorf("%w: adapter panic: %v", types.ErrProcessing, p)}
			}
		}()
		out, err := fn()
		done <- removal{img: out, err: err}
	}()

	select {
	case res := <-done:
		return res.img, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %s was cancelled", types.ErrProcessing, label)
		}
		return nil, fmt.Errorf("%w: %s exceeded its time limit", types.ErrTimeout, label)
	}
}

// classify maps any error onto the per-image taxonomy
func classify(taskCtx context.Context, err error) error {
	if types.IsPerImage(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", types.ErrProcessing, err)
}
