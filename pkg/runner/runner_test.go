package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DennySORA/Remove-Background/internal/logging"
	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/registry"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// stubAdapter identifies images by width so tests can script per-image behaviour
type stubAdapter struct {
	id        types.MethodID
	loadErr   error
	reentrant bool
	delay     map[int]time.Duration
	fail      map[int]error
	block     map[int]chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
}

func newStub() *stubAdapter {
	return &stubAdapter{
		id:        "stub-v1",
		reentrant: true,
		delay:     map[int]time.Duration{},
		fail:      map[int]error{},
		block:     map[int]chan struct{}{},
	}
}

func (s *stubAdapter) Descriptor() types.MethodDescriptor {
	return types.MethodDescriptor{ID: s.id, DisplayName: "Stub", DefaultStrength: 0.5, MinStrength: 0.1, MaxStrength: 1}
}

func (s *stubAdapter) Load(ctx context.Context) error { return s.loadErr }

func (s *stubAdapter) Reentrant() bool { return s.reentrant }

func (s *stubAdapter) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	w := img.Bounds().Dx()
	if ch, ok := s.block[w]; ok {
		<-ch
	}
	if d, ok := s.delay[w]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.fail[w]; ok {
		return nil, err
	}

	out := image.NewNRGBA(img.Bounds())
	for y := 0; y < out.Bounds().Dy(); y++ {
		for x := 0; x < w; x++ {
			out.SetNRGBA(x, y, color.NRGBA{200, 100, 50, 128})
		}
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return logging.Discard()
}

// writePNG writes a small image of the given width into dir
func writePNG(t *testing.T, dir, name string, width int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 10), uint8(y * 20), 90, 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

// writeImages creates n images with widths 10, 11, ... named img00.png, img01.png, ...
func writeImages(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = writePNG(t, dir, fmt.Sprintf("img%02d.png", i), 10+i)
	}
	return paths
}

func jobFor(t *testing.T, src string, method types.MethodID) types.JobConfiguration {
	return types.JobConfiguration{
		SourceFolder: src,
		OutputFolder: filepath.Join(src, "output"),
		Method:       method,
		Strength:     0.5,
		Mode:         types.ModeGeneralPhoto,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (e *eventLog) add(ev types.ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) all() []types.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.ProgressEvent(nil), e.events...)
}

func TestRunCorruptFileScenario(t *testing.T) {
	src := t.TempDir()
	p1 := writePNG(t, src, "one.png", 40)
	p2 := filepath.Join(src, "two.jpg")
	require.NoError(t, os.WriteFile(p2, []byte("this is not a jpeg"), 0o644))
	p3 := writePNG(t, src, "three.png", 40)

	reg := registry.New(backend.NewGeneral())
	var events eventLog
	r := New(reg, WithProgress(events.add), WithLogger(quietLogger()))

	result, err := r.Run(context.Background(), jobFor(t, src, backend.GeneralID), []string{p1, p2, p3})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, p2, result.Failures[0].Path)
	assert.Equal(t, "DecodeError", result.Failures[0].Reason)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, backend.GeneralID, result.Method)
	assert.Len(t, events.all(), 3)

	for _, name := range []string{"one.png", "three.png"} {
		f, err := os.Open(filepath.Join(src, "output", name))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 40, img.Bounds().Dx())
	}
	assert.NoFileExists(t, filepath.Join(src, "output", "two.png"))
}

func TestRunEmptyInput(t *testing.T) {
	src := t.TempDir()
	var events eventLog
	r := New(registry.New(newStub()), WithProgress(events.add), WithLogger(quietLogger()))

	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Zero(t, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Failures)
	assert.Empty(t, events.all())
}

func TestRunBackendUnavailable(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 2)

	stub := newStub()
	stub.loadErr = errors.New("onnx runtime missing")
	var events eventLog
	r := New(registry.New(stub), WithProgress(events.add), WithLogger(quietLogger()))

	_, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.Empty(t, events.all())
	assert.Zero(t, stub.calls.Load())
	assert.NoDirExists(t, filepath.Join(src, "output"))
}

func TestRunUnknownMethod(t *testing.T) {
	r := New(registry.New(newStub()), WithLogger(quietLogger()))
	_, err := r.Run(context.Background(), jobFor(t, t.TempDir(), "nope-v0"), []string{"a.png"})
	assert.ErrorIs(t, err, types.ErrUnknownMethod)
}

func TestRunFailuresKeepInputOrder(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 8)

	stub := newStub()
	// earlier images take longer so completion order is reversed
	for i := 0; i < 8; i++ {
		stub.delay[10+i] = time.Duration(8-i) * 15 * time.Millisecond
	}
	stub.fail[10] = fmt.Errorf("%w: engine crashed", types.ErrProcessing)
	stub.fail[13] = errors.New("untyped failure")
	stub.fail[16] = fmt.Errorf("%w: engine crashed", types.ErrProcessing)

	var events eventLog
	r := New(registry.New(stub), WithWorkers(4), WithProgress(events.add), WithLogger(quietLogger()))

	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)

	assert.Equal(t, 8, result.Total)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Failures, 3)
	assert.Equal(t, paths[0], result.Failures[0].Path)
	assert.Equal(t, paths[3], result.Failures[1].Path)
	assert.Equal(t, paths[6], result.Failures[2].Path)
	for _, f := range result.Failures {
		assert.Equal(t, "ProcessingError", f.Reason)
	}

	evs := events.all()
	require.Len(t, evs, 8)
	for i, ev := range evs {
		assert.Equal(t, i+1, ev.Completed)
		assert.Equal(t, 8, ev.Total)
		assert.Equal(t, result.ID, ev.BatchID)
	}
	assert.LessOrEqual(t, stub.maxActive.Load(), int32(4))
	assert.Greater(t, stub.maxActive.Load(), int32(1))
}

func TestRunNonReentrantIsSequential(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 5)

	stub := newStub()
	stub.reentrant = false
	for i := 0; i < 5; i++ {
		stub.delay[10+i] = 10 * time.Millisecond
	}
	var events eventLog
	r := New(registry.New(stub), WithWorkers(8), WithProgress(events.add), WithLogger(quietLogger()))

	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, int32(1), stub.maxActive.Load())

	// sequential processing completes in input order
	for i, ev := range events.all() {
		assert.Equal(t, paths[i], ev.Path)
	}
}

func TestRunNonReentrantStaysExclusiveAfterTimeout(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 3)

	stub := newStub()
	stub.reentrant = false
	release := make(chan struct{})
	stub.block[10] = release
	// the first call outlives its deadline and ignores cancellation
	timer := time.AfterFunc(300*time.Millisecond, func() { close(release) })
	t.Cleanup(func() { timer.Stop() })

	r := New(registry.New(stub), WithWorkers(4), WithTimeout(200*time.Millisecond), WithLogger(quietLogger()))
	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.maxActive.Load())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, paths[0], result.Failures[0].Path)
	assert.Equal(t, "Timeout", result.Failures[0].Reason)
	assert.Equal(t, 2, result.Succeeded)
}

func TestRunTimeout(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 3)

	stub := newStub()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stub.block[11] = release

	r := New(registry.New(stub), WithTimeout(50*time.Millisecond), WithLogger(quietLogger()))
	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, paths[1], result.Failures[0].Path)
	assert.Equal(t, "Timeout", result.Failures[0].Reason)
	assert.NoFileExists(t, filepath.Join(src, "output", "img01.png"))
}

func TestRunAdapterDeadlineIsTimeout(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 1)

	stub := newStub()
	stub.delay[10] = time.Second

	r := New(registry.New(stub), WithTimeout(30*time.Millisecond), WithLogger(quietLogger()))
	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Timeout", result.Failures[0].Reason)
}

func TestRunCancellation(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 6)

	stub := newStub()
	for i := 0; i < 6; i++ {
		stub.delay[10+i] = 30 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var events eventLog
	r := New(registry.New(stub), WithLogger(quietLogger()), WithProgress(func(ev types.ProgressEvent) {
		events.add(ev)
		cancel()
	}))

	result, err := r.Run(ctx, jobFor(t, src, "stub-v1"), paths)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 6, result.Total)
	assert.Zero(t, result.Failed, "in-flight images finish despite cancellation")
	assert.GreaterOrEqual(t, result.Succeeded, 1)
	assert.GreaterOrEqual(t, result.Skipped, 2)
	assert.Equal(t, result.Total, result.Succeeded+result.Skipped)
	assert.Len(t, events.all(), result.Succeeded)
}

func TestRunAlreadyCancelled(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 3)
	stub := newStub()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(registry.New(stub), WithLogger(quietLogger())).Run(ctx, jobFor(t, src, "stub-v1"), paths)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, result.Skipped)
	assert.Zero(t, stub.calls.Load())
}

func TestRunDuplicatesAreProcessedTwice(t *testing.T) {
	src := t.TempDir()
	p := writePNG(t, src, "dup.png", 12)

	stub := newStub()
	result, err := New(registry.New(stub), WithLogger(quietLogger())).Run(context.Background(), jobFor(t, src, "stub-v1"), []string{p, p})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestRunSkipExisting(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 2)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "output", "img00.png"), []byte("done"), 0o644))

	stub := newStub()
	r := New(registry.New(stub), WithSkipExisting(true), WithLogger(quietLogger()))
	result, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestRunOutputCollision(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 2)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "output", "img01.png"), 0o755))

	result, err := New(registry.New(newStub()), WithLogger(quietLogger())).Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, paths[1], result.Failures[0].Path)
	assert.Equal(t, "OutputError", result.Failures[0].Reason)
}

func TestRunIsRepeatable(t *testing.T) {
	src := t.TempDir()
	paths := writeImages(t, src, 4)
	stub := newStub()
	stub.fail[12] = fmt.Errorf("%w: bad pixels", types.ErrProcessing)

	r := New(registry.New(stub), WithWorkers(2), WithLogger(quietLogger()))
	first, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), jobFor(t, src, "stub-v1"), paths)
	require.NoError(t, err)

	assert.Equal(t, first.Failures, second.Failures)
	assert.Equal(t, first.Succeeded, second.Succeeded)
	assert.NotEqual(t, first.ID, second.ID)
}

type panicAdapter struct{ *stubAdapter }

func (p panicAdapter) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	panic("boom")
}

func TestRemove(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 12, 4))

	t.Run("success", func(t *testing.T) {
		out, err := Remove(context.Background(), newStub(), img, 0.5, time.Second)
		require.NoError(t, err)
		assert.Equal(t, img.Bounds(), out.Bounds())
	})

	t.Run("timeout", func(t *testing.T) {
		stub := newStub()
		stub.delay[12] = time.Second
		_, err := Remove(context.Background(), stub, img, 0.5, 20*time.Millisecond)
		assert.ErrorIs(t, err, types.ErrTimeout)
	})

	t.Run("panic", func(t *testing.T) {
		_, err := Remove(context.Background(), panicAdapter{newStub()}, img, 0.5, time.Second)
		assert.ErrorIs(t, err, types.ErrProcessing)
	})

	t.Run("untyped error", func(t *testing.T) {
		stub := newStub()
		stub.fail[12] = errors.New("model exploded")
		_, err := Remove(context.Background(), stub, img, 0.5, 0)
		assert.ErrorIs(t, err, types.ErrProcessing)
	})

	t.Run("decode error passes through", func(t *testing.T) {
		stub := newStub()
		stub.fail[12] = fmt.Errorf("%w: truncated", types.ErrDecode)
		_, err := Remove(context.Background(), stub, img, 0.5, 0)
		assert.ErrorIs(t, err, types.ErrDecode)
	})
}
