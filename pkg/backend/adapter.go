// Package backend implements the background-removal engines behind one
// uniform Adapter contract.
//
// Every adapter maps the normalized strength (0 = keep as much as possible,
// 1 = remove aggressively) linearly onto its own thresholds. The mapping of
// each engine is documented on its RemoveBackground method.
package backend

import (
	"context"
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/DennySORA/Remove-Background/pkg/matte"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Adapter wraps one removal engine
type Adapter interface {
	// Descriptor returns the catalog entry of the engine
	Descriptor() types.MethodDescriptor
	// Load prepares the engine. Failures wrap types.ErrBackendUnavailable.
	Load(ctx context.Context) error
	// RemoveBackground returns a copy of img, same size, with a computed alpha channel
	RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error)
	// Reentrant reports whether RemoveBackground may run concurrently
	Reentrant() bool
}

// Built-in method identifiers
const (
	GeneralID     types.MethodID = "general-v1"
	FastID        types.MethodID = "fast-v1"
	GreenScreenID types.MethodID = "greenscreen-v1"
	VisionID      types.MethodID = "vision-v1"
)

// Strength bounds shared by the built-in engines
const (
	MinStrength = 0.1
	MaxStrength = 1.0
)

// prepare converts the input into a private NRGBA copy and rejects empty images
func prepare(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", types.ErrProcessing)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", types.ErrProcessing, b.Dx(), b.Dy())
	}
	return matte.ToNRGBA(img), nil
}

// resizeWithinMax scales img down so its longest side is at most maxSize
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return matte.ToNRGBA(resized)
}

// Exclusive returns a unchanged when it is reentrant. Otherwise it returns a
// wrapper that admits one RemoveBackground call at a time. The slot is held
// until the wrapped call returns, even after the caller stopped waiting for it.
func Exclusive(a Adapter) Adapter {
	if a.Reentrant() {
		return a
	}
	if _, ok := a.(*exclusive); ok {
		return a
	}
	return &exclusive{Adapter: a, slot: make(chan struct{}, 1)}
}

type exclusive struct {
	Adapter
	slot chan struct{}
}

func (e *exclusive) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.slot }()
	return e.Adapter.RemoveBackground(ctx, img, strength)
}
