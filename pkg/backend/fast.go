package backend

import (
	"context"
	"image"

	"github.com/DennySORA/Remove-Background/pkg/matte"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// FastKey keys out every pixel close to the mean border colour.
// It suits studio shots on a plain backdrop.
type FastKey struct{}

// NewFastKey creates the fast colour-key engine
func NewFastKey() *FastKey {
	return &FastKey{}
}

// Descriptor implements Adapter
func (f *FastKey) Descriptor() types.MethodDescriptor {
	return types.MethodDescriptor{
		ID:              FastID,
		DisplayName:     "Fast Key",
		Description:     "Single-pass colour key against the border colour; plain backdrops only",
		DefaultStrength: 0.5,
		MinStrength:     MinStrength,
		MaxStrength:     MaxStrength,
		SpeedClass:      types.SpeedFast,
	}
}

// Load implements Adapter
func (f *FastKey) Load(ctx context.Context) error { return nil }

// Reentrant implements Adapter
func (f *FastKey) Reentrant() bool { return true }

// RemoveBackground implements Adapter.
//
// Strength s maps to bgCut = 20+60s with a fixed 24-unit ramp to full opacity.
func (f *FastKey) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	src, err := prepare(img)
	if err != nil {
		return nil, err
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	var bg matte.RGB
	sides := matte.BorderColors(src, max(1, min(w, h)/40))
	for _, c := range sides {
		bg.R += c.R / float64(len(sides))
		bg.G += c.G / float64(len(sides))
		bg.B += c.B / float64(len(sides))
	}

	bgCut := 20 + 60*strength
	fgCut := bgCut + 24

	m := matte.NewMask(w, h)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			m.Pix[y*w+x] = matte.Ramp(bg.Distance(row[i], row[i+1], row[i+2]), bgCut, fgCut)
		}
	}
	return matte.Apply(src, m), nil
}
