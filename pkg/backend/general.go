package backend

import (
	"context"
	"image"

	"github.com/DennySORA/Remove-Background/pkg/matte"
	"github.com/DennySORA/Remove-Background/pkg/types"
	"github.com/DennySORA/Remove-Background/pkg/vision"
)

// General separates the subject from a background estimated at the image
// border, weighting colour distance by saliency.
type General struct {
	detector *vision.SaliencyDetector
	workSize int
}

// NewGeneral creates the general-photo engine
func NewGeneral() *General {
	return &General{
		detector: vision.New(),
		workSize: 512,
	}
}

// NewGeneralWithDetector creates the engine with a custom saliency detector and
// working resolution (longest side, in pixels)
func NewGeneralWithDetector(detector *vision.SaliencyDetector, workSize int) *General {
	return &General{detector: detector, workSize: workSize}
}

// Descriptor implements Adapter
func (g *General) Descriptor() types.MethodDescriptor {
	return types.MethodDescriptor{
		ID:              GeneralID,
		DisplayName:     "General Photo",
		Description:     "Saliency-weighted background model for everyday photos and product shots",
		DefaultStrength: 0.5,
		MinStrength:     MinStrength,
		MaxStrength:     MaxStrength,
		SpeedClass:      types.SpeedHighQuality,
	}
}

// Load implements Adapter; the engine is pure Go and has nothing to load
func (g *General) Load(ctx context.Context) error { return nil }

// Reentrant implements Adapter
func (g *General) Reentrant() bool { return true }

// RemoveBackground implements Adapter.
//
// Strength s maps to the colour-distance cut-offs bgCut = 12+48s and
// fgCut = bgCut + 48(1-0.5s); at s >= 0.5 the matte is additionally opened
// with a 3x3 element, and the edge feather grows as 0.6+0.8s.
func (g *General) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	src, err := prepare(img)
	if err != nil {
		return nil, err
	}
	m, err := g.Matte(ctx, src, strength)
	if err != nil {
		return nil, err
	}
	return matte.Apply(src, m), nil
}

// Matte computes the full-resolution foreground matte of src
func (g *General) Matte(ctx context.Context, src *image.NRGBA, strength float64) (*matte.Mask, error) {
	fullW, fullH := src.Bounds().Dx(), src.Bounds().Dy()
	work := resizeWithinMax(src, g.workSize)
	w, h := work.Bounds().Dx(), work.Bounds().Dy()

	refs := matte.BorderColors(work, max(1, min(w, h)/20))
	saliency := g.detector.SaliencyMap(work)

	bgCut := 12 + 48*strength
	fgCut := bgCut + 48*(1-0.5*strength)

	m := matte.NewMask(w, h)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := work.Pix[y*work.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			d := matte.NearestDistance(refs, row[i], row[i+1], row[i+2])
			weight := 0.75 + 0.5*float64(saliency.Pix[y*w+x])/255
			m.Pix[y*w+x] = matte.Ramp(d*weight, bgCut, fgCut)
		}
	}

	if strength >= 0.5 {
		m = m.Open(1)
	}
	m = m.Feather(0.6 + 0.8*strength).Snap(8, 247)

	if w != fullW || h != fullH {
		m = m.Resize(fullW, fullH).Snap(8, 247)
	}
	return m, nil
}
