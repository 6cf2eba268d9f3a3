package backend

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/DennySORA/Remove-Background/pkg/client"
	"github.com/DennySORA/Remove-Background/pkg/detection"
	"github.com/DennySORA/Remove-Background/pkg/matte"
	"github.com/DennySORA/Remove-Background/pkg/processing"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// DefaultVisionModel is the Ollama model used when none is configured
const DefaultVisionModel = "qwen2.5vl:7b"

// DefaultSendSize is the longest side of the JPEG sent to the model
const DefaultSendSize = 768

// Vision restricts the general matte to the subject box located by a vision model
type Vision struct {
	client    client.VisionClient
	locator   *detection.Locator
	processor *processing.Processor
	general   *General
	model     string
	sendSize  int
}

// NewVision creates the vision-guided engine
func NewVision(c client.VisionClient, model string, sendSize int) *Vision {
	if model == "" {
		model = DefaultVisionModel
	}
	if sendSize <= 0 {
		sendSize = DefaultSendSize
	}
	return &Vision{
		client:    c,
		locator:   detection.NewLocator(c),
		processor: processing.NewProcessor(),
		general:   NewGeneral(),
		model:     model,
		sendSize:  sendSize,
	}
}

// Descriptor implements Adapter
func (v *Vision) Descriptor() types.MethodDescriptor {
	return types.MethodDescriptor{
		ID:              VisionID,
		DisplayName:     "Vision Guided",
		Description:     fmt.Sprintf("General matte constrained to the subject box found by %s", v.model),
		DefaultStrength: 0.5,
		MinStrength:     MinStrength,
		MaxStrength:     MaxStrength,
		SpeedClass:      types.SpeedHighQuality,
	}
}

// Load implements Adapter by checking that the model server answers
func (v *Vision) Load(ctx context.Context) error {
	if v.client == nil {
		return fmt.Errorf("%w: no vision client configured", types.ErrBackendUnavailable)
	}
	if err := v.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: vision server unreachable: %v", types.ErrBackendUnavailable, err)
	}
	return nil
}

// Reentrant implements Adapter; local model servers handle one request at a time
func (v *Vision) Reentrant() bool { return false }

// RemoveBackground implements Adapter.
//
// The general matte is computed with the same strength, then everything
// outside the located box is cleared. The box is padded by 0.08(1-s) of the
// image size on each side, so stronger settings hug the subject tighter.
func (v *Vision) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	src, err := prepare(img)
	if err != nil {
		return nil, err
	}

	b64, err := v.processor.PrepareImageForModel(src, "jpg", v.sendSize, 85)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare image for model: %v", types.ErrProcessing, err)
	}

	subject, err := v.locator.LocateSubject(ctx, v.model, b64)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: subject detection failed: %v", types.ErrProcessing, err)
	}

	m, err := v.general.Matte(ctx, src, strength)
	if err != nil {
		return nil, err
	}

	if subject.Primary.Label != "none" {
		m.ClearOutside(BoxRect(subject.Primary.Box, 0.08*(1-strength), src.Bounds().Dx(), src.Bounds().Dy()))
	}
	return matte.Apply(src, m), nil
}

// BoxRect converts a normalized box to pixels, growing it by pad (a fraction
// of the image size) on every side and clipping to the image
func BoxRect(box types.Box, pad float64, w, h int) image.Rectangle {
	x0 := int(math.Floor((box.X - pad) * float64(w)))
	y0 := int(math.Floor((box.Y - pad) * float64(h)))
	x1 := int(math.Ceil((box.X + box.W + pad) * float64(w)))
	y1 := int(math.Ceil((box.Y + box.H + pad) * float64(h)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, w, h))
}
