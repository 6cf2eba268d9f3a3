package backend

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/DennySORA/Remove-Background/pkg/matte"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Variant selects how the chroma key is combined with the general matte
type Variant string

const (
	// VariantHybrid intersects the key with the general matte, then removes spill
	VariantHybrid Variant = "hybrid"
	// VariantChromaOnly uses the key alone, then removes spill
	VariantChromaOnly Variant = "chroma-only"
	// VariantAIEnhanced intersects the key with the general matte and keeps original colours
	VariantAIEnhanced Variant = "ai-enhanced"
)

// Variants lists the supported variants in display order
func Variants() []Variant {
	return []Variant{VariantHybrid, VariantChromaOnly, VariantAIEnhanced}
}

// ParseVariant validates a variant name; empty selects hybrid
func ParseVariant(s string) (Variant, error) {
	if s == "" {
		return VariantHybrid, nil
	}
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown green screen variant %q", s)
}

// KeyConfig is the HSV window treated as backdrop (hue on the 0..180 scale)
type KeyConfig struct {
	HueMin        int
	HueMax        int
	SaturationMin int
	ValueMin      int
}

// DefaultKeyConfig matches a typical studio green screen
func DefaultKeyConfig() KeyConfig {
	return KeyConfig{HueMin: 35, HueMax: 85, SaturationMin: 40, ValueMin: 40}
}

// GreenScreen is the chroma-key engine with spill suppression
type GreenScreen struct {
	variant Variant
	key     KeyConfig
	general *General
}

// NewGreenScreen creates the engine with the default key and the hybrid variant
func NewGreenScreen() *GreenScreen {
	return NewGreenScreenWithConfig(VariantHybrid, DefaultKeyConfig())
}

// NewGreenScreenWithConfig creates the engine with a custom variant and key window
func NewGreenScreenWithConfig(variant Variant, key KeyConfig) *GreenScreen {
	if variant == "" {
		variant = VariantHybrid
	}
	return &GreenScreen{variant: variant, key: key, general: NewGeneral()}
}

// Descriptor implements Adapter
func (g *GreenScreen) Descriptor() types.MethodDescriptor {
	return types.MethodDescriptor{
		ID:                  GreenScreenID,
		DisplayName:         "Green Screen",
		Description:         fmt.Sprintf("HSV chroma key with edge spill suppression (%s)", g.variant),
		DefaultStrength:     0.7,
		MinStrength:         MinStrength,
		MaxStrength:         MaxStrength,
		SpeedClass:          types.SpeedBalanced,
		SupportsGreenScreen: true,
	}
}

// Variant returns the configured variant
func (g *GreenScreen) Variant() Variant { return g.variant }

// Load implements Adapter; it rejects an unknown variant and an empty key window
func (g *GreenScreen) Load(ctx context.Context) error {
	if _, err := ParseVariant(string(g.variant)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	if g.key.HueMin > g.key.HueMax || g.key.HueMin < 0 || g.key.HueMax > 180 {
		return fmt.Errorf("%w: invalid hue window %d..%d", types.ErrBackendUnavailable, g.key.HueMin, g.key.HueMax)
	}
	return nil
}

// Reentrant implements Adapter
func (g *GreenScreen) Reentrant() bool { return true }

// RemoveBackground implements Adapter.
//
// The key mask is closed (5x5) and opened (3x3); the foreground is then eroded
// 1+round(2s) times and feathered. Spill suppression runs on visible pixels
// within 1+round(3s) px of a non-opaque pixel and removes the fraction s of
// the green excess.
func (g *GreenScreen) RemoveBackground(ctx context.Context, img image.Image, strength float64) (*image.NRGBA, error) {
	src, err := prepare(img)
	if err != nil {
		return nil, err
	}

	fg, err := g.KeyMatte(ctx, src, strength)
	if err != nil {
		return nil, err
	}

	if g.variant == VariantHybrid || g.variant == VariantAIEnhanced {
		general, err := g.general.Matte(ctx, src, strength)
		if err != nil {
			return nil, err
		}
		fg = fg.MinMerge(general)
	}

	out := matte.Apply(src, fg)
	if g.variant != VariantAIEnhanced {
		radius := 1 + int(math.Round(3*strength))
		matte.Despill(out, matte.FringeMask(matte.AlphaOf(out), radius), strength)
	}
	return out, nil
}

// KeyMatte returns the foreground matte produced by the chroma key alone
func (g *GreenScreen) KeyMatte(ctx context.Context, src *image.NRGBA, strength float64) (*matte.Mask, error) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	backdrop := matte.NewMask(w, h)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			hue, sat, val := matte.HSV(row[i], row[i+1], row[i+2])
			if hue >= g.key.HueMin && hue <= g.key.HueMax && sat >= g.key.SaturationMin && val >= g.key.ValueMin {
				backdrop.Pix[y*w+x] = 255
			}
		}
	}

	backdrop = backdrop.Close(2).Open(1)
	erosions := 1 + int(math.Round(2*strength))
	fg := backdrop.Invert().Repeat(erosions, func(m *matte.Mask) *matte.Mask { return m.Erode(1) })
	return fg.Feather(1.4).Snap(4, 251), nil
}
