package vision

import (
	"image"
	"math"

	"github.com/DennySORA/Remove-Background/pkg/matte"
)

// SaliencyDetector estimates how likely each pixel is to belong to the subject
type SaliencyDetector struct {
	config DetectionConfig
}

// DetectionConfig holds the weights of the saliency cues
type DetectionConfig struct {
	ContrastWeight float64 // local edge strength
	ColorWeight    float64 // distance from the global mean colour
	CenterWeight   float64 // prior favouring the middle of the frame
	Smoothing      float64 // Gaussian sigma applied to the final map
}

// New creates a new SaliencyDetector with default configuration
func New() *SaliencyDetector {
	return &SaliencyDetector{
		config: DetectionConfig{
			ContrastWeight: 0.3,
			ColorWeight:    0.5,
			CenterWeight:   0.2,
			Smoothing:      2.0,
		},
	}
}

// NewWithConfig creates a new SaliencyDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SaliencyDetector {
	return &SaliencyDetector{config: config}
}

// Config returns the detector configuration
func (d *SaliencyDetector) Config() DetectionConfig {
	return d.config
}

// SaliencyMap returns a per-pixel saliency plane normalized to [0,255]
func (d *SaliencyDetector) SaliencyMap(img *image.NRGBA) *matte.Mask {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := matte.NewMask(w, h)
	if w == 0 || h == 0 {
		return out
	}

	mean := meanColor(img)
	raw := make([]float64, w*h)
	peak := 0.0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]

			edge := d.edgeStrength(img, x, y, w, h)
			rarity := mean.Distance(r, g, b) / matte.MaxRGBDistance

			// Normalized distance from the centre, 0 in the middle and 1 in the corners
			dx := (float64(x) + 0.5 - float64(w)/2) / (float64(w) / 2)
			dy := (float64(y) + 0.5 - float64(h)/2) / (float64(h) / 2)
			center := 1 - math.Min(1, math.Sqrt(dx*dx+dy*dy)/math.Sqrt2)

			s := d.config.ContrastWeight*edge + d.config.ColorWeight*rarity + d.config.CenterWeight*center
			raw[y*w+x] = s
			if s > peak {
				peak = s
			}
		}
	}

	if peak > 0 {
		for i, s := range raw {
			out.Pix[i] = uint8(math.Round(255 * s / peak))
		}
	}
	return out.Feather(d.config.Smoothing)
}

// edgeStrength averages the colour difference to the 8 neighbours, normalized to [0,1]
func (d *SaliencyDetector) edgeStrength(img *image.NRGBA, x, y, w, h int) float64 {
	i := y*img.Stride + x*4
	r1, g1, b1 := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
	c := matte.RGB{R: float64(r1), G: float64(g1), B: float64(b1)}

	var total float64
	n := 0
	for oy := -1; oy <= 1; oy++ {
		for ox := -1; ox <= 1; ox++ {
			if ox == 0 && oy == 0 {
				continue
			}
			nx, ny := x+ox, y+oy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*img.Stride + nx*4
			total += c.Distance(img.Pix[j], img.Pix[j+1], img.Pix[j+2])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / (float64(n) * matte.MaxRGBDistance)
}

func meanColor(img *image.NRGBA) matte.RGB {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var sum matte.RGB
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			sum.R += float64(row[i])
			sum.G += float64(row[i+1])
			sum.B += float64(row[i+2])
		}
	}
	n := float64(w * h)
	return matte.RGB{R: sum.R / n, G: sum.G / n, B: sum.B / n}
}
