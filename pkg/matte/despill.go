package matte

import "image"

// FringeMask marks visible pixels lying within radius pixels of a pixel that
// is not fully opaque. Those are the pixels that carry backdrop spill.
func FringeMask(alpha *Mask, radius int) *Mask {
	notOpaque := NewMask(alpha.W, alpha.H)
	for i, v := range alpha.Pix {
		if v < 255 {
			notOpaque.Pix[i] = 255
		}
	}
	near := notOpaque.Dilate(radius)
	for i, v := range alpha.Pix {
		if v == 0 {
			near.Pix[i] = 0
		}
	}
	return near
}

// Despill removes excess green from the pixels selected by region, in place.
// The excess is g - (r+b)/2 and is reduced by factor (0..1).
// A nil region treats every visible pixel as selected.
func Despill(img *image.NRGBA, region *Mask, factor float64) {
	if factor <= 0 {
		return
	}
	if factor > 1 {
		factor = 1
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			if row[i+3] == 0 {
				continue
			}
			if region != nil && region.Pix[y*w+x] == 0 {
				continue
			}
			r, g, b := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			excess := g - (r+b)/2
			if excess <= 0 {
				continue
			}
			ng := g - excess*factor
			if ng < 0 {
				ng = 0
			}
			row[i+1] = uint8(ng + 0.5)
		}
	}
}
