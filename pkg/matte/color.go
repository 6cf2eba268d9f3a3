package matte

import (
	"image"
	"math"
)

// MaxRGBDistance is the Euclidean distance between black and white
var MaxRGBDistance = math.Sqrt(3 * 255 * 255)

// RGB is an 8-bit colour triple in float form for averaging
type RGB struct {
	R, G, B float64
}

// Distance returns the Euclidean RGB distance to (r, g, b)
func (c RGB) Distance(r, g, b uint8) float64 {
	dr := c.R - float64(r)
	dg := c.G - float64(g)
	db := c.B - float64(b)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// HSV converts an 8-bit RGB triple to hue in [0,180) and saturation/value in
// [0,255], the scale used by common chroma-key tooling.
func HSV(r, g, b uint8) (h, s, v int) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	mx := math.Max(rf, math.Max(gf, bf))
	mn := math.Min(rf, math.Min(gf, bf))
	delta := mx - mn

	v = int(mx)
	if mx == 0 {
		return 0, 0, v
	}
	s = int(math.Round(255 * delta / mx))
	if delta == 0 {
		return 0, s, v
	}

	var hue float64
	switch mx {
	case rf:
		hue = 60 * (gf - bf) / delta
	case gf:
		hue = 120 + 60*(bf-rf)/delta
	default:
		hue = 240 + 60*(rf-gf)/delta
	}
	if hue < 0 {
		hue += 360
	}
	h = int(math.Round(hue / 2))
	if h >= 180 {
		h -= 180
	}
	return h, s, v
}

// BorderColors returns the mean colour of the top, bottom, left and right
// bands of img, each band thick pixels wide.
func BorderColors(img *image.NRGBA, band int) []RGB {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if band < 1 {
		band = 1
	}
	band = min(band, max(1, min(w, h)/2))

	mean := func(x0, y0, x1, y1 int) RGB {
		var sum RGB
		n := 0
		for y := y0; y < y1; y++ {
			row := img.Pix[y*img.Stride:]
			for x := x0; x < x1; x++ {
				i := x * 4
				sum.R += float64(row[i])
				sum.G += float64(row[i+1])
				sum.B += float64(row[i+2])
				n++
			}
		}
		if n == 0 {
			return sum
		}
		return RGB{R: sum.R / float64(n), G: sum.G / float64(n), B: sum.B / float64(n)}
	}

	return []RGB{
		mean(0, 0, w, band),
		mean(0, h-band, w, h),
		mean(0, 0, band, h),
		mean(w-band, 0, w, h),
	}
}

// NearestDistance returns the smallest distance from (r, g, b) to any reference colour
func NearestDistance(refs []RGB, r, g, b uint8) float64 {
	best := MaxRGBDistance
	for _, ref := range refs {
		if d := ref.Distance(r, g, b); d < best {
			best = d
		}
	}
	return best
}

// Ramp maps v linearly onto [0,255]: v <= lo gives 0, v >= hi gives 255
func Ramp(v, lo, hi float64) uint8 {
	if v <= lo {
		return 0
	}
	if v >= hi {
		return 255
	}
	return uint8(math.Round(255 * (v - lo) / (hi - lo)))
}
