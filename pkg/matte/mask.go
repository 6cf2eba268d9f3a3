// Package matte holds the alpha-plane primitives shared by the removal
// backends: conversion to NRGBA, morphology, feathering and compositing.
package matte

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Mask is a single-channel 8-bit plane, 0 = background, 255 = foreground
type Mask struct {
	W, H int
	Pix  []uint8
}

// NewMask creates an all-background mask
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At returns the value at (x, y); out-of-range reads return 0
func (m *Mask) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return 0
	}
	return m.Pix[y*m.W+x]
}

// Set stores v at (x, y)
func (m *Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.W+x] = v
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	out := &Mask{W: m.W, H: m.H, Pix: make([]uint8, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Invert flips foreground and background in place
func (m *Mask) Invert() *Mask {
	for i, v := range m.Pix {
		m.Pix[i] = 255 - v
	}
	return m
}

// ToNRGBA copies any image into a fresh *image.NRGBA anchored at (0,0)
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Gray returns the mask as an *image.Gray
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.W, m.H))
	copy(g.Pix, m.Pix)
	return g
}

// FromImage reads the first channel of img into a mask
func FromImage(img image.Image) *Mask {
	n := ToNRGBA(img)
	w, h := n.Bounds().Dx(), n.Bounds().Dy()
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		row := n.Pix[y*n.Stride:]
		for x := 0; x < w; x++ {
			m.Pix[y*w+x] = row[x*4]
		}
	}
	return m
}

// AlphaOf extracts the alpha channel of an NRGBA image
func AlphaOf(img *image.NRGBA) *Mask {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			m.Pix[y*w+x] = row[x*4+3]
		}
	}
	return m
}

// Resize scales the mask to w x h with bilinear filtering
func (m *Mask) Resize(w, h int) *Mask {
	if w == m.W && h == m.H {
		return m.Clone()
	}
	return FromImage(imaging.Resize(m.Gray(), w, h, imaging.Linear))
}

// Feather applies a Gaussian blur of the given sigma
func (m *Mask) Feather(sigma float64) *Mask {
	if sigma <= 0 {
		return m.Clone()
	}
	return FromImage(imaging.Blur(m.Gray(), sigma))
}

// Snap forces values below lo to 0 and above hi to 255
func (m *Mask) Snap(lo, hi uint8) *Mask {
	for i, v := range m.Pix {
		switch {
		case v < lo:
			m.Pix[i] = 0
		case v > hi:
			m.Pix[i] = 255
		}
	}
	return m
}

// MinMerge keeps the per-pixel minimum of m and other (intersection of mattes)
func (m *Mask) MinMerge(other *Mask) *Mask {
	for i, v := range other.Pix {
		if v < m.Pix[i] {
			m.Pix[i] = v
		}
	}
	return m
}

// ClearOutside zeroes every pixel outside r
func (m *Mask) ClearOutside(r image.Rectangle) *Mask {
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !(image.Point{X: x, Y: y}).In(r) {
				m.Pix[y*m.W+x] = 0
			}
		}
	}
	return m
}

// Coverage returns the fraction of pixels with a non-zero value
func (m *Mask) Coverage() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	n := 0
	for _, v := range m.Pix {
		if v > 0 {
			n++
		}
	}
	return float64(n) / float64(len(m.Pix))
}

// Apply returns a copy of src whose alpha is src alpha scaled by the mask.
// The source image is left untouched.
func Apply(src *image.NRGBA, m *Mask) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride:]
		orow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			orow[i+0] = srow[i+0]
			orow[i+1] = srow[i+1]
			orow[i+2] = srow[i+2]
			orow[i+3] = uint8(uint16(srow[i+3]) * uint16(m.Pix[y*w+x]) / 255)
		}
	}
	return out
}
