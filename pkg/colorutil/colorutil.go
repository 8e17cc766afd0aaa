// Package colorutil provides shared color utilities.
package colorutil

import (
	"image/color"
)

// Common overlay colors used by the debug renderers.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Luma weights, OpenCV RGB2GRAY convention (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Luma returns the grey level (0-255) of an RGB triple. Alpha is ignored.
func Luma(r, g, b uint8) float64 {
	return lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)
}

// LumaPlane converts a packed RGBA8 buffer into a row-major grey plane.
// The caller guarantees len(pix) >= width*height*4.
func LumaPlane(pix []byte, width, height int) []float64 {
	out := make([]float64, width*height)
	for i := range out {
		o := i * 4
		out[i] = Luma(pix[o], pix[o+1], pix[o+2])
	}
	return out
}

// Palette returns a deterministic color for index i, cycling through a
// fixed set of saturated hues.
func Palette(i int) color.RGBA {
	colors := [...]color.RGBA{Green, Magenta, Cyan, Yellow, Red, Blue}
	if i < 0 {
		i = -i
	}
	return colors[i%len(colors)]
}
