package features

import (
	"math"

	"featalign/internal/image"
	"featalign/pkg/colorutil"
)

// Gray is a single-channel floating-point image plane.
type Gray struct {
	Width  int
	Height int
	Pix    []float64
}

// NewGray allocates a zeroed plane.
func NewGray(width, height int) *Gray {
	return &Gray{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// GrayFromBuffer converts an RGBA buffer to luma in [0, 255]. The buffer must
// already be validated.
func GrayFromBuffer(b image.Buffer) *Gray {
	return &Gray{Width: b.Width, Height: b.Height, Pix: colorutil.LumaPlane(b.Pix, b.Width, b.Height)}
}

// At returns the value at (x, y) with border replication.
func (g *Gray) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.Width {
		x = g.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.Height {
		y = g.Height - 1
	}
	return g.Pix[y*g.Width+x]
}

// Sample bilinearly interpolates at a sub-pixel position with border
// replication.
func (g *Gray) Sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)
	top := g.At(x0, y0)*(1-fx) + g.At(x0+1, y0)*fx
	bot := g.At(x0, y0+1)*(1-fx) + g.At(x0+1, y0+1)*fx
	return top*(1-fy) + bot*fy
}

// Scaled returns a copy with every value multiplied by f.
func (g *Gray) Scaled(f float64) *Gray {
	out := NewGray(g.Width, g.Height)
	for i, v := range g.Pix {
		out.Pix[i] = v * f
	}
	return out
}

// gaussianKernel returns a normalized 1D kernel with radius ceil(3*sigma).
func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}
	k := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Blur applies a separable Gaussian blur with border replication.
func (g *Gray) Blur(sigma float64) *Gray {
	if sigma <= 0 {
		out := NewGray(g.Width, g.Height)
		copy(out.Pix, g.Pix)
		return out
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := NewGray(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var s float64
			for i := -r; i <= r; i++ {
				s += k[i+r] * g.At(x+i, y)
			}
			tmp.Pix[y*g.Width+x] = s
		}
	}
	out := NewGray(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var s float64
			for i := -r; i <= r; i++ {
				s += k[i+r] * tmp.At(x, y+i)
			}
			out.Pix[y*g.Width+x] = s
		}
	}
	return out
}

// Resize resamples to the given size with pixel-center aligned bilinear
// interpolation.
func (g *Gray) Resize(width, height int) *Gray {
	out := NewGray(width, height)
	sx := float64(g.Width) / float64(width)
	sy := float64(g.Height) / float64(height)
	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			out.Pix[y*width+x] = g.Sample(fx, fy)
		}
	}
	return out
}

// Gradients returns central-difference derivatives scaled by 1/2.
func (g *Gray) Gradients() (dx, dy *Gray) {
	dx = NewGray(g.Width, g.Height)
	dy = NewGray(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := y*g.Width + x
			dx.Pix[i] = (g.At(x+1, y) - g.At(x-1, y)) * 0.5
			dy.Pix[i] = (g.At(x, y+1) - g.At(x, y-1)) * 0.5
		}
	}
	return dx, dy
}

// Scharr returns first derivatives using the 3x3 Scharr operator, normalized
// so a unit ramp yields a derivative of 1.
func (g *Gray) Scharr() (dx, dy *Gray) {
	dx = NewGray(g.Width, g.Height)
	dy = NewGray(g.Width, g.Height)
	const norm = 1.0 / 32
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := y*g.Width + x
			dx.Pix[i] = norm * (3*(g.At(x+1, y-1)-g.At(x-1, y-1)) +
				10*(g.At(x+1, y)-g.At(x-1, y)) +
				3*(g.At(x+1, y+1)-g.At(x-1, y+1)))
			dy.Pix[i] = norm * (3*(g.At(x-1, y+1)-g.At(x-1, y-1)) +
				10*(g.At(x, y+1)-g.At(x, y-1)) +
				3*(g.At(x+1, y+1)-g.At(x+1, y-1)))
		}
	}
	return dx, dy
}

// IsUniform reports whether every value equals the first one.
func (g *Gray) IsUniform() bool {
	for _, v := range g.Pix {
		if v != g.Pix[0] {
			return false
		}
	}
	return true
}

// toLevel0 maps a pixel-centre coordinate on a resampled axis of length level
// back onto the full-resolution axis of length full.
func toLevel0(v float64, full, level int) float64 {
	return (v+0.5)*float64(full)/float64(level) - 0.5
}
