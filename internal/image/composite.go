package image

import (
	"image/color"
	"math"
)

// BlendMode specifies how layers are composited.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendOverlay:
		return "Overlay"
	case BlendDifference:
		return "Difference"
	default:
		return "Unknown"
	}
}

// ParseBlendMode maps a name (case-sensitive, as printed by String) to a mode.
func ParseBlendMode(s string) (BlendMode, bool) {
	for m := BlendNormal; m <= BlendDifference; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return BlendNormal, false
}

// Composite stacks buffers onto a background of fixed size.
type Composite struct {
	Width     int
	Height    int
	Layers    []CompositeLayer
	BackColor color.RGBA
}

// CompositeLayer places a buffer on the canvas with a blend mode.
type CompositeLayer struct {
	Buffer    Buffer
	BlendMode BlendMode
	Opacity   float64
	OffsetX   int
	OffsetY   int
}

// NewComposite creates a new Composite with the specified dimensions.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.RGBA{40, 40, 40, 255},
	}
}

// AddLayer adds a layer to the composite.
func (c *Composite) AddLayer(b Buffer, mode BlendMode, opacity float64, offsetX, offsetY int) {
	c.Layers = append(c.Layers, CompositeLayer{
		Buffer:    b,
		BlendMode: mode,
		Opacity:   opacity,
		OffsetX:   offsetX,
		OffsetY:   offsetY,
	})
}

// Render produces the final composited buffer.
func (c *Composite) Render() Buffer {
	result := NewBuffer(c.Width, c.Height)
	for i := 0; i < len(result.Pix); i += Channels {
		result.Pix[i] = c.BackColor.R
		result.Pix[i+1] = c.BackColor.G
		result.Pix[i+2] = c.BackColor.B
		result.Pix[i+3] = c.BackColor.A
	}

	for _, cl := range c.Layers {
		if cl.Buffer.Validate() != nil || cl.Opacity <= 0 {
			continue
		}
		c.compositeLayer(result, cl)
	}
	return result
}

func (c *Composite) compositeLayer(dst Buffer, cl CompositeLayer) {
	src := cl.Buffer
	for y := 0; y < src.Height; y++ {
		dy := y + cl.OffsetY
		if dy < 0 || dy >= c.Height {
			continue
		}
		for x := 0; x < src.Width; x++ {
			dx := x + cl.OffsetX
			if dx < 0 || dx >= c.Width {
				continue
			}
			so := src.Offset(x, y)
			if src.Pix[so+3] == 0 {
				continue
			}
			do := dst.Offset(dx, dy)
			blendPixel(dst.Pix[do:do+Channels], src.Pix[so:so+Channels], cl.BlendMode, cl.Opacity)
		}
	}
}

// blendPixel blends src over dst in place. Both are 4-byte RGBA slices.
func blendPixel(dst, src []byte, mode BlendMode, opacity float64) {
	var sf, df [4]float64
	for i := 0; i < 4; i++ {
		sf[i] = float64(src[i]) / 255
		df[i] = float64(dst[i]) / 255
	}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			rf[i] = sf[i] * df[i]
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		case BlendOverlay:
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		case BlendDifference:
			rf[i] = math.Abs(sf[i] - df[i])
		default:
			rf[i] = sf[i]
		}
	}

	alpha := sf[3] * opacity
	for i := 0; i < 3; i++ {
		dst[i] = toByte(rf[i]*alpha + df[i]*(1-alpha))
	}
	dst[3] = toByte(alpha + df[3]*(1-alpha))
}

// Overlay renders moving on top of ref with the given blend mode and opacity.
// Both buffers are placed at the origin; the canvas takes ref's size.
func Overlay(ref, moving Buffer, mode BlendMode, opacity float64) Buffer {
	c := NewComposite(ref.Width, ref.Height)
	c.AddLayer(ref, BlendNormal, 1, 0, 0)
	c.AddLayer(moving, mode, opacity, 0, 0)
	return c.Render()
}

func toByte(v float64) byte {
	return byte(clamp(v, 0, 1)*255 + 0.5)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
