// Package image provides the packed RGBA pixel buffer used by the detector
// and warper, plus file loading and compositing for the command-line tools.
package image

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"featalign/internal/failure"
)

// Channels is the number of bytes per pixel (R, G, B, A).
const Channels = 4

// Buffer is a tightly packed row-major RGBA8 pixel buffer with no stride
// padding. len(Pix) must equal Width*Height*4.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBuffer allocates a zeroed (fully transparent) buffer.
func NewBuffer(width, height int) Buffer {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return Buffer{Width: width, Height: height, Pix: make([]byte, width*height*Channels)}
}

// FromPix wraps an existing packed RGBA slice after validating its size.
func FromPix(pix []byte, width, height int) (Buffer, error) {
	b := Buffer{Width: width, Height: height, Pix: pix}
	if err := b.Validate(); err != nil {
		return Buffer{}, err
	}
	return b, nil
}

// CheckSize reports whether a width x height RGBA buffer can be allocated:
// both sides positive and the byte length representable as an int.
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(failure.ErrInvalidInput, "non-positive dimensions %dx%d", width, height)
	}
	if width > math.MaxInt/Channels/height {
		return errors.Wrapf(failure.ErrInvalidInput, "dimensions %dx%d overflow", width, height)
	}
	return nil
}

// Validate checks dimensions and buffer length.
func (b Buffer) Validate() error {
	if err := CheckSize(b.Width, b.Height); err != nil {
		return err
	}
	if want := b.Width * b.Height * Channels; len(b.Pix) != want {
		return errors.Wrapf(failure.ErrInvalidInput, "buffer length %d, want %d for %dx%d RGBA",
			len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// Offset returns the index of the first byte of pixel (x, y).
func (b Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * Channels
}

// RGBAAt returns the color at (x, y), or transparent black outside bounds.
func (b Buffer) RGBAAt(x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return color.RGBA{}
	}
	o := b.Offset(x, y)
	return color.RGBA{R: b.Pix[o], G: b.Pix[o+1], B: b.Pix[o+2], A: b.Pix[o+3]}
}

// SetRGBA writes a color at (x, y); writes outside bounds are ignored.
func (b Buffer) SetRGBA(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	o := b.Offset(x, y)
	b.Pix[o], b.Pix[o+1], b.Pix[o+2], b.Pix[o+3] = c.R, c.G, c.B, c.A
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// FromImage converts any image.Image into a packed buffer.
func FromImage(img image.Image) Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != w*Channels || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	pix := make([]byte, w*h*Channels)
	copy(pix, nrgba.Pix)
	return Buffer{Width: w, Height: h, Pix: pix}
}

// ToImage returns a non-premultiplied image view sharing the buffer's pixels.
func (b Buffer) ToImage() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * Channels,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}
