package image

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"featalign/internal/failure"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes an image file into a packed buffer. Paths without one of
// SupportedFormats' extensions are rejected.
func Load(path string) (Buffer, string, error) {
	if !IsSupportedFormat(path) {
		return Buffer{}, "", errors.Wrapf(failure.ErrUnsupportedType, "unsupported image format %q", filepath.Ext(path))
	}
	file, err := os.Open(path)
	if err != nil {
		return Buffer{}, "", errors.Wrap(err, "failed to open image")
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return Buffer{}, "", errors.Wrap(err, "failed to decode image")
	}
	return FromImage(img), format, nil
}

// Save encodes a buffer to path. The format follows the file extension;
// anything other than .jpg/.jpeg is written as PNG.
func Save(path string, b Buffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create output")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, b.ToImage(), &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(file, b.ToImage())
	}
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return file.Close()
}

// Downscale shrinks b so that neither side exceeds maxDim, preserving the
// aspect ratio. It returns the scale factor applied (1 when unchanged).
func Downscale(b Buffer, maxDim int) (Buffer, float64) {
	if maxDim <= 0 || (b.Width <= maxDim && b.Height <= maxDim) {
		return b, 1
	}
	scale := float64(maxDim) / float64(max(b.Width, b.Height))
	w := max(1, int(float64(b.Width)*scale+0.5))
	h := max(1, int(float64(b.Height)*scale+0.5))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), b.ToImage(), b.ToImage().Bounds(), draw.Src, nil)
	return Buffer{Width: w, Height: h, Pix: dst.Pix}, float64(w) / float64(b.Width)
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
