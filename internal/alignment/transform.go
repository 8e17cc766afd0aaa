package alignment

import (
	"math"

	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

// CalculateAlignmentError calculates the mean distance between transformed
// source points and their destinations.
func CalculateAlignmentError(srcPoints, dstPoints []geometry.Point2D, h geometry.Matrix3) float64 {
	if len(srcPoints) != len(dstPoints) || len(srcPoints) == 0 {
		return math.Inf(1)
	}

	var totalError float64
	for i := range srcPoints {
		p, ok := h.Apply(srcPoints[i])
		if !ok {
			return math.Inf(1)
		}
		totalError += p.Distance(dstPoints[i])
	}
	return totalError / float64(len(srcPoints))
}

// ValidRotation reports whether RotateImage supports degrees.
func ValidRotation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// RotateImage rotates a buffer clockwise by 90, 180 or 270 degrees. Other
// angles return a copy.
func RotateImage(b fimage.Buffer, degrees int) fimage.Buffer {
	var out fimage.Buffer
	switch degrees {
	case 90, 270:
		out = fimage.NewBuffer(b.Height, b.Width)
	default:
		out = fimage.NewBuffer(b.Width, b.Height)
	}

	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			var nx, ny int
			switch degrees {
			case 90:
				nx, ny = b.Height-1-y, x
			case 180:
				nx, ny = b.Width-1-x, b.Height-1-y
			case 270:
				nx, ny = y, b.Width-1-x
			default:
				nx, ny = x, y
			}
			so := b.Offset(x, y)
			copy(out.Pix[out.Offset(nx, ny):out.Offset(nx, ny)+fimage.Channels], b.Pix[so:so+fimage.Channels])
		}
	}
	return out
}

// RotationMatrix returns the transform RotateImage applies, mapping source
// pixel coordinates to rotated ones.
func RotationMatrix(degrees, width, height int) geometry.Matrix3 {
	switch degrees {
	case 90:
		return geometry.Matrix3{0, -1, float64(height - 1), 1, 0, 0, 0, 0, 1}
	case 180:
		return geometry.Matrix3{-1, 0, float64(width - 1), 0, -1, float64(height - 1), 0, 0, 1}
	case 270:
		return geometry.Matrix3{0, 1, 0, -1, 0, float64(width - 1), 0, 0, 1}
	}
	return geometry.Identity()
}

// FlipMatrix returns the transform FlipHorizontal applies to an image of the
// given width.
func FlipMatrix(width int) geometry.Matrix3 {
	return geometry.Matrix3{-1, 0, float64(width - 1), 0, 1, 0, 0, 0, 1}
}

// FlipHorizontal mirrors a buffer left to right.
func FlipHorizontal(b fimage.Buffer) fimage.Buffer {
	out := fimage.NewBuffer(b.Width, b.Height)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			so := b.Offset(x, y)
			do := out.Offset(b.Width-1-x, y)
			copy(out.Pix[do:do+fimage.Channels], b.Pix[so:so+fimage.Channels])
		}
	}
	return out
}
