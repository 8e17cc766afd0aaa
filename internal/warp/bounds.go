package warp

import (
	"math"

	"github.com/pkg/errors"

	"featalign/internal/failure"
	"featalign/pkg/geometry"
)

// Canvas describes an output frame large enough to hold both the warped
// source and the untouched destination image.
type Canvas struct {
	Width  int
	Height int
	// OffsetX, OffsetY place the destination image's origin on the canvas.
	OffsetX int
	OffsetY int
	// Transform maps source pixels onto the canvas (translation * h).
	Transform geometry.Matrix3
}

// WarpedCorners maps the four source corners through h in image order:
// top-left, top-right, bottom-right, bottom-left.
func WarpedCorners(h geometry.Matrix3, width, height int) ([]geometry.Point2D, error) {
	corners := geometry.NewRect(0, 0, float64(width), float64(height)).Corners()
	out := make([]geometry.Point2D, len(corners))
	for i, c := range corners {
		p, ok := h.Apply(c)
		if !ok || !p.IsFinite() {
			return nil, errors.Wrapf(failure.ErrNumericalFailure, "corner (%g, %g) maps to infinity", c.X, c.Y)
		}
		out[i] = p
	}
	return out, nil
}

// WarpedBounds returns the axis-aligned bounds of the source rectangle after
// mapping through h.
func WarpedBounds(h geometry.Matrix3, width, height int) (geometry.Rect, error) {
	corners, err := WarpedCorners(h, width, height)
	if err != nil {
		return geometry.Rect{}, err
	}
	return geometry.BoundingBox(corners), nil
}

// CanvasFor sizes a panorama canvas holding a srcW x srcH image warped by h
// together with the dstW x dstH image it was aligned to.
func CanvasFor(h geometry.Matrix3, srcW, srcH, dstW, dstH int) (Canvas, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Canvas{}, errors.Wrap(failure.ErrInvalidInput, "non-positive image size")
	}
	wb, err := WarpedBounds(h, srcW, srcH)
	if err != nil {
		return Canvas{}, err
	}
	all := wb.Union(geometry.NewRect(0, 0, float64(dstW), float64(dstH)))

	minX := math.Floor(all.X)
	minY := math.Floor(all.Y)
	c := Canvas{
		Width:   int(math.Ceil(all.X + all.Width - minX)),
		Height:  int(math.Ceil(all.Y + all.Height - minY)),
		OffsetX: int(-minX),
		OffsetY: int(-minY),
	}
	c.Transform = geometry.Translation(-minX, -minY).Compose(h)
	return c, nil
}

// OverlapRatio returns the fraction of the dstW x dstH frame covered by the
// source rectangle after mapping through h. Non-convex (folded) images of
// the source yield 0.
func OverlapRatio(h geometry.Matrix3, srcW, srcH, dstW, dstH int) (float64, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return 0, errors.Wrap(failure.ErrInvalidInput, "non-positive image size")
	}
	quad, err := WarpedCorners(h, srcW, srcH)
	if err != nil {
		return 0, err
	}
	if !geometry.IsConvex(quad) {
		return 0, nil
	}
	quad = counterClockwise(quad)
	frame := counterClockwise(geometry.NewRect(0, 0, float64(dstW), float64(dstH)).Corners())

	inter := geometry.IntersectPolygons(quad, frame)
	if inter == nil {
		return 0, nil
	}
	return math.Abs(geometry.PolygonArea(inter)) / float64(dstW*dstH), nil
}

func counterClockwise(poly []geometry.Point2D) []geometry.Point2D {
	if geometry.PolygonArea(poly) >= 0 {
		return poly
	}
	out := make([]geometry.Point2D, len(poly))
	for i, p := range poly {
		out[len(poly)-1-i] = p
	}
	return out
}
