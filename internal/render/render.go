// Package render draws debug visualisations of keypoints and matches.
package render

import (
	"image/color"
	"math"

	"featalign/internal/features"
	fimage "featalign/internal/image"
	"featalign/internal/matching"
	"featalign/pkg/colorutil"
	"featalign/pkg/geometry"
)

// Options configures how features are rendered.
type Options struct {
	KeypointColor   color.RGBA
	OutlineWidth    int  // outline width in pixels
	ShowOrientation bool // draw a radius along the keypoint angle
	ShowScale       bool // circle radius follows keypoint size
	InlierColor     color.RGBA
	OutlierColor    color.RGBA
	LineWidth       int
	// OnlyInliers hides outlier match lines.
	OnlyInliers bool
	// Footprint, when it has at least three vertices, hides matches whose
	// train keypoint lies outside it.
	Footprint []geometry.Point2D
}

// DefaultOptions returns default rendering options.
func DefaultOptions() Options {
	return Options{
		KeypointColor:   colorutil.Green,
		OutlineWidth:    1,
		ShowOrientation: true,
		ShowScale:       true,
		InlierColor:     colorutil.Green,
		OutlierColor:    colorutil.Red,
		LineWidth:       1,
	}
}

// DrawKeypoints returns a copy of img with keypoints drawn on top.
func DrawKeypoints(img fimage.Buffer, kps []features.Keypoint, opts Options) fimage.Buffer {
	out := img.Clone()
	for _, kp := range kps {
		drawKeypoint(out, kp, 0, opts.KeypointColor, opts)
	}
	return out
}

func drawKeypoint(b fimage.Buffer, kp features.Keypoint, offsetX int, c color.RGBA, opts Options) {
	cx := int(math.Round(kp.X)) + offsetX
	cy := int(math.Round(kp.Y))
	r := 3
	if opts.ShowScale && kp.Size > 0 {
		r = max(2, int(math.Round(kp.Size/2)))
	}

	for w := 0; w < max(1, opts.OutlineWidth); w++ {
		drawCircle(b, cx, cy, r-w, c)
	}
	fillCircle(b, cx, cy, 1, darken(c, 0.3))
	if opts.ShowOrientation {
		rad := kp.Angle * math.Pi / 180
		drawLine(b, cx, cy,
			cx+int(math.Round(float64(r)*math.Cos(rad))),
			cy+int(math.Round(float64(r)*math.Sin(rad))), c)
	}
}

// SideBySide places a and b next to each other on a black canvas.
func SideBySide(a, b fimage.Buffer) fimage.Buffer {
	c := fimage.NewComposite(a.Width+b.Width, max(a.Height, b.Height))
	c.BackColor = colorutil.Black
	c.AddLayer(a, fimage.BlendNormal, 1, 0, 0)
	c.AddLayer(b, fimage.BlendNormal, 1, a.Width, 0)
	return c.Render()
}

// DrawMatches renders query and train side by side with a line per match.
// mask, when non-nil, marks inliers and is parallel to matches.
func DrawMatches(query fimage.Buffer, queryKps []features.Keypoint, train fimage.Buffer, trainKps []features.Keypoint,
	matches []matching.Match, mask []bool, opts Options) fimage.Buffer {
	out := SideBySide(query, train)
	for i, m := range matches {
		if m.QueryIndex >= len(queryKps) || m.TrainIndex >= len(trainKps) {
			continue
		}
		inlier := mask == nil || (i < len(mask) && mask[i])
		if !inlier && opts.OnlyInliers {
			continue
		}
		c := opts.OutlierColor
		if inlier {
			c = opts.InlierColor
			if mask == nil {
				c = colorutil.Palette(i)
			}
		}
		q, t := queryKps[m.QueryIndex], trainKps[m.TrainIndex]
		if len(opts.Footprint) >= 3 && !geometry.PointInPolygon(geometry.Point2D{X: t.X, Y: t.Y}, opts.Footprint) {
			continue
		}
		drawThickLine(out, q.X, q.Y, t.X+float64(query.Width), t.Y, max(1, opts.LineWidth), c)
		drawKeypoint(out, q, 0, c, opts)
		drawKeypoint(out, t, query.Width, c, opts)
	}
	return out
}

// DrawQuad outlines a closed polygon, e.g. the warped corners of an image.
func DrawQuad(img fimage.Buffer, pts []geometry.Point2D, thickness int, c color.RGBA) fimage.Buffer {
	out := img.Clone()
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		drawThickLine(out, a.X, a.Y, b.X, b.Y, thickness, c)
	}
	return out
}
