package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"featalign/internal/features"
	fimage "featalign/internal/image"
	"featalign/internal/matching"
	"featalign/pkg/colorutil"
	"featalign/pkg/geometry"
)

func TestDrawLineEndpoints(t *testing.T) {
	b := fimage.NewBuffer(10, 10)
	drawLine(b, 1, 1, 8, 5, colorutil.Red)
	assert.Equal(t, colorutil.Red, b.RGBAAt(1, 1))
	assert.Equal(t, colorutil.Red, b.RGBAAt(8, 5))

	// Clipped lines do not panic.
	drawLine(b, -5, -5, 20, 20, colorutil.Blue)
	assert.Equal(t, colorutil.Blue, b.RGBAAt(9, 9))
}

func TestDrawKeypointsLeavesInputUntouched(t *testing.T) {
	src := fimage.NewBuffer(32, 32)
	out := DrawKeypoints(src, []features.Keypoint{{X: 16, Y: 16, Size: 10}}, DefaultOptions())
	assert.Equal(t, make([]byte, len(src.Pix)), src.Pix)
	assert.Equal(t, colorutil.Green, out.RGBAAt(21, 16))
}

func TestDrawMatches(t *testing.T) {
	a := fimage.NewBuffer(20, 10)
	b := fimage.NewBuffer(15, 12)
	kps := []features.Keypoint{{X: 5, Y: 5}}
	opts := DefaultOptions()
	opts.ShowOrientation = false

	out := DrawMatches(a, kps, b, kps, []matching.Match{{QueryIndex: 0, TrainIndex: 0}}, []bool{false}, opts)
	assert.Equal(t, 35, out.Width)
	assert.Equal(t, 12, out.Height)
	assert.Equal(t, colorutil.Red, out.RGBAAt(15, 5))

	opts.OnlyInliers = true
	out = DrawMatches(a, kps, b, kps, []matching.Match{{QueryIndex: 0, TrainIndex: 0}}, []bool{false}, opts)
	assert.Equal(t, colorutil.Black, out.RGBAAt(15, 5))
}

func TestDrawMatchesFootprint(t *testing.T) {
	a := fimage.NewBuffer(20, 20)
	b := fimage.NewBuffer(20, 20)
	query := []features.Keypoint{{X: 5, Y: 5}, {X: 5, Y: 15}}
	train := []features.Keypoint{{X: 5, Y: 5}, {X: 5, Y: 15}}
	matches := []matching.Match{{QueryIndex: 0, TrainIndex: 0}, {QueryIndex: 1, TrainIndex: 1}}
	opts := DefaultOptions()
	opts.ShowOrientation = false
	opts.Footprint = geometry.NewRect(0, 0, 20, 10).Corners()

	out := DrawMatches(a, query, b, train, matches, []bool{true, true}, opts)
	assert.Equal(t, colorutil.Green, out.RGBAAt(15, 5))
	assert.Equal(t, colorutil.Black, out.RGBAAt(15, 15))

	// Degenerate footprints do not filter.
	opts.Footprint = opts.Footprint[:2]
	out = DrawMatches(a, query, b, train, matches, []bool{true, true}, opts)
	assert.Equal(t, colorutil.Green, out.RGBAAt(15, 15))
}

func TestDrawQuad(t *testing.T) {
	img := fimage.NewBuffer(20, 20)
	quad := geometry.NewRect(2, 2, 10, 10).Corners()
	out := DrawQuad(img, quad, 1, colorutil.Yellow)
	assert.Equal(t, colorutil.Yellow, out.RGBAAt(7, 2))
	assert.Equal(t, colorutil.Yellow, out.RGBAAt(12, 7))
	assert.Zero(t, out.RGBAAt(7, 7).A)
}
