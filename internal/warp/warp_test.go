package warp

import (
	"math"
	"math/rand"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featalign/internal/failure"
	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

func noise(w, h int, seed int64) fimage.Buffer {
	b := fimage.NewBuffer(w, h)
	rand.New(rand.NewSource(seed)).Read(b.Pix)
	return b
}

// ramp is linear in x and y, so bilinear sampling reproduces it up to
// rounding.
func ramp(w, h int) fimage.Buffer {
	b := fimage.NewBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := b.Offset(x, y)
			b.Pix[o] = byte(2 * x)
			b.Pix[o+1] = byte(2 * y)
			b.Pix[o+2] = byte(x + y)
			b.Pix[o+3] = 255
		}
	}
	return b
}

func aboutCenter(m geometry.Matrix3, cx, cy float64) geometry.Matrix3 {
	return geometry.Translation(cx, cy).Compose(m).Compose(geometry.Translation(-cx, -cy))
}

func TestWarpIdentityIsExact(t *testing.T) {
	src := noise(37, 23, 1)
	out, err := WarpPerspective(src, geometry.Identity(), 37, 23)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)

	// A scaled identity is the same projective transform.
	out, err = WarpPerspective(src, geometry.Identity().Scale(3.5), 37, 23)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestWarpTranslation(t *testing.T) {
	src := noise(20, 20, 2)
	out, err := WarpPerspective(src, geometry.Translation(3, 2), 20, 20)
	require.NoError(t, err)

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			got := out.RGBAAt(x, y)
			if x < 3 || y < 2 {
				assert.Zero(t, got.A, "(%d,%d)", x, y)
				continue
			}
			assert.Equal(t, src.RGBAAt(x-3, y-2), got, "(%d,%d)", x, y)
		}
	}
}

func TestWarpRoundTrip(t *testing.T) {
	src := ramp(100, 100)
	h := aboutCenter(geometry.Rotation(5*math.Pi/180).Compose(geometry.Scaling(1.05, 1.05)), 50, 50)
	h[6], h[7] = 1e-5, -1e-5
	inv, ok := h.Inverse()
	require.True(t, ok)

	fwd, err := WarpPerspective(src, h, 100, 100)
	require.NoError(t, err)
	back, err := WarpPerspective(fwd, inv, 100, 100)
	require.NoError(t, err)

	for y := 20; y < 80; y++ {
		for x := 20; x < 80; x++ {
			a, b := src.RGBAAt(x, y), back.RGBAAt(x, y)
			assert.InDelta(t, a.R, b.R, 3, "(%d,%d)", x, y)
			assert.InDelta(t, a.G, b.G, 3, "(%d,%d)", x, y)
			assert.InDelta(t, a.B, b.B, 3, "(%d,%d)", x, y)
			assert.Equal(t, uint8(255), b.A)
		}
	}
}

func TestWarpWorkerCountInvariant(t *testing.T) {
	src := noise(64, 48, 3)
	h := aboutCenter(geometry.Rotation(0.3), 32, 24)
	want, err := warpWith(src, h, 70, 50, 1)
	require.NoError(t, err)
	for _, workers := range []int{2, 3, 7, 64, 100} {
		got, err := warpWith(src, h, 70, 50, workers)
		require.NoError(t, err)
		assert.Equal(t, want.Pix, got.Pix, "workers=%d", workers)
	}
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 1, workerCount(1, 1))
	assert.Equal(t, 1, workerCount(255, 255))
	n := workerCount(4096, 4096)
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, runtime.NumCPU())
	assert.Equal(t, min(runtime.NumCPU(), 256), n)

	// Small outputs take the single-worker path and still match.
	src := ramp(8, 8)
	want, err := warpWith(src, geometry.Translation(1, 1), 8, 8, 1)
	require.NoError(t, err)
	got, err := WarpPerspective(src, geometry.Translation(1, 1), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, got.Pix)
}

func TestWarpErrors(t *testing.T) {
	src := noise(8, 8, 4)

	_, err := WarpPerspective(src, geometry.Matrix3{1, 2, 3, 2, 4, 6, 0, 0, 1}, 8, 8)
	assert.ErrorIs(t, err, failure.ErrNumericalFailure)

	_, err = WarpPerspective(src, geometry.Matrix3{}, 8, 8)
	assert.ErrorIs(t, err, failure.ErrNumericalFailure)

	_, err = WarpPerspective(src, geometry.Identity(), 0, 8)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, err = WarpPerspective(fimage.Buffer{Width: 8, Height: 8, Pix: src.Pix[:10]}, geometry.Identity(), 8, 8)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, err = WarpFlat(src.Pix, 8, 8, []float64{1, 0, 0, 0, 1, 0, 0, 0}, 8, 8)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, err = WarpFlat(src.Pix, 8, 7, geometry.Identity().Slice(), 8, 8)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	nan := geometry.Identity()
	nan[2] = math.NaN()
	_, err = WarpPerspective(src, nan, 8, 8)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestWarpRejectsOverflowingSizes(t *testing.T) {
	src := noise(8, 8, 5)
	assert.NotPanics(t, func() {
		_, err := WarpFlat(nil, 1<<61, 2, geometry.Identity().Slice(), 4, 4)
		assert.ErrorIs(t, err, failure.ErrInvalidInput)

		_, err = WarpPerspective(src, geometry.Identity(), 1<<61, 2)
		assert.ErrorIs(t, err, failure.ErrInvalidInput)

		_, err = WarpFlat(src.Pix, 8, 8, geometry.Identity().Slice(), 1<<40, 1<<40)
		assert.ErrorIs(t, err, failure.ErrInvalidInput)
	})
}

func TestWarpFlat(t *testing.T) {
	src := noise(10, 6, 5)
	out, err := WarpFlat(src.Pix, 10, 6, geometry.Identity().Slice(), 10, 6)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out)
}

func TestWarpedBoundsAndCanvas(t *testing.T) {
	h := geometry.Translation(-10, 5)
	r, err := WarpedBounds(h, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, geometry.NewRect(-10, 5, 100, 50), r)

	c, err := CanvasFor(h, 100, 50, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 110, c.Width)
	assert.Equal(t, 55, c.Height)
	assert.Equal(t, 10, c.OffsetX)
	assert.Equal(t, 0, c.OffsetY)

	p, ok := c.Transform.Apply(geometry.Point2D{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, geometry.Point2D{X: 0, Y: 5}, p)
}

func TestOverlapRatio(t *testing.T) {
	r, err := OverlapRatio(geometry.Identity(), 100, 100, 100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1, r, 1e-9)

	r, err = OverlapRatio(geometry.Translation(50, 0), 100, 100, 100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r, 1e-9)

	r, err = OverlapRatio(geometry.Translation(500, 0), 100, 100, 100, 100)
	require.NoError(t, err)
	assert.Zero(t, r)

	// A mirrored image keeps full coverage.
	r, err = OverlapRatio(geometry.Matrix3{-1, 0, 100, 0, 1, 0, 0, 0, 1}, 100, 100, 100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1, r, 1e-9)

	_, err = OverlapRatio(geometry.Identity(), 0, 100, 100, 100)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}
