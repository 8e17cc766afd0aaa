//go:build withcv
// +build withcv

package cvref

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featalign/internal/features"
	"featalign/internal/homography"
	fimage "featalign/internal/image"
	"featalign/internal/matching"
	"featalign/internal/warp"
	"featalign/pkg/geometry"
)

var knownH = geometry.Matrix3{
	1.05, 0.04, 9,
	-0.06, 0.97, -5,
	5e-5, -1e-4, 1,
}

// scene draws random filled rectangles, which gives both detectors corners.
func scene(w, h int, seed int64) fimage.Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := fimage.NewBuffer(w, h)
	for i := 3; i < len(b.Pix); i += 4 {
		b.Pix[i] = 255
	}
	for n := 0; n < 60; n++ {
		x0, y0 := rng.Intn(w-20), rng.Intn(h-20)
		rw, rh := 6+rng.Intn(30), 6+rng.Intn(30)
		v := byte(rng.Intn(256))
		for y := y0; y < y0+rh && y < h; y++ {
			for x := x0; x < x0+rw && x < w; x++ {
				o := b.Offset(x, y)
				b.Pix[o], b.Pix[o+1], b.Pix[o+2] = v, v/2, 255-v
			}
		}
	}
	return b
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available())
	assert.NotEmpty(t, Version())
	assert.Contains(t, Describe(), Version())
}

func TestBufferMatRoundTrip(t *testing.T) {
	src := scene(61, 47, 1)
	mat, err := bufferToMat(src)
	require.NoError(t, err)
	defer mat.Close()

	back, err := matToBuffer(mat)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, back.Pix)
}

func TestFindHomographyAgrees(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := make([]geometry.Point2D, 60)
	dst := make([]geometry.Point2D, 60)
	for i := range src {
		src[i] = geometry.Point2D{X: rng.Float64() * 640, Y: rng.Float64() * 480}
		p, ok := knownH.Apply(src[i])
		require.True(t, ok)
		if i%5 == 0 {
			p = p.Add(geometry.Point2D{X: 40 + rng.Float64()*60, Y: -50})
		}
		dst[i] = p
	}

	ours, err := homography.Estimate(src, dst, 3, homography.DefaultOptions())
	require.NoError(t, err)
	ref, err := FindHomography(src, dst, 3, homography.DefaultOptions())
	require.NoError(t, err)
	require.True(t, ours.Success)
	require.True(t, ref.Success)

	assert.Equal(t, ref.Mask, ours.Mask)
	for _, p := range []geometry.Point2D{{X: 0, Y: 0}, {X: 640, Y: 0}, {X: 320, Y: 240}, {X: 0, Y: 480}} {
		a, _ := ours.Matrix.Apply(p)
		b, _ := ref.Matrix.Apply(p)
		assert.InDelta(t, b.X, a.X, 0.01)
		assert.InDelta(t, b.Y, a.Y, 0.01)
	}
}

func TestWarpPerspectiveAgrees(t *testing.T) {
	src := scene(160, 120, 4)
	ours, err := warp.WarpPerspective(src, knownH, 160, 120)
	require.NoError(t, err)
	ref, err := WarpPerspective(src, knownH, 160, 120)
	require.NoError(t, err)

	// OpenCV quantizes source coordinates to 1/32 px, which moves hard
	// edges by a few levels.
	var worst int
	for y := 20; y < 100; y++ {
		for x := 20; x < 140; x++ {
			o := ours.Offset(x, y)
			for c := 0; c < 3; c++ {
				d := int(ours.Pix[o+c]) - int(ref.Pix[o+c])
				if d < 0 {
					d = -d
				}
				worst = max(worst, d)
			}
		}
	}
	assert.LessOrEqual(t, worst, 8)
}

func TestORBDescriptorsMatchAcrossImplementations(t *testing.T) {
	img := scene(320, 240, 5)
	cvKps, cvDesc, err := DetectORB(img)
	require.NoError(t, err)
	require.NotEmpty(t, cvKps)
	assert.Equal(t, 32, cvDesc.Cols)
	assert.Equal(t, len(cvKps), cvDesc.Rows)

	// OpenCV's descriptors feed the pure-Go matcher unchanged.
	matches, err := matching.MatchDescriptors(cvDesc, cvDesc, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	kps, _, err := features.Detect(img, features.VariantORB, 500)
	require.NoError(t, err)
	require.NotEmpty(t, kps)

	// The strongest pure-Go corner has an OpenCV keypoint nearby.
	best := kps[0]
	nearest := 1e9
	for _, k := range cvKps {
		d := geometry.Point2D{X: k.X, Y: k.Y}.Distance(geometry.Point2D{X: best.X, Y: best.Y})
		if d < nearest {
			nearest = d
		}
	}
	assert.Less(t, nearest, 6.0)
}
