package homography

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"featalign/internal/failure"
	"featalign/pkg/geometry"
)

var knownH = geometry.Matrix3{
	1.1, 0.05, 12,
	-0.08, 0.95, -7,
	1e-4, -2e-4, 1,
}

func project(t *testing.T, h geometry.Matrix3, pts []geometry.Point2D) []geometry.Point2D {
	t.Helper()
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		q, ok := h.Apply(p)
		require.True(t, ok)
		out[i] = q
	}
	return out
}

func randomPoints(rng *rand.Rand, n int) []geometry.Point2D {
	pts := make([]geometry.Point2D, n)
	for i := range pts {
		pts[i] = geometry.Point2D{X: rng.Float64() * 640, Y: rng.Float64() * 480}
	}
	return pts
}

// assertSameAction checks that a and b move a grid of sample points to the
// same place.
func assertSameAction(t *testing.T, want, got geometry.Matrix3, tol float64) {
	t.Helper()
	for y := 0.0; y <= 480; y += 120 {
		for x := 0.0; x <= 640; x += 160 {
			p, ok1 := want.Apply(geometry.Point2D{X: x, Y: y})
			q, ok2 := got.Apply(geometry.Point2D{X: x, Y: y})
			require.True(t, ok1 && ok2)
			assert.InDelta(t, p.X, q.X, tol)
			assert.InDelta(t, p.Y, q.Y, tol)
		}
	}
}

func TestEstimateRotationScenario(t *testing.T) {
	src := []float64{0, 0, 10, 0, 10, 10, 0, 10}
	dst := []float64{0, 0, 0, 10, -10, 10, -10, 0}

	h, err := EstimateFlat(src, dst, 1, DefaultOptions())
	require.NoError(t, err)
	require.True(t, h.Success)
	assert.Equal(t, 4, h.InlierCount)
	assert.Equal(t, []bool{true, true, true, true}, h.Mask)

	p, ok := h.Matrix.Apply(geometry.Point2D{X: 10, Y: 0})
	require.True(t, ok)
	assert.InDelta(t, 0, p.X, 1e-3)
	assert.InDelta(t, 10, p.Y, 1e-3)
}

func TestEstimateAllInliers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{8, 20, 100} {
		src := randomPoints(rng, n)
		dst := project(t, knownH, src)

		h, err := Estimate(src, dst, 1, Options{Seed: 3})
		require.NoError(t, err)
		require.True(t, h.Success)
		assert.Equal(t, n, h.InlierCount)
		assert.True(t, floats.EqualApprox(knownH[:], h.Matrix[:], 1e-6), "got %v", h.Matrix)
	}
}

func TestEstimateWithOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n = 100
	src := randomPoints(rng, n)
	dst := project(t, knownH, src)

	outlier := make([]bool, n)
	for _, i := range rng.Perm(n)[:30] {
		outlier[i] = true
		angle := rng.Float64() * 2 * math.Pi
		r := 20 + rng.Float64()*80
		dst[i] = dst[i].Add(geometry.Point2D{X: r * math.Cos(angle), Y: r * math.Sin(angle)})
	}

	h, err := Estimate(src, dst, 3, DefaultOptions())
	require.NoError(t, err)
	require.True(t, h.Success)
	assert.Equal(t, 70, h.InlierCount)
	for i := range outlier {
		assert.Equal(t, !outlier[i], h.Mask[i], "pair %d", i)
	}
	assertSameAction(t, knownH, h.Matrix, 1e-4)
	assert.Less(t, h.Iterations, DefaultOptions().MaxIterations)
}

func TestEstimateDeterministicSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	src := randomPoints(rng, 40)
	dst := project(t, knownH, src)
	for i := 0; i < 15; i++ {
		dst[i].X += 50
	}

	a, err := Estimate(src, dst, 2, Options{Seed: 99})
	require.NoError(t, err)
	b, err := Estimate(src, dst, 2, Options{Seed: 99})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEstimateCollinearFails(t *testing.T) {
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	dst := []geometry.Point2D{{X: 5, Y: 0}, {X: 6, Y: 2}, {X: 7, Y: 4}, {X: 8, Y: 6}}

	h, err := Estimate(src, dst, 1, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, h.Success)
	assert.Zero(t, h.InlierCount)
}

func TestEstimateInvalidInput(t *testing.T) {
	sq := []geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	_, err := Estimate(sq, sq[:3], 1, DefaultOptions())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	for _, thr := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = Estimate(sq, sq, thr, DefaultOptions())
		assert.ErrorIs(t, err, failure.ErrInvalidInput)
	}

	bad := append([]geometry.Point2D(nil), sq...)
	bad[2].X = math.NaN()
	_, err = Estimate(bad, sq, 1, DefaultOptions())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	h, err := Estimate(sq[:3], sq[:3], 1, DefaultOptions())
	assert.ErrorIs(t, err, failure.ErrInsufficientData)
	assert.False(t, h.Success)

	_, err = EstimateFlat([]float64{1, 2, 3}, []float64{1, 2, 3}, 1, DefaultOptions())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, err = EstimateFlat([]float64{1, 2, 3, 4}, []float64{1, 2}, 1, DefaultOptions())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestSolveDLTLeastSquares(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	src := randomPoints(rng, 50)
	dst := project(t, knownH, src)

	h, err := SolveDLT(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1.0, h[8])
	for _, e := range ReprojectionErrors(h, src, dst) {
		assert.Less(t, e, 1e-6)
	}

	_, err = SolveDLT(src[:3], dst[:3])
	assert.ErrorIs(t, err, failure.ErrInsufficientData)

	same := []geometry.Point2D{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}
	_, err = SolveDLT(same, dst[:4])
	assert.ErrorIs(t, err, failure.ErrNumericalFailure)
}

func TestUpdateNumIters(t *testing.T) {
	assert.Equal(t, 0, updateNumIters(0.995, 0, 4, 2000))
	assert.Equal(t, 2000, updateNumIters(0.995, 1, 4, 2000))

	// log(0.005)/log(1-0.5^4) = 82.1
	assert.Equal(t, 82, updateNumIters(0.995, 0.5, 4, 2000))
	assert.Equal(t, 50, updateNumIters(0.995, 0.5, 4, 50))
}

func TestInliers(t *testing.T) {
	h := Homography{Mask: []bool{true, false, true}}
	assert.Equal(t, []int{0, 2}, h.Inliers())
}
