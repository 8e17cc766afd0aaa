package homography

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"featalign/internal/failure"
	"featalign/pkg/geometry"
)

// normalization returns the similarity that moves the centroid of pts to the
// origin and scales their mean distance from it to 1.
func normalization(pts []geometry.Point2D) (geometry.Matrix3, bool) {
	c := geometry.Centroid(pts)
	var mean float64
	for _, p := range pts {
		mean += p.Distance(c)
	}
	mean /= float64(len(pts))
	if mean == 0 || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return geometry.Matrix3{}, false
	}
	s := 1 / mean
	return geometry.Matrix3{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}, true
}

// SolveDLT fits a homography mapping src onto dst in the least-squares sense
// using the normalized Direct Linear Transform. At least 4 pairs are needed.
// The result is scaled so its bottom-right element is 1.
func SolveDLT(src, dst []geometry.Point2D) (geometry.Matrix3, error) {
	n := len(src)
	if n != len(dst) {
		return geometry.Matrix3{}, errors.Wrapf(failure.ErrInvalidInput, "point count mismatch: %d vs %d", n, len(dst))
	}
	if n < minSample {
		return geometry.Matrix3{}, errors.Wrapf(failure.ErrInsufficientData, "need %d points, got %d", minSample, n)
	}

	ts, ok := normalization(src)
	if !ok {
		return geometry.Matrix3{}, errors.Wrap(failure.ErrNumericalFailure, "source points coincide")
	}
	td, ok := normalization(dst)
	if !ok {
		return geometry.Matrix3{}, errors.Wrap(failure.ErrNumericalFailure, "destination points coincide")
	}

	// Pad to a square system when only the minimal 4 pairs are given so
	// the full V always has a ninth column.
	rows := max(2*n, 9)
	a := mat.NewDense(rows, 9, nil)
	for i := 0; i < n; i++ {
		p, _ := ts.Apply(src[i])
		q, _ := td.Apply(dst[i])
		a.SetRow(2*i, []float64{-p.X, -p.Y, -1, 0, 0, 0, q.X * p.X, q.X * p.Y, q.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -p.X, -p.Y, -1, q.Y * p.X, q.Y * p.Y, q.Y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return geometry.Matrix3{}, errors.Wrap(failure.ErrNumericalFailure, "SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)

	var hn geometry.Matrix3
	for i := range hn {
		hn[i] = v.At(i, 8)
	}

	tdInv, ok := td.Inverse()
	if !ok {
		return geometry.Matrix3{}, errors.Wrap(failure.ErrNumericalFailure, "normalization not invertible")
	}
	h := tdInv.Compose(hn).Compose(ts)
	if math.Abs(h[8]) <= 1e-12*h.MaxAbs() || !h.IsFinite() {
		return geometry.Matrix3{}, errors.Wrap(failure.ErrNumericalFailure, "homography maps origin to infinity")
	}
	return h.Scale(1 / h[8]), nil
}

// ReprojectionErrors returns |h(src[i]) - dst[i]| for each pair. Points that
// map to infinity get +Inf.
func ReprojectionErrors(h geometry.Matrix3, src, dst []geometry.Point2D) []float64 {
	out := make([]float64, len(src))
	for i := range src {
		out[i] = reprojectionError(h, src[i], dst[i])
	}
	return out
}

func reprojectionError(h geometry.Matrix3, s, d geometry.Point2D) float64 {
	p, ok := h.Apply(s)
	if !ok {
		return math.Inf(1)
	}
	return p.Distance(d)
}
