package geometry

import (
	"math"
)

// Matrix3 is a row-major 3x3 projective transform acting on homogeneous
// coordinates (x, y, 1).
// [m0 m1 m2]
// [m3 m4 m5]
// [m6 m7 m8]
type Matrix3 [9]float64

// singularEps is the determinant threshold, relative to the largest element
// cubed, below which a matrix is treated as non-invertible.
const singularEps = 1e-12

// Identity returns the identity transform.
func Identity() Matrix3 {
	return Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) Matrix3 {
	return Matrix3{1, 0, tx, 0, 1, ty, 0, 0, 1}
}

// Rotation returns a rotation transform around the origin. Positive angles
// rotate from +x towards +y.
func Rotation(radians float64) Matrix3 {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return Matrix3{cos, -sin, 0, sin, cos, 0, 0, 0, 1}
}

// Scaling returns a scaling transform.
func Scaling(sx, sy float64) Matrix3 {
	return Matrix3{sx, 0, 0, 0, sy, 0, 0, 0, 1}
}

// MatrixFromSlice copies a 9-element row-major slice into a Matrix3.
func MatrixFromSlice(v []float64) (Matrix3, bool) {
	var m Matrix3
	if len(v) != 9 {
		return m, false
	}
	copy(m[:], v)
	return m, true
}

// At returns the element at row r, column c.
func (m Matrix3) At(r, c int) float64 {
	return m[r*3+c]
}

// Apply applies the transform to a point. The second return value is false
// when the point maps to infinity.
func (m Matrix3) Apply(p Point2D) (Point2D, bool) {
	w := m[6]*p.X + m[7]*p.Y + m[8]
	if math.Abs(w) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (m[0]*p.X + m[1]*p.Y + m[2]) / w,
		Y: (m[3]*p.X + m[4]*p.Y + m[5]) / w,
	}, true
}

// Compose returns this transform composed with another (m * other), so that
// the result applies other first.
func (m Matrix3) Compose(other Matrix3) Matrix3 {
	var out Matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = m[r*3]*other[c] + m[r*3+1]*other[3+c] + m[r*3+2]*other[6+c]
		}
	}
	return out
}

// Det returns the determinant.
func (m Matrix3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// MaxAbs returns the largest absolute element.
func (m Matrix3) MaxAbs() float64 {
	var v float64
	for _, e := range m {
		if a := math.Abs(e); a > v {
			v = a
		}
	}
	return v
}

// Inverse returns the inverse transform, if it exists.
func (m Matrix3) Inverse() (Matrix3, bool) {
	scale := m.MaxAbs()
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Matrix3{}, false
	}
	det := m.Det()
	if math.Abs(det) <= singularEps*scale*scale*scale {
		return Matrix3{}, false
	}

	invDet := 1.0 / det
	return Matrix3{
		(m[4]*m[8] - m[5]*m[7]) * invDet,
		(m[2]*m[7] - m[1]*m[8]) * invDet,
		(m[1]*m[5] - m[2]*m[4]) * invDet,
		(m[5]*m[6] - m[3]*m[8]) * invDet,
		(m[0]*m[8] - m[2]*m[6]) * invDet,
		(m[2]*m[3] - m[0]*m[5]) * invDet,
		(m[3]*m[7] - m[4]*m[6]) * invDet,
		(m[1]*m[6] - m[0]*m[7]) * invDet,
		(m[0]*m[4] - m[1]*m[3]) * invDet,
	}, true
}

// Normalized returns the matrix scaled so the last element is 1. Matrices
// whose last element is (near) zero are scaled to unit Frobenius norm instead.
func (m Matrix3) Normalized() Matrix3 {
	if math.Abs(m[8]) > 1e-12 {
		return m.Scale(1 / m[8])
	}
	var sum float64
	for _, e := range m {
		sum += e * e
	}
	if sum == 0 {
		return m
	}
	return m.Scale(1 / math.Sqrt(sum))
}

// Scale multiplies every element by f.
func (m Matrix3) Scale(f float64) Matrix3 {
	for i := range m {
		m[i] *= f
	}
	return m
}

// IsFinite reports whether every element is a finite number.
func (m Matrix3) IsFinite() bool {
	for _, e := range m {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return false
		}
	}
	return true
}

// Slice returns the elements as a fresh row-major slice.
func (m Matrix3) Slice() []float64 {
	out := make([]float64, 9)
	copy(out, m[:])
	return out
}
