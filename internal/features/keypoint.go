// Package features detects keypoints and computes their descriptors.
package features

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"featalign/internal/failure"
)

// Keypoint is a detected interest point. Coordinates are in pixels of the
// original image, Angle is in degrees in [0, 360).
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
	Octave   int     `json:"octave"`
}

// DescriptorType tags the element type of a descriptor set. The values match
// OpenCV Mat depth codes so they survive a round trip through gocv.
type DescriptorType int

const (
	// DescriptorBinary holds bit-packed bytes compared with Hamming distance.
	DescriptorBinary DescriptorType = 0
	// DescriptorFloat holds little-endian float32 elements compared with L2.
	DescriptorFloat DescriptorType = 5
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorBinary:
		return "binary"
	case DescriptorFloat:
		return "float"
	default:
		return fmt.Sprintf("DescriptorType(%d)", int(t))
	}
}

// ElemSize returns the size in bytes of one element, or 0 for unknown types.
func (t DescriptorType) ElemSize() int {
	switch t {
	case DescriptorBinary:
		return 1
	case DescriptorFloat:
		return 4
	default:
		return 0
	}
}

// DescriptorSet is a row-major matrix of descriptors. Row i describes
// keypoint i. Cols counts elements, not bytes.
type DescriptorSet struct {
	Type DescriptorType
	Rows int
	Cols int
	Data []byte
}

// NewDescriptorSet allocates a zeroed set.
func NewDescriptorSet(t DescriptorType, rows, cols int) DescriptorSet {
	return DescriptorSet{Type: t, Rows: rows, Cols: cols, Data: make([]byte, rows*cols*t.ElemSize())}
}

// Validate checks the type tag and that Data holds exactly Rows*Cols elements.
func (d DescriptorSet) Validate() error {
	es := d.Type.ElemSize()
	if es == 0 {
		return errors.Wrapf(failure.ErrUnsupportedType, "descriptor type %d", int(d.Type))
	}
	if d.Rows < 0 || d.Cols < 0 {
		return errors.Wrapf(failure.ErrInvalidInput, "negative descriptor shape %dx%d", d.Rows, d.Cols)
	}
	if d.Cols > 0 && d.Rows > math.MaxInt/es/d.Cols {
		return errors.Wrapf(failure.ErrInvalidInput, "descriptor shape %dx%d overflows", d.Rows, d.Cols)
	}
	if want := d.Rows * d.Cols * es; len(d.Data) != want {
		return errors.Wrapf(failure.ErrInvalidInput, "descriptor data length %d, want %d", len(d.Data), want)
	}
	return nil
}

// Empty reports whether the set has no rows.
func (d DescriptorSet) Empty() bool {
	return d.Rows == 0
}

// RowBytes returns the byte width of one row.
func (d DescriptorSet) RowBytes() int {
	return d.Cols * d.Type.ElemSize()
}

// Row returns the raw bytes of row i. The slice aliases Data.
func (d DescriptorSet) Row(i int) []byte {
	rb := d.RowBytes()
	return d.Data[i*rb : (i+1)*rb : (i+1)*rb]
}

// FloatRow decodes row i of a float set.
func (d DescriptorSet) FloatRow(i int) []float64 {
	raw := d.Row(i)
	out := make([]float64, d.Cols)
	for j := range out {
		out[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:])))
	}
	return out
}

// setFloatRow encodes v into row i of a float set.
func (d DescriptorSet) setFloatRow(i int, v []float32) {
	raw := d.Row(i)
	for j, f := range v {
		binary.LittleEndian.PutUint32(raw[j*4:], math.Float32bits(f))
	}
}

// Select returns a new set holding the given rows in order.
func (d DescriptorSet) Select(rows []int) DescriptorSet {
	out := NewDescriptorSet(d.Type, len(rows), d.Cols)
	rb := d.RowBytes()
	for i, r := range rows {
		copy(out.Data[i*rb:(i+1)*rb], d.Row(r))
	}
	return out
}
