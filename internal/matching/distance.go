package matching

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/steakknife/hamming"
	"gonum.org/v1/gonum/floats"

	"featalign/internal/failure"
	"featalign/internal/features"
)

// metric returns the distance between query row q and train row t.
type metric func(q, t int) float64

func newMetric(query, train features.DescriptorSet) (metric, error) {
	switch query.Type {
	case features.DescriptorBinary:
		return func(q, t int) float64 {
			return float64(Hamming(query.Row(q), train.Row(t)))
		}, nil
	case features.DescriptorFloat:
		qrows := decodeRows(query)
		trows := decodeRows(train)
		return func(q, t int) float64 {
			return floats.Distance(qrows[q], trows[t], 2)
		}, nil
	}
	return nil, errors.Wrapf(failure.ErrUnsupportedType, "no metric for %v", query.Type)
}

func decodeRows(d features.DescriptorSet) [][]float64 {
	rows := make([][]float64, d.Rows)
	for i := range rows {
		rows[i] = d.FloatRow(i)
	}
	return rows
}

// Hamming counts differing bits between two equal-length byte strings.
func Hamming(a, b []byte) int {
	n := 0
	i := 0
	for ; i+8 <= len(a); i += 8 {
		n += hamming.CountBitsUint64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < len(a); i++ {
		n += hamming.CountBitsByte(a[i] ^ b[i])
	}
	return n
}
