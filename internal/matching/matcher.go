// Package matching pairs descriptors between two images using a brute-force
// nearest-neighbour search with Lowe's ratio test.
package matching

import (
	"math"

	"github.com/pkg/errors"

	"featalign/internal/failure"
	"featalign/internal/features"
	"featalign/pkg/geometry"
)

// Match pairs a query descriptor row with its nearest train row.
type Match struct {
	QueryIndex int     `json:"query"`
	TrainIndex int     `json:"train"`
	Distance   float64 `json:"distance"`
}

// MatchDescriptors returns, in query order, every query row whose nearest
// train row is closer than ratio times the second nearest. When train has a
// single row its nearest neighbour is accepted unconditionally.
func MatchDescriptors(query, train features.DescriptorSet, ratio float64) ([]Match, error) {
	if !(ratio > 0 && ratio <= 1) {
		return nil, errors.Wrapf(failure.ErrInvalidInput, "ratio %v outside (0, 1]", ratio)
	}
	if err := query.Validate(); err != nil {
		return nil, errors.Wrap(err, "query descriptors")
	}
	if err := train.Validate(); err != nil {
		return nil, errors.Wrap(err, "train descriptors")
	}
	if query.Rows == 0 || train.Rows == 0 {
		return []Match{}, nil
	}
	if query.Type != train.Type {
		return nil, errors.Wrapf(failure.ErrUnsupportedType, "descriptor types differ: %v vs %v", query.Type, train.Type)
	}
	if query.Cols != train.Cols {
		return nil, errors.Wrapf(failure.ErrUnsupportedType, "descriptor widths differ: %d vs %d", query.Cols, train.Cols)
	}

	dist, err := newMetric(query, train)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, query.Rows)
	for q := 0; q < query.Rows; q++ {
		best, second := math.Inf(1), math.Inf(1)
		bestIdx := -1
		for t := 0; t < train.Rows; t++ {
			d := dist(q, t)
			switch {
			case d < best:
				second = best
				best, bestIdx = d, t
			case d < second:
				second = d
			}
		}
		if bestIdx < 0 {
			continue
		}
		if train.Rows < 2 || best < ratio*second {
			matches = append(matches, Match{QueryIndex: q, TrainIndex: bestIdx, Distance: best})
		}
	}
	return matches, nil
}

// Correspondences converts matches into parallel source (query) and
// destination (train) point lists.
func Correspondences(queryKps, trainKps []features.Keypoint, matches []Match) (src, dst []geometry.Point2D, err error) {
	src = make([]geometry.Point2D, 0, len(matches))
	dst = make([]geometry.Point2D, 0, len(matches))
	for _, m := range matches {
		if m.QueryIndex < 0 || m.QueryIndex >= len(queryKps) || m.TrainIndex < 0 || m.TrainIndex >= len(trainKps) {
			return nil, nil, errors.Wrapf(failure.ErrInvalidInput, "match %d->%d out of range", m.QueryIndex, m.TrainIndex)
		}
		q, t := queryKps[m.QueryIndex], trainKps[m.TrainIndex]
		src = append(src, geometry.Point2D{X: q.X, Y: q.Y})
		dst = append(dst, geometry.Point2D{X: t.X, Y: t.Y})
	}
	return src, dst, nil
}
