// Package report summarises alignment quality: residual statistics, a JSON
// record and a residual histogram.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"featalign/internal/alignment"
)

// Stats describes a set of reprojection residuals.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summarize computes residual statistics. An empty input gives zero Stats.
func Summarize(residuals []float64) Stats {
	if len(residuals) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)

	s := Stats{Count: len(sorted)}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}

// Report is the machine-readable outcome of one alignment.
type Report struct {
	Reference       string     `json:"reference"`
	Moving          string     `json:"moving"`
	Detector        string     `json:"detector"`
	RefKeypoints    int        `json:"ref_keypoints"`
	MovingKeypoints int        `json:"moving_keypoints"`
	Matches         int        `json:"matches"`
	Inliers         int        `json:"inliers"`
	InlierRatio     float64    `json:"inlier_ratio"`
	Iterations      int        `json:"iterations"`
	Matrix          [9]float64 `json:"matrix"`
	SourceMatrix    [9]float64 `json:"source_matrix"`
	Overlap         float64    `json:"overlap"`
	InlierCoverage  float64    `json:"inlier_coverage"`
	Residuals       Stats      `json:"residuals"`
	DurationMS      float64    `json:"duration_ms"`
}

// FromResult builds a report from an alignment result.
func FromResult(ref, moving, detector string, res *alignment.Result) Report {
	r := Report{
		Reference:       ref,
		Moving:          moving,
		Detector:        detector,
		RefKeypoints:    len(res.RefKeypoints),
		MovingKeypoints: len(res.MovingKeypoints),
		Matches:         len(res.Matches),
		Inliers:         res.Homography.InlierCount,
		Iterations:      res.Homography.Iterations,
		Matrix:          res.Homography.Matrix,
		SourceMatrix:    res.SourceHomography(),
		Overlap:         res.Overlap,
		InlierCoverage:  res.InlierCoverage,
		Residuals:       Summarize(res.Residuals),
	}
	if r.Matches > 0 {
		r.InlierRatio = float64(r.Inliers) / float64(r.Matches)
	}
	t := res.Timings
	r.DurationMS = float64((t.Detect + t.Match + t.Estimate + t.Warp).Microseconds()) / 1000
	return r
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "encode report")
}

// String renders a human-readable summary.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Detector:   %s\n", r.Detector)
	fmt.Fprintf(&sb, "Keypoints:  ref=%d moving=%d\n", r.RefKeypoints, r.MovingKeypoints)
	fmt.Fprintf(&sb, "Matches:    %d (%d inliers, %.1f%%)\n", r.Matches, r.Inliers, 100*r.InlierRatio)
	fmt.Fprintf(&sb, "Iterations: %d\n", r.Iterations)
	fmt.Fprintf(&sb, "Homography:\n")
	for row := 0; row < 3; row++ {
		fmt.Fprintf(&sb, "  [%12.6f %12.6f %12.6f]\n", r.Matrix[row*3], r.Matrix[row*3+1], r.Matrix[row*3+2])
	}
	fmt.Fprintf(&sb, "Residuals:  mean=%.3f std=%.3f median=%.3f p90=%.3f max=%.3f px\n",
		r.Residuals.Mean, r.Residuals.StdDev, r.Residuals.Median, r.Residuals.P90, r.Residuals.Max)
	fmt.Fprintf(&sb, "Overlap:    %.1f%%\n", 100*r.Overlap)
	fmt.Fprintf(&sb, "Coverage:   %.1f%% of reference spanned by inliers\n", 100*r.InlierCoverage)
	return sb.String()
}
