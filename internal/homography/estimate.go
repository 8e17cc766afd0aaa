// Package homography robustly estimates the planar projective transform
// relating two sets of corresponding points.
package homography

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"featalign/internal/failure"
	"featalign/pkg/geometry"
)

// minSample is the number of pairs that determine a homography.
const minSample = 4

// collinearEps is the sine of the smallest angle three sample points may
// form before the sample counts as degenerate.
const collinearEps = 1e-2

// dblMin is the smallest normal float64.
const dblMin = 0x1p-1022

// Options controls the RANSAC loop.
type Options struct {
	// Confidence is the target probability of having drawn at least one
	// all-inlier sample.
	Confidence float64
	// MaxIterations bounds the number of samples drawn.
	MaxIterations int
	// Seed seeds the sampler. Equal seeds give equal results.
	Seed int64
	// MaxSampleAttempts bounds the draws spent looking for one
	// non-degenerate sample.
	MaxSampleAttempts int
}

// DefaultOptions returns the default RANSAC options.
func DefaultOptions() Options {
	return Options{
		Confidence:        0.995,
		MaxIterations:     2000,
		Seed:              0,
		MaxSampleAttempts: 100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Confidence > 0 && o.Confidence < 1 {
		d.Confidence = o.Confidence
	}
	if o.MaxIterations > 0 {
		d.MaxIterations = o.MaxIterations
	}
	if o.MaxSampleAttempts > 0 {
		d.MaxSampleAttempts = o.MaxSampleAttempts
	}
	d.Seed = o.Seed
	return d
}

// Homography is the result of an estimation. Matrix and Mask are only
// meaningful when Success is true.
type Homography struct {
	Matrix      geometry.Matrix3
	Mask        []bool
	InlierCount int
	Success     bool
	// Iterations is the number of samples scored.
	Iterations int
}

// Inliers returns the indices flagged in Mask.
func (h Homography) Inliers() []int {
	var idx []int
	for i, in := range h.Mask {
		if in {
			idx = append(idx, i)
		}
	}
	return idx
}

// EstimateFlat is Estimate over interleaved x,y coordinate slices.
func EstimateFlat(srcXY, dstXY []float64, threshold float64, opts Options) (Homography, error) {
	if len(srcXY) != len(dstXY) {
		return Homography{}, errors.Wrapf(failure.ErrInvalidInput, "coordinate count mismatch: %d vs %d", len(srcXY), len(dstXY))
	}
	src, ok := geometry.PointsFromFlat(srcXY)
	if !ok {
		return Homography{}, errors.Wrapf(failure.ErrInvalidInput, "odd coordinate count %d", len(srcXY))
	}
	dst, _ := geometry.PointsFromFlat(dstXY)
	return Estimate(src, dst, threshold, opts)
}

// Estimate fits a homography mapping src[i] to dst[i] with RANSAC. Pairs
// whose reprojection error is below threshold pixels count as inliers.
//
// Malformed input returns an error. Data that admits no model (every sample
// degenerate, or fewer than 4 inliers) returns Success false and a nil
// error.
func Estimate(src, dst []geometry.Point2D, threshold float64, opts Options) (Homography, error) {
	if len(src) != len(dst) {
		return Homography{}, errors.Wrapf(failure.ErrInvalidInput, "point count mismatch: %d vs %d", len(src), len(dst))
	}
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return Homography{}, errors.Wrapf(failure.ErrInvalidInput, "threshold %v must be positive", threshold)
	}
	for i := range src {
		if !src[i].IsFinite() || !dst[i].IsFinite() {
			return Homography{}, errors.Wrapf(failure.ErrInvalidInput, "pair %d is not finite", i)
		}
	}
	if len(src) < minSample {
		return Homography{}, errors.Wrapf(failure.ErrInsufficientData, "need %d pairs, got %d", minSample, len(src))
	}

	opts = opts.withDefaults()
	e := &estimator{
		src:       src,
		dst:       dst,
		threshold: threshold,
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
	return e.run(), nil
}

type estimator struct {
	src, dst  []geometry.Point2D
	threshold float64
	opts      Options
	rng       *rand.Rand
}

func (e *estimator) run() Homography {
	n := len(e.src)
	var (
		best      geometry.Matrix3
		bestCount = -1
		bestErr   = math.Inf(1)
		iters     int
	)

	sampleSrc := make([]geometry.Point2D, minSample)
	sampleDst := make([]geometry.Point2D, minSample)
	niters := e.opts.MaxIterations
	for iters = 0; iters < niters; iters++ {
		if !e.drawSample(sampleSrc, sampleDst) {
			if iters == 0 {
				return Homography{}
			}
			break
		}
		h, err := SolveDLT(sampleSrc, sampleDst)
		if err != nil {
			continue
		}
		count, errSum := e.score(h)
		if count > bestCount || (count == bestCount && errSum < bestErr) {
			best, bestCount, bestErr = h, count, errSum
			outlierRatio := float64(n-count) / float64(n)
			niters = updateNumIters(e.opts.Confidence, outlierRatio, minSample, niters)
		}
	}
	if bestCount < minSample {
		return Homography{Iterations: iters}
	}

	mask := e.mask(best)
	if refined, ok := e.refine(mask); ok {
		if count, _ := e.score(refined); count >= bestCount {
			best = refined
			mask = e.mask(best)
		}
	}

	count := 0
	for _, in := range mask {
		if in {
			count++
		}
	}
	if count < minSample {
		return Homography{Iterations: iters}
	}
	return Homography{Matrix: best, Mask: mask, InlierCount: count, Success: true, Iterations: iters}
}

// drawSample fills the buffers with 4 distinct pairs whose source and
// destination quadruples have no three collinear points.
func (e *estimator) drawSample(sampleSrc, sampleDst []geometry.Point2D) bool {
	n := len(e.src)
	var idx [minSample]int
	for attempt := 0; attempt < e.opts.MaxSampleAttempts; attempt++ {
		for i := 0; i < minSample; i++ {
		redraw:
			for {
				idx[i] = e.rng.Intn(n)
				for j := 0; j < i; j++ {
					if idx[j] == idx[i] {
						continue redraw
					}
				}
				break
			}
			sampleSrc[i] = e.src[idx[i]]
			sampleDst[i] = e.dst[idx[i]]
		}
		if !geometry.AnyThreeCollinear(sampleSrc, collinearEps) &&
			!geometry.AnyThreeCollinear(sampleDst, collinearEps) {
			return true
		}
	}
	return false
}

// score counts inliers of h and sums their errors.
func (e *estimator) score(h geometry.Matrix3) (int, float64) {
	count := 0
	var sum float64
	for i := range e.src {
		if d := reprojectionError(h, e.src[i], e.dst[i]); d < e.threshold {
			count++
			sum += d
		}
	}
	return count, sum
}

func (e *estimator) mask(h geometry.Matrix3) []bool {
	m := make([]bool, len(e.src))
	for i := range e.src {
		m[i] = reprojectionError(h, e.src[i], e.dst[i]) < e.threshold
	}
	return m
}

// refine re-solves the DLT over every inlier.
func (e *estimator) refine(mask []bool) (geometry.Matrix3, bool) {
	var src, dst []geometry.Point2D
	for i, in := range mask {
		if in {
			src = append(src, e.src[i])
			dst = append(dst, e.dst[i])
		}
	}
	h, err := SolveDLT(src, dst)
	return h, err == nil
}

// updateNumIters returns the number of iterations needed to draw an
// all-inlier sample of modelPoints pairs with probability p, given outlier
// ratio ep, capped at maxIters.
func updateNumIters(p, ep float64, modelPoints, maxIters int) int {
	p = math.Max(0, math.Min(1, p))
	ep = math.Max(0, math.Min(1, ep))

	num := math.Max(1-p, dblMin)
	denom := 1 - math.Pow(1-ep, float64(modelPoints))
	if denom < dblMin {
		return 0
	}
	num = math.Log(num)
	denom = math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}
