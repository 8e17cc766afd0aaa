// Package alignment registers one image onto another: it detects and
// matches features, estimates a homography and warps the moving image into
// the reference frame.
package alignment

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"featalign/internal/failure"
	"featalign/internal/features"
	"featalign/internal/homography"
	fimage "featalign/internal/image"
	"featalign/internal/matching"
	"featalign/internal/warp"
	"featalign/pkg/geometry"
)

// Options configures the alignment process.
type Options struct {
	Variant      features.Variant
	MaxKeypoints int
	Ratio        float64 // ratio-test threshold
	Threshold    float64 // RANSAC reprojection threshold in full-resolution pixels
	Homography   homography.Options
	// MaxDimension downscales both images for detection so neither side
	// exceeds it. Zero detects at full resolution.
	MaxDimension int
	FlipMoving   bool // mirror the moving image horizontally first
	// RotateMoving rotates the moving image clockwise by 0, 90, 180 or 270
	// degrees after any flip.
	RotateMoving int
	Logger       logrus.FieldLogger
}

// DefaultOptions returns default alignment options.
func DefaultOptions() Options {
	return Options{
		Variant:      features.VariantORB,
		MaxKeypoints: 2000,
		Ratio:        0.75,
		Threshold:    3,
		Homography:   homography.DefaultOptions(),
	}
}

// Timings records how long each stage took.
type Timings struct {
	Detect   time.Duration
	Match    time.Duration
	Estimate time.Duration
	Warp     time.Duration
}

// Result holds everything produced by Align.
type Result struct {
	RefKeypoints    []features.Keypoint
	MovingKeypoints []features.Keypoint
	// Matches index MovingKeypoints (query) and RefKeypoints (train).
	Matches    []matching.Match
	Homography homography.Homography
	// Aligned is the moving image warped into the reference frame.
	Aligned fimage.Buffer
	// Moving is the moving image after FlipMoving and RotateMoving. Keypoints
	// and Homography refer to it.
	Moving fimage.Buffer
	// PreTransform maps original moving pixels onto Moving.
	PreTransform geometry.Matrix3
	// MovingPoints and RefPoints are the matched coordinates, parallel to
	// Matches and to Homography.Mask.
	MovingPoints []geometry.Point2D
	RefPoints    []geometry.Point2D
	MeanError    float64   // mean reprojection error over inliers
	Residuals    []float64 // per-inlier reprojection errors
	Overlap      float64   // fraction of the reference covered by the moving image
	// InlierCoverage is the area of the convex hull of the inlier reference
	// points as a fraction of the reference image.
	InlierCoverage float64
	Timings      Timings
}

// SourceHomography maps pixels of the moving image as loaded, before any
// flip or rotation, into the reference frame. A zero PreTransform counts as
// the identity.
func (r *Result) SourceHomography() geometry.Matrix3 {
	if r.PreTransform == (geometry.Matrix3{}) {
		return r.Homography.Matrix
	}
	return r.Homography.Matrix.Compose(r.PreTransform).Normalized()
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Align registers moving onto ref.
func Align(ref, moving fimage.Buffer, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = discardLogger()
	}
	if err := ref.Validate(); err != nil {
		return nil, errors.Wrap(err, "reference image")
	}
	if err := moving.Validate(); err != nil {
		return nil, errors.Wrap(err, "moving image")
	}

	det, err := features.NewDetector(opts.Variant)
	if err != nil {
		return nil, err
	}

	if !ValidRotation(opts.RotateMoving) {
		return nil, errors.Wrapf(failure.ErrInvalidInput, "rotation %d is not a multiple of 90 in [0, 270]", opts.RotateMoving)
	}

	res := &Result{PreTransform: geometry.Identity()}
	if opts.FlipMoving {
		moving = FlipHorizontal(moving)
		res.PreTransform = FlipMatrix(moving.Width)
	}
	if opts.RotateMoving != 0 {
		res.PreTransform = RotationMatrix(opts.RotateMoving, moving.Width, moving.Height).Compose(res.PreTransform)
		moving = RotateImage(moving, opts.RotateMoving)
	}
	res.Moving = moving

	start := time.Now()
	var refDesc, movDesc features.DescriptorSet
	res.RefKeypoints, refDesc, err = detectScaled(ref, det, opts, log.WithField("image", "reference"))
	if err != nil {
		return nil, errors.Wrap(err, "reference detection")
	}
	res.MovingKeypoints, movDesc, err = detectScaled(moving, det, opts, log.WithField("image", "moving"))
	if err != nil {
		return nil, errors.Wrap(err, "moving detection")
	}
	res.Timings.Detect = time.Since(start)

	start = time.Now()
	res.Matches, err = matching.MatchDescriptors(movDesc, refDesc, opts.Ratio)
	if err != nil {
		return nil, errors.Wrap(err, "match")
	}
	res.MovingPoints, res.RefPoints, err = matching.Correspondences(res.MovingKeypoints, res.RefKeypoints, res.Matches)
	if err != nil {
		return nil, err
	}
	res.Timings.Match = time.Since(start)
	log.WithFields(logrus.Fields{
		"matches":  len(res.Matches),
		"duration": res.Timings.Match,
	}).Debug("Matched descriptors")

	start = time.Now()
	res.Homography, err = homography.Estimate(res.MovingPoints, res.RefPoints, opts.Threshold, opts.Homography)
	if err != nil {
		return nil, errors.Wrap(err, "estimate homography")
	}
	res.Timings.Estimate = time.Since(start)
	if !res.Homography.Success {
		return nil, errors.Wrapf(failure.ErrInsufficientData, "no consistent homography among %d matches", len(res.Matches))
	}
	log.WithFields(logrus.Fields{
		"inliers":    res.Homography.InlierCount,
		"iterations": res.Homography.Iterations,
		"duration":   res.Timings.Estimate,
	}).Debug("Estimated homography")

	start = time.Now()
	res.Aligned, err = warp.WarpPerspective(moving, res.Homography.Matrix, ref.Width, ref.Height)
	if err != nil {
		return nil, errors.Wrap(err, "warp")
	}
	res.Timings.Warp = time.Since(start)

	inSrc, inDst := inlierPoints(res)
	res.Residuals = homography.ReprojectionErrors(res.Homography.Matrix, inSrc, inDst)
	res.MeanError = CalculateAlignmentError(inSrc, inDst, res.Homography.Matrix)
	res.InlierCoverage = inlierCoverage(inDst, ref.Width, ref.Height)
	res.Overlap, err = warp.OverlapRatio(res.Homography.Matrix, moving.Width, moving.Height, ref.Width, ref.Height)
	if err != nil {
		log.WithError(err).Warn("Could not compute overlap")
	}

	log.WithFields(logrus.Fields{
		"inliers":    res.Homography.InlierCount,
		"mean_error": res.MeanError,
		"overlap":    res.Overlap,
		"coverage":   res.InlierCoverage,
	}).Info("Alignment complete")
	return res, nil
}
