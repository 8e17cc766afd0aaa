package alignment

import (
	"math"

	"github.com/sirupsen/logrus"

	"featalign/internal/features"
	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

// detectScaled runs det on a copy of buf no larger than opts.MaxDimension
// and maps keypoints back to full-resolution coordinates.
func detectScaled(buf fimage.Buffer, det features.Detector, opts Options, log logrus.FieldLogger) ([]features.Keypoint, features.DescriptorSet, error) {
	small, scale := fimage.Downscale(buf, opts.MaxDimension)
	kps, desc, err := features.DetectWith(small, det, opts.MaxKeypoints)
	if err != nil {
		return nil, features.DescriptorSet{}, err
	}
	if scale != 1 {
		up := fullResolution(buf.Width, buf.Height, small.Width, small.Height)
		for i := range kps {
			p, _ := up.Apply(geometry.Point2D{X: kps[i].X, Y: kps[i].Y})
			kps[i].X, kps[i].Y = p.X, p.Y
			kps[i].Size /= scale
		}
	}
	log.WithFields(logrus.Fields{
		"detector":  det.Variant().String(),
		"keypoints": len(kps),
		"scale":     scale,
	}).Debug("Detected features")
	return kps, desc, nil
}

// fullResolution maps pixel-centre coordinates of a w x h resample back onto
// the fullW x fullH original.
func fullResolution(fullW, fullH, w, h int) geometry.Matrix3 {
	return geometry.Translation(-0.5, -0.5).
		Compose(geometry.Scaling(float64(fullW)/float64(w), float64(fullH)/float64(h))).
		Compose(geometry.Translation(0.5, 0.5))
}

// inlierPoints returns the matched coordinates flagged as inliers.
func inlierPoints(res *Result) (src, dst []geometry.Point2D) {
	for i, in := range res.Homography.Mask {
		if in {
			src = append(src, res.MovingPoints[i])
			dst = append(dst, res.RefPoints[i])
		}
	}
	return src, dst
}

func inlierCoverage(pts []geometry.Point2D, width, height int) float64 {
	hull := geometry.ConvexHull(pts)
	return math.Abs(geometry.PolygonArea(hull)) / float64(width*height)
}
