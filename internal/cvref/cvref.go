//go:build withcv
// +build withcv

package cvref

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"featalign/internal/failure"
	"featalign/internal/features"
	"featalign/internal/homography"
	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

// FindHomography estimates a homography with OpenCV's RANSAC. The result
// has the same shape as homography.Estimate's; Iterations is not reported.
func FindHomography(src, dst []geometry.Point2D, threshold float64, opts homography.Options) (homography.Homography, error) {
	if len(src) != len(dst) {
		return homography.Homography{}, errors.Wrapf(failure.ErrInvalidInput,
			"point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return homography.Homography{}, errors.Wrapf(failure.ErrInsufficientData, "need 4 pairs, got %d", len(src))
	}
	if opts.Confidence == 0 {
		opts.Confidence = homography.DefaultOptions().Confidence
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = homography.DefaultOptions().MaxIterations
	}

	srcMat := pointsToMat(src)
	defer srcMat.Close()
	dstMat := pointsToMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	m := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC, threshold, &mask, opts.MaxIterations, opts.Confidence)
	defer m.Close()

	h, ok := matToMatrix(m)
	if !ok {
		return homography.Homography{}, nil
	}
	out := homography.Homography{
		Matrix:  h.Normalized(),
		Mask:    make([]bool, len(src)),
		Success: true,
	}
	for i := range src {
		if mask.GetUCharAt(i, 0) > 0 {
			out.Mask[i] = true
			out.InlierCount++
		}
	}
	return out, nil
}

// WarpPerspective warps src with cv::warpPerspective using bilinear
// interpolation and a transparent constant border.
func WarpPerspective(src fimage.Buffer, h geometry.Matrix3, outW, outH int) (fimage.Buffer, error) {
	if err := fimage.CheckSize(outW, outH); err != nil {
		return fimage.Buffer{}, errors.Wrap(err, "output size")
	}
	in, err := bufferToMat(src)
	if err != nil {
		return fimage.Buffer{}, err
	}
	defer in.Close()
	m := matrixToMat(h)
	defer m.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpPerspective(in, &out, m, image.Pt(outW, outH))
	return matToBuffer(out)
}

// DetectORB runs OpenCV's ORB with default parameters and returns the
// keypoints and 32-byte descriptors in this module's types.
func DetectORB(b fimage.Buffer) ([]features.Keypoint, features.DescriptorSet, error) {
	gray, err := grayMat(b)
	if err != nil {
		return nil, features.DescriptorSet{}, err
	}
	defer gray.Close()

	orb := gocv.NewORB()
	defer orb.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	cvKps, desc := orb.DetectAndCompute(gray, mask)
	defer desc.Close()

	kps := make([]features.Keypoint, len(cvKps))
	for i, k := range cvKps {
		kps[i] = features.Keypoint{
			X:        k.X,
			Y:        k.Y,
			Size:     k.Size,
			Angle:    k.Angle,
			Response: k.Response,
			Octave:   k.Octave,
		}
	}
	if desc.Empty() {
		return kps, features.NewDescriptorSet(features.DescriptorBinary, 0, 32), nil
	}
	set := features.DescriptorSet{
		Type: features.DescriptorBinary,
		Rows: desc.Rows(),
		Cols: desc.Cols(),
		Data: desc.ToBytes(),
	}
	if err := set.Validate(); err != nil {
		return nil, features.DescriptorSet{}, err
	}
	return kps, set, nil
}
