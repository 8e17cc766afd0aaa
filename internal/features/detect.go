package features

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"featalign/internal/failure"
	"featalign/internal/image"
)

// Variant names a detector / descriptor combination.
type Variant int

const (
	// VariantORB is the corner-based detector with 256-bit descriptors.
	VariantORB Variant = iota
	// VariantAKAZE is the scale-invariant detector with binary descriptors.
	VariantAKAZE
	// VariantAKAZEFloat is the scale-invariant detector with float descriptors.
	VariantAKAZEFloat
)

func (v Variant) String() string {
	switch v {
	case VariantORB:
		return "orb"
	case VariantAKAZE:
		return "akaze"
	case VariantAKAZEFloat:
		return "akaze-float"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant maps a detector name and descriptor kind ("binary" or
// "float") to a Variant. ORB only supports binary descriptors.
func ParseVariant(detector, descriptor string) (Variant, error) {
	switch detector {
	case "orb", "ORB":
		if descriptor != "" && descriptor != "binary" {
			return 0, errors.Wrapf(failure.ErrUnsupportedType, "orb has no %q descriptor", descriptor)
		}
		return VariantORB, nil
	case "akaze", "AKAZE":
		switch descriptor {
		case "", "binary":
			return VariantAKAZE, nil
		case "float":
			return VariantAKAZEFloat, nil
		}
		return 0, errors.Wrapf(failure.ErrUnsupportedType, "akaze has no %q descriptor", descriptor)
	}
	return 0, errors.Wrapf(failure.ErrInvalidInput, "unknown detector %q", detector)
}

// Detector finds keypoints in a grey plane and describes them. The returned
// descriptor set has one row per keypoint in the same order.
type Detector interface {
	Detect(gray *Gray) ([]Keypoint, DescriptorSet)
	Variant() Variant
}

// NewDetector returns a detector with default parameters for the variant.
func NewDetector(v Variant) (Detector, error) {
	switch v {
	case VariantORB:
		return NewORB(DefaultORBParams()), nil
	case VariantAKAZE:
		return NewAKAZE(DefaultAKAZEParams()), nil
	case VariantAKAZEFloat:
		p := DefaultAKAZEParams()
		p.Descriptor = AKAZEFloat
		return NewAKAZE(p), nil
	}
	return nil, errors.Wrapf(failure.ErrInvalidInput, "unknown variant %d", int(v))
}

// Detect finds up to maxKeypoints keypoints in buf, strongest first.
func Detect(buf image.Buffer, variant Variant, maxKeypoints int) ([]Keypoint, DescriptorSet, error) {
	det, err := NewDetector(variant)
	if err != nil {
		return nil, DescriptorSet{}, err
	}
	return DetectWith(buf, det, maxKeypoints)
}

// DetectWith runs det on buf and keeps the maxKeypoints strongest results.
// Descriptor rows are reordered with their keypoints.
func DetectWith(buf image.Buffer, det Detector, maxKeypoints int) ([]Keypoint, DescriptorSet, error) {
	if err := buf.Validate(); err != nil {
		return nil, DescriptorSet{}, err
	}
	if maxKeypoints <= 0 {
		return nil, DescriptorSet{}, errors.Wrapf(failure.ErrInvalidInput, "maxKeypoints %d must be positive", maxKeypoints)
	}

	kps, desc := det.Detect(GrayFromBuffer(buf))
	kps, desc = rankAndTruncate(kps, desc, maxKeypoints)
	if kps == nil {
		kps = []Keypoint{}
	}
	return kps, desc, nil
}

// rankAndTruncate stable-sorts by descending response and keeps the first n.
func rankAndTruncate(kps []Keypoint, desc DescriptorSet, n int) ([]Keypoint, DescriptorSet) {
	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return kps[order[a]].Response > kps[order[b]].Response
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]Keypoint, len(order))
	for i, idx := range order {
		out[i] = kps[idx]
	}
	return out, desc.Select(order)
}

// sortCandidates orders candidates by descending response, raster order on
// ties.
func sortCandidates(c []orbCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].response > c[j].response
	})
}
