package features

import (
	"math"
	"math/rand"
)

// ORBParams configures the corner-based detector.
type ORBParams struct {
	Levels        int     // pyramid levels
	ScaleFactor   float64 // downscale ratio between levels
	FastThreshold float64 // FAST intensity threshold, grey levels
	HarrisK       float64
	PatchSize     int
	// MaxPerLevel caps candidates kept per level after non-maximum
	// suppression (strongest first). Zero keeps all of them.
	MaxPerLevel int
}

// DefaultORBParams returns the standard ORB configuration.
func DefaultORBParams() ORBParams {
	return ORBParams{
		Levels:        8,
		ScaleFactor:   1.2,
		FastThreshold: 20,
		HarrisK:       0.04,
		PatchSize:     31,
		MaxPerLevel:   0,
	}
}

const (
	orbDescriptorBytes = 32
	orbHarrisBlock     = 7
	orbCentroidRadius  = 15
	orbPatternRadius   = 13
	orbBlurSigma       = 2
	// orbBorder keeps every rotated pattern sample and the centroid disc
	// inside the level image.
	orbBorder = 20
)

// fastCircle is the 16-pixel Bresenham circle of radius 3, clockwise from
// the top.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// orbPattern holds 256 point pairs (x1, y1, x2, y2) for the rBRIEF test.
var orbPattern = makeORBPattern()

// makeORBPattern draws an isotropic Gaussian pattern (sigma = patch/5) from
// a fixed seed, clamped to the patch radius.
func makeORBPattern() [256][4]int {
	rng := rand.New(rand.NewSource(0x0b5eed))
	sigma := 31.0 / 5
	draw := func() int {
		for {
			v := int(math.Round(rng.NormFloat64() * sigma))
			if v >= -orbPatternRadius && v <= orbPatternRadius {
				return v
			}
		}
	}
	var p [256][4]int
	for i := range p {
		for {
			p[i] = [4]int{draw(), draw(), draw(), draw()}
			if p[i][0] != p[i][2] || p[i][1] != p[i][3] {
				break
			}
		}
	}
	return p
}

// ORB is the oriented FAST / rotated BRIEF detector.
type ORB struct {
	params ORBParams
}

// NewORB creates an ORB detector. Zero-valued fields take their defaults.
func NewORB(p ORBParams) *ORB {
	d := DefaultORBParams()
	if p.Levels > 0 {
		d.Levels = p.Levels
	}
	if p.ScaleFactor > 1 {
		d.ScaleFactor = p.ScaleFactor
	}
	if p.FastThreshold > 0 {
		d.FastThreshold = p.FastThreshold
	}
	if p.HarrisK > 0 {
		d.HarrisK = p.HarrisK
	}
	if p.PatchSize > 0 {
		d.PatchSize = p.PatchSize
	}
	if p.MaxPerLevel > 0 {
		d.MaxPerLevel = p.MaxPerLevel
	}
	return &ORB{params: d}
}

// Variant implements Detector.
func (o *ORB) Variant() Variant {
	return VariantORB
}

// Params returns the effective parameters.
func (o *ORB) Params() ORBParams {
	return o.params
}

type orbCandidate struct {
	x, y     int
	response float64
}

// Detect implements Detector.
func (o *ORB) Detect(gray *Gray) ([]Keypoint, DescriptorSet) {
	if gray.IsUniform() {
		return nil, NewDescriptorSet(DescriptorBinary, 0, orbDescriptorBytes)
	}
	var kps []Keypoint
	var rows [][orbDescriptorBytes]byte

	scale := 1.0
	for level := 0; level < o.params.Levels; level++ {
		w := int(math.Round(float64(gray.Width) / scale))
		h := int(math.Round(float64(gray.Height) / scale))
		if w <= 2*orbBorder || h <= 2*orbBorder {
			break
		}
		img := gray
		if level > 0 {
			img = gray.Resize(w, h)
		}

		cands := o.detectLevel(img)
		if len(cands) > 0 {
			smooth := img.Blur(orbBlurSigma)
			for _, c := range cands {
				angle := centroidAngle(img, c.x, c.y)
				kps = append(kps, Keypoint{
					X:        toLevel0(float64(c.x), gray.Width, w),
					Y:        toLevel0(float64(c.y), gray.Height, h),
					Size:     float64(o.params.PatchSize) * scale,
					Angle:    angle,
					Response: c.response,
					Octave:   level,
				})
				rows = append(rows, briefDescriptor(smooth, c.x, c.y, angle))
			}
		}
		scale *= o.params.ScaleFactor
	}

	desc := NewDescriptorSet(DescriptorBinary, len(kps), orbDescriptorBytes)
	for i := range rows {
		copy(desc.Row(i), rows[i][:])
	}
	return kps, desc
}

// detectLevel runs FAST, scores survivors with Harris and applies 3x3
// non-maximum suppression.
func (o *ORB) detectLevel(img *Gray) []orbCandidate {
	w, h := img.Width, img.Height
	score := make([]float64, w*h)
	isCorner := make([]bool, w*h)

	for y := orbBorder; y < h-orbBorder; y++ {
		for x := orbBorder; x < w-orbBorder; x++ {
			if isFastCorner(img, x, y, o.params.FastThreshold) {
				i := y*w + x
				isCorner[i] = true
				score[i] = harrisResponse(img, x, y, o.params.HarrisK)
			}
		}
	}

	var out []orbCandidate
	for y := orbBorder; y < h-orbBorder; y++ {
		for x := orbBorder; x < w-orbBorder; x++ {
			i := y*w + x
			if !isCorner[i] || !localMax(score, isCorner, w, x, y) {
				continue
			}
			out = append(out, orbCandidate{x: x, y: y, response: score[i]})
		}
	}

	if o.params.MaxPerLevel > 0 && len(out) > o.params.MaxPerLevel {
		sortCandidates(out)
		out = out[:o.params.MaxPerLevel]
	}
	return out
}

// localMax reports whether (x, y) beats every corner neighbour. Ties are
// broken in raster order so exactly one of two equal neighbours survives.
func localMax(score []float64, isCorner []bool, w, x, y int) bool {
	i := y*w + x
	v := score[i]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			j := (y+dy)*w + x + dx
			if !isCorner[j] {
				continue
			}
			if score[j] > v || (score[j] == v && j < i) {
				return false
			}
		}
	}
	return true
}

// isFastCorner applies the FAST-9 segment test.
func isFastCorner(img *Gray, x, y int, t float64) bool {
	p := img.Pix[y*img.Width+x]
	var state [16]int8
	for i, off := range fastCircle {
		v := img.Pix[(y+off[1])*img.Width+x+off[0]]
		switch {
		case v > p+t:
			state[i] = 1
		case v < p-t:
			state[i] = -1
		}
	}

	// Walk the circle twice so runs that wrap are counted.
	run, prev := 0, int8(0)
	for i := 0; i < 32; i++ {
		s := state[i%16]
		if s != 0 && s == prev {
			run++
		} else if s != 0 {
			run = 1
		} else {
			run = 0
		}
		prev = s
		if run >= 9 {
			return true
		}
	}
	return false
}

// harrisResponse computes det(M) - k*trace(M)^2 of the structure tensor
// summed over a 7x7 block of Sobel derivatives.
func harrisResponse(img *Gray, x, y int, k float64) float64 {
	const r = orbHarrisBlock / 2
	// Normalize so responses are independent of the block size and the
	// 0-255 range.
	const norm = 1.0 / (4 * orbHarrisBlock * 255)
	var a, b, c float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			px, py := x+dx, y+dy
			ix := (img.At(px+1, py-1) + 2*img.At(px+1, py) + img.At(px+1, py+1) -
				img.At(px-1, py-1) - 2*img.At(px-1, py) - img.At(px-1, py+1)) * norm
			iy := (img.At(px-1, py+1) + 2*img.At(px, py+1) + img.At(px+1, py+1) -
				img.At(px-1, py-1) - 2*img.At(px, py-1) - img.At(px+1, py-1)) * norm
			a += ix * ix
			b += iy * iy
			c += ix * iy
		}
	}
	return a*b - c*c - k*(a+b)*(a+b)
}

// centroidAngle returns the intensity-centroid orientation in degrees.
func centroidAngle(img *Gray, x, y int) float64 {
	var m01, m10 float64
	for dy := -orbCentroidRadius; dy <= orbCentroidRadius; dy++ {
		for dx := -orbCentroidRadius; dx <= orbCentroidRadius; dx++ {
			if dx*dx+dy*dy > orbCentroidRadius*orbCentroidRadius {
				continue
			}
			v := img.At(x+dx, y+dy)
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return normalizeDegrees(math.Atan2(m01, m10) * 180 / math.Pi)
}

// briefDescriptor evaluates the rotated pattern around (x, y).
func briefDescriptor(smooth *Gray, x, y int, angleDeg float64) [orbDescriptorBytes]byte {
	var out [orbDescriptorBytes]byte
	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	at := func(px, py int) float64 {
		rx := int(math.Round(float64(px)*cos - float64(py)*sin))
		ry := int(math.Round(float64(px)*sin + float64(py)*cos))
		return smooth.At(x+rx, y+ry)
	}
	for i, p := range orbPattern {
		if at(p[0], p[1]) < at(p[2], p[3]) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func normalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}
