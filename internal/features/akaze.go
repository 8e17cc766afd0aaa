package features

import (
	"math"
)

// AKAZEDescriptor selects the descriptor computed by the AKAZE detector.
type AKAZEDescriptor int

const (
	// AKAZEBinary is the 486-bit modified local difference binary descriptor.
	AKAZEBinary AKAZEDescriptor = iota
	// AKAZEFloat is a 64-element gradient-sum descriptor (float32).
	AKAZEFloat
)

func (d AKAZEDescriptor) String() string {
	if d == AKAZEFloat {
		return "float"
	}
	return "binary"
}

// AKAZEParams configures the scale-invariant detector.
type AKAZEParams struct {
	Descriptor  AKAZEDescriptor
	Octaves     int
	Sublevels   int
	Sigma0      float64 // base scale of the first level
	Threshold   float64 // minimum scale-normalized Hessian response
	KPercentile float64 // gradient histogram percentile for the contrast factor
}

// DefaultAKAZEParams returns the standard AKAZE configuration with binary
// descriptors.
func DefaultAKAZEParams() AKAZEParams {
	return AKAZEParams{
		Descriptor:  AKAZEBinary,
		Octaves:     4,
		Sublevels:   4,
		Sigma0:      1.6,
		Threshold:   0.001,
		KPercentile: 0.7,
	}
}

const (
	akazeHistogramBins = 300
	akazeFEDTauMax     = 0.25
	akazeMinLevelSize  = 24
	akazeBinaryBits    = 486
	akazeBinaryBytes   = (akazeBinaryBits + 7) / 8
	akazeFloatCols     = 64
	akazePatternSize   = 10
	akazeOrientSamples = 6
	akazeOrientStep    = 0.15
)

// AKAZE detects blob-like features in a nonlinear diffusion scale space.
type AKAZE struct {
	params AKAZEParams
}

// NewAKAZE creates an AKAZE detector. Zero-valued numeric fields take their
// defaults.
func NewAKAZE(p AKAZEParams) *AKAZE {
	d := DefaultAKAZEParams()
	d.Descriptor = p.Descriptor
	if p.Octaves > 0 {
		d.Octaves = p.Octaves
	}
	if p.Sublevels > 0 {
		d.Sublevels = p.Sublevels
	}
	if p.Sigma0 > 0 {
		d.Sigma0 = p.Sigma0
	}
	if p.Threshold > 0 {
		d.Threshold = p.Threshold
	}
	if p.KPercentile > 0 && p.KPercentile < 1 {
		d.KPercentile = p.KPercentile
	}
	return &AKAZE{params: d}
}

// Variant implements Detector.
func (a *AKAZE) Variant() Variant {
	if a.params.Descriptor == AKAZEFloat {
		return VariantAKAZEFloat
	}
	return VariantAKAZE
}

// Params returns the effective parameters.
func (a *AKAZE) Params() AKAZEParams {
	return a.params
}

// descriptorShape returns the type and column count of the output set.
func (a *AKAZE) descriptorShape() (DescriptorType, int) {
	if a.params.Descriptor == AKAZEFloat {
		return DescriptorFloat, akazeFloatCols
	}
	return DescriptorBinary, akazeBinaryBytes
}

// akazeLevel is one image of the nonlinear scale space.
type akazeLevel struct {
	octave    int
	sublevel  int
	esigma    float64 // scale in level-0 pixels
	etime     float64
	sigmaSize float64 // scale in this level's pixels
	lt        *Gray
	lx, ly    *Gray
	ldet      *Gray
}

// Detect implements Detector.
func (a *AKAZE) Detect(gray *Gray) ([]Keypoint, DescriptorSet) {
	t, cols := a.descriptorShape()
	if gray.IsUniform() {
		return nil, NewDescriptorSet(t, 0, cols)
	}
	img := gray.Scaled(1.0 / 255)

	k := contrastFactor(img.Blur(1.0), a.params.KPercentile)
	if k == 0 {
		return nil, NewDescriptorSet(t, 0, cols)
	}

	levels := a.buildScaleSpace(img, k)
	var kps []Keypoint
	var binRows [][akazeBinaryBytes]byte
	var floatRows [][akazeFloatCols]float32

	for i, lv := range levels {
		var prev, next *akazeLevel
		if i > 0 && levels[i-1].octave == lv.octave {
			prev = levels[i-1]
		}
		if i+1 < len(levels) && levels[i+1].octave == lv.octave {
			next = levels[i+1]
		}
		for _, ext := range a.findExtrema(lv, prev, next) {
			angle := dominantOrientation(lv, ext.X, ext.Y)
			kps = append(kps, Keypoint{
				X:        toLevel0(ext.X, gray.Width, lv.lt.Width),
				Y:        toLevel0(ext.Y, gray.Height, lv.lt.Height),
				Size:     3 * lv.esigma,
				Angle:    angle * 180 / math.Pi,
				Response: ext.Response,
				Octave:   lv.octave,
			})
			if a.params.Descriptor == AKAZEFloat {
				floatRows = append(floatRows, msurfDescriptor(lv, ext.X, ext.Y, angle))
			} else {
				binRows = append(binRows, mldbDescriptor(lv, ext.X, ext.Y, angle))
			}
		}
	}
	for i := range kps {
		kps[i].Angle = normalizeDegrees(kps[i].Angle)
	}

	desc := NewDescriptorSet(t, len(kps), cols)
	for i := range binRows {
		copy(desc.Row(i), binRows[i][:])
	}
	for i := range floatRows {
		desc.setFloatRow(i, floatRows[i][:])
	}
	return kps, desc
}

// contrastFactor returns the given percentile of the gradient magnitude
// histogram, or 0 when the image has no gradient at all.
func contrastFactor(smooth *Gray, percentile float64) float64 {
	lx, ly := smooth.Scharr()
	w, h := smooth.Width, smooth.Height

	var hmax float64
	mag := make([]float64, 0, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := math.Hypot(lx.Pix[i], ly.Pix[i])
			mag = append(mag, m)
			if m > hmax {
				hmax = m
			}
		}
	}
	if hmax == 0 {
		return 0
	}

	var hist [akazeHistogramBins]int
	npoints := 0
	for _, m := range mag {
		if m == 0 {
			continue
		}
		bin := int(math.Floor(akazeHistogramBins * m / hmax))
		if bin >= akazeHistogramBins {
			bin = akazeHistogramBins - 1
		}
		hist[bin]++
		npoints++
	}

	threshold := int(float64(npoints) * percentile)
	acc, bin := 0, 0
	for bin = 0; bin < akazeHistogramBins; bin++ {
		acc += hist[bin]
		if acc >= threshold {
			break
		}
	}
	if bin >= akazeHistogramBins {
		return 0.03
	}
	k := hmax * float64(bin) / akazeHistogramBins
	if k == 0 {
		// All mass in the first bin: fall back to its upper edge.
		k = hmax / akazeHistogramBins
	}
	return k
}

// buildScaleSpace evolves the image through every level. The contrast
// factor decays by 0.75 per octave.
func (a *AKAZE) buildScaleSpace(img *Gray, k float64) []*akazeLevel {
	var levels []*akazeLevel
	var lt *Gray
	prevTime := 0.0

	for o := 0; o < a.params.Octaves; o++ {
		if o > 0 {
			w, h := lt.Width/2, lt.Height/2
			if w < akazeMinLevelSize || h < akazeMinLevelSize {
				break
			}
			lt = lt.Resize(w, h)
			k *= 0.75
		}
		ratio := math.Pow(2, float64(o))
		for s := 0; s < a.params.Sublevels; s++ {
			esigma := a.params.Sigma0 * math.Pow(2, float64(o)+float64(s)/float64(a.params.Sublevels))
			etime := 0.5 * esigma * esigma

			if lt == nil {
				lt = img.Blur(a.params.Sigma0)
			} else {
				lt = diffuse(lt, k, etime-prevTime)
			}
			prevTime = etime

			lv := &akazeLevel{
				octave:    o,
				sublevel:  s,
				esigma:    esigma,
				etime:     etime,
				sigmaSize: esigma / ratio,
				lt:        lt,
			}
			lv.lx, lv.ly = lt.Gradients()
			lv.ldet = hessianDeterminant(lv.lx, lv.ly, lv.sigmaSize)
			levels = append(levels, lv)
		}
	}
	return levels
}

// diffuse runs one FED cycle of Perona-Malik g2 diffusion over total time t.
func diffuse(lt *Gray, k, t float64) *Gray {
	if t <= 0 {
		return lt
	}
	lx, ly := lt.Blur(1.0).Scharr()
	flow := NewGray(lt.Width, lt.Height)
	k2 := k * k
	for i := range flow.Pix {
		flow.Pix[i] = 1 / (1 + (lx.Pix[i]*lx.Pix[i]+ly.Pix[i]*ly.Pix[i])/k2)
	}

	cur := NewGray(lt.Width, lt.Height)
	copy(cur.Pix, lt.Pix)
	for _, tau := range fedSteps(t, akazeFEDTauMax) {
		cur = diffusionStep(cur, flow, tau)
	}
	return cur
}

// fedSteps returns the step sizes of one Fast Explicit Diffusion cycle that
// reaches time t with maximal stable step tauMax.
func fedSteps(t, tauMax float64) []float64 {
	n := int(math.Ceil(math.Sqrt(3*t/tauMax+0.25) - 0.5 - 1e-8))
	if n < 1 {
		n = 1
	}
	scale := 3 * t / (tauMax * float64(n*n+n))
	c := 1 / float64(4*n+2)
	d := scale * tauMax / 2
	tau := make([]float64, n)
	for i := range tau {
		h := math.Cos(math.Pi * float64(2*i+1) * c)
		tau[i] = d / (h * h)
	}
	return tau
}

// diffusionStep applies one explicit nonlinear diffusion step with
// replicated borders.
func diffusionStep(l, c *Gray, tau float64) *Gray {
	w, h := l.Width, l.Height
	out := NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := l.Pix[y*w+x]
			cv := c.Pix[y*w+x]
			xpos := (cv + c.At(x+1, y)) * (l.At(x+1, y) - v)
			xneg := (c.At(x-1, y) + cv) * (v - l.At(x-1, y))
			ypos := (cv + c.At(x, y+1)) * (l.At(x, y+1) - v)
			yneg := (c.At(x, y-1) + cv) * (v - l.At(x, y-1))
			out.Pix[y*w+x] = v + 0.5*tau*(xpos-xneg+ypos-yneg)
		}
	}
	return out
}

// hessianDeterminant computes the scale-normalized determinant of the
// Hessian from first derivatives.
func hessianDeterminant(lx, ly *Gray, sigma float64) *Gray {
	lxx, lxy := lx.Gradients()
	_, lyy := ly.Gradients()
	norm := sigma * sigma * sigma * sigma
	out := NewGray(lx.Width, lx.Height)
	for i := range out.Pix {
		out.Pix[i] = (lxx.Pix[i]*lyy.Pix[i] - lxy.Pix[i]*lxy.Pix[i]) * norm
	}
	return out
}

type akazeExtremum struct {
	X, Y     float64
	Response float64
}

// findExtrema returns sub-pixel refined maxima of the response that beat
// their 3x3 neighbourhood in this level and in the adjacent levels of the
// same octave.
func (a *AKAZE) findExtrema(lv, prev, next *akazeLevel) []akazeExtremum {
	r := lv.ldet
	w, h := r.Width, r.Height
	border := int(math.Ceil(lv.sigmaSize)) + 2

	var out []akazeExtremum
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			v := r.Pix[y*w+x]
			if v <= a.params.Threshold {
				continue
			}
			if !beatsNeighbours(r, x, y, v, true) {
				continue
			}
			if prev != nil && !beatsNeighbours(prev.ldet, x, y, v, false) {
				continue
			}
			if next != nil && !beatsNeighbours(next.ldet, x, y, v, false) {
				continue
			}

			dx := (r.At(x+1, y) - r.At(x-1, y)) / 2
			dy := (r.At(x, y+1) - r.At(x, y-1)) / 2
			dxx := r.At(x+1, y) + r.At(x-1, y) - 2*v
			dyy := r.At(x, y+1) + r.At(x, y-1) - 2*v
			dxy := (r.At(x+1, y+1) + r.At(x-1, y-1) - r.At(x-1, y+1) - r.At(x+1, y-1)) / 4
			det := dxx*dyy - dxy*dxy
			if det == 0 {
				continue
			}
			ox := -(dyy*dx - dxy*dy) / det
			oy := -(dxx*dy - dxy*dx) / det
			if math.Abs(ox) > 1 || math.Abs(oy) > 1 {
				continue
			}
			out = append(out, akazeExtremum{X: float64(x) + ox, Y: float64(y) + oy, Response: v})
		}
	}
	return out
}

// beatsNeighbours reports whether v exceeds the 3x3 neighbourhood of (x, y)
// in r, excluding the centre when skipCentre is set.
func beatsNeighbours(r *Gray, x, y int, v float64, skipCentre bool) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if skipCentre && dx == 0 && dy == 0 {
				continue
			}
			if r.At(x+dx, y+dy) >= v {
				return false
			}
		}
	}
	return true
}

// dominantOrientation returns the keypoint angle in radians from
// Gaussian-weighted gradients in a pi/3 sliding window.
func dominantOrientation(lv *akazeLevel, x, y float64) float64 {
	s := math.Max(1, math.Round(lv.sigmaSize))
	var rx, ry, ang []float64
	for j := -akazeOrientSamples; j <= akazeOrientSamples; j++ {
		for i := -akazeOrientSamples; i <= akazeOrientSamples; i++ {
			if i*i+j*j >= akazeOrientSamples*akazeOrientSamples {
				continue
			}
			wgt := math.Exp(-float64(i*i+j*j) / (2 * 2.5 * 2.5))
			px := x + float64(i)*s
			py := y + float64(j)*s
			gx := wgt * lv.lx.Sample(px, py)
			gy := wgt * lv.ly.Sample(px, py)
			a := math.Atan2(gy, gx)
			if a < 0 {
				a += 2 * math.Pi
			}
			rx = append(rx, gx)
			ry = append(ry, gy)
			ang = append(ang, a)
		}
	}

	best, bestAngle := 0.0, 0.0
	for a1 := 0.0; a1 < 2*math.Pi; a1 += akazeOrientStep {
		a2 := a1 + math.Pi/3
		var sx, sy float64
		for i, a := range ang {
			in := a >= a1 && a < a2
			if a2 > 2*math.Pi {
				in = a >= a1 || a < a2-2*math.Pi
			}
			if in {
				sx += rx[i]
				sy += ry[i]
			}
		}
		if m := sx*sx + sy*sy; m > best {
			best = m
			bestAngle = math.Atan2(sy, sx)
		}
	}
	if bestAngle < 0 {
		bestAngle += 2 * math.Pi
	}
	return bestAngle
}

// sampleFrame samples intensity and rotated gradients at (u, v) expressed in
// the keypoint frame.
func sampleFrame(lv *akazeLevel, x, y, cos, sin, u, v float64) (val, du, dv float64) {
	px := x + u*cos - v*sin
	py := y + u*sin + v*cos
	gx := lv.lx.Sample(px, py)
	gy := lv.ly.Sample(px, py)
	return lv.lt.Sample(px, py), gx*cos + gy*sin, -gx*sin + gy*cos
}

// msurfDescriptor builds the 64-element float descriptor: 4x4 subregions of
// (sum du, sum dv, sum |du|, sum |dv|), unit normalized.
func msurfDescriptor(lv *akazeLevel, x, y, angle float64) [akazeFloatCols]float32 {
	s := math.Max(1, math.Round(lv.sigmaSize))
	cos, sin := math.Cos(angle), math.Sin(angle)
	sigma := 3.3 * s

	var vec [akazeFloatCols]float64
	for sj := 0; sj < 4; sj++ {
		for si := 0; si < 4; si++ {
			base := (sj*4 + si) * 4
			for kj := 0; kj < 5; kj++ {
				for ki := 0; ki < 5; ki++ {
					u := (-10 + float64(si*5+ki) + 0.5) * s
					v := (-10 + float64(sj*5+kj) + 0.5) * s
					wgt := math.Exp(-(u*u + v*v) / (2 * sigma * sigma))
					_, du, dv := sampleFrame(lv, x, y, cos, sin, u, v)
					du *= wgt
					dv *= wgt
					vec[base] += du
					vec[base+1] += dv
					vec[base+2] += math.Abs(du)
					vec[base+3] += math.Abs(dv)
				}
			}
		}
	}

	var norm float64
	for _, f := range vec {
		norm += f * f
	}
	norm = math.Sqrt(norm)
	var out [akazeFloatCols]float32
	if norm == 0 {
		return out
	}
	for i, f := range vec {
		out[i] = float32(f / norm)
	}
	return out
}

// mldbDescriptor compares mean intensity and rotated gradients between all
// cell pairs of 2x2, 3x3 and 4x4 grids over the keypoint patch.
func mldbDescriptor(lv *akazeLevel, x, y, angle float64) [akazeBinaryBytes]byte {
	s := math.Max(1, math.Round(lv.sigmaSize))
	cos, sin := math.Cos(angle), math.Sin(angle)
	half := akazePatternSize * s
	const samples = 4

	var out [akazeBinaryBytes]byte
	bit := 0
	for _, div := range []int{2, 3, 4} {
		cell := 2 * half / float64(div)
		values := make([][3]float64, div*div)
		for cj := 0; cj < div; cj++ {
			for ci := 0; ci < div; ci++ {
				var acc [3]float64
				for kj := 0; kj < samples; kj++ {
					for ki := 0; ki < samples; ki++ {
						u := -half + (float64(ci)+(float64(ki)+0.5)/samples)*cell
						v := -half + (float64(cj)+(float64(kj)+0.5)/samples)*cell
						val, du, dv := sampleFrame(lv, x, y, cos, sin, u, v)
						acc[0] += val
						acc[1] += du
						acc[2] += dv
					}
				}
				for c := range acc {
					acc[c] /= samples * samples
				}
				values[cj*div+ci] = acc
			}
		}
		for i := 0; i < len(values); i++ {
			for j := i + 1; j < len(values); j++ {
				for c := 0; c < 3; c++ {
					if values[i][c] > values[j][c] {
						out[bit/8] |= 1 << uint(bit%8)
					}
					bit++
				}
			}
		}
	}
	return out
}
