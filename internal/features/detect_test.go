package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featalign/internal/failure"
	"featalign/internal/image"
)

// texture draws random grey rectangles on a dark background.
func texture(w, h int, seed int64) image.Buffer {
	rng := rand.New(rand.NewSource(seed))
	buf := image.NewBuffer(w, h)
	fill := func(x0, y0, x1, y1 int, v byte) {
		for y := max(0, y0); y < min(h, y1); y++ {
			for x := max(0, x0); x < min(w, x1); x++ {
				o := buf.Offset(x, y)
				buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2], buf.Pix[o+3] = v, v, v, 255
			}
		}
	}
	fill(0, 0, w, h, 30)
	for i := 0; i < 40; i++ {
		x := rng.Intn(w)
		y := rng.Intn(h)
		fill(x, y, x+8+rng.Intn(30), y+8+rng.Intn(30), byte(80+rng.Intn(176)))
	}
	return buf
}

func uniform(w, h int, v byte) image.Buffer {
	buf := image.NewBuffer(w, h)
	for i := range buf.Pix {
		buf.Pix[i] = v
	}
	return buf
}

func blob(w, h int, sigma float64) image.Buffer {
	buf := image.NewBuffer(w, h)
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
			v := byte(math.Round(255 * math.Exp(-d2/(2*sigma*sigma))))
			o := buf.Offset(x, y)
			buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2], buf.Pix[o+3] = v, v, v, 255
		}
	}
	return buf
}

func TestDetectUniformImage(t *testing.T) {
	tests := []struct {
		variant Variant
		typ     DescriptorType
		cols    int
	}{
		{VariantORB, DescriptorBinary, 32},
		{VariantAKAZE, DescriptorBinary, 61},
		{VariantAKAZEFloat, DescriptorFloat, 64},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			kps, desc, err := Detect(uniform(96, 96, 128), tt.variant, 500)
			require.NoError(t, err)
			assert.Empty(t, kps)
			assert.Equal(t, 0, desc.Rows)
			assert.Equal(t, tt.typ, desc.Type)
			assert.Equal(t, tt.cols, desc.Cols)
			assert.NoError(t, desc.Validate())
		})
	}
}

func TestDetectInvalidInput(t *testing.T) {
	good := uniform(64, 64, 0)

	_, _, err := Detect(image.Buffer{Width: 64, Height: 64, Pix: make([]byte, 10)}, VariantORB, 10)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, _, err = Detect(image.Buffer{Width: 0, Height: 64}, VariantORB, 10)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, _, err = Detect(good, VariantORB, 0)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, _, err = Detect(good, Variant(42), 10)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestDetectRejectsOverflowingDimensions(t *testing.T) {
	for _, b := range []image.Buffer{
		{Width: 1 << 61, Height: 2},
		{Width: 2, Height: 1 << 61},
		{Width: 1 << 40, Height: 1 << 40},
	} {
		assert.NotPanics(t, func() {
			_, _, err := Detect(b, VariantORB, 10)
			assert.ErrorIs(t, err, failure.ErrInvalidInput)
		})
	}
}

func TestUniformEarlyOut(t *testing.T) {
	g := GrayFromBuffer(uniform(40, 40, 7))
	assert.True(t, g.IsUniform())
	g.Pix[len(g.Pix)-1]++
	assert.False(t, g.IsUniform())

	for _, d := range []Detector{NewORB(DefaultORBParams()), NewAKAZE(DefaultAKAZEParams())} {
		kps, desc := d.Detect(GrayFromBuffer(uniform(200, 120, 255)))
		assert.Empty(t, kps)
		assert.NoError(t, desc.Validate())
	}
}

func TestToLevel0(t *testing.T) {
	assert.Equal(t, 17.0, toLevel0(17, 100, 100))
	assert.InDelta(t, 0.5, toLevel0(0, 10, 5), 1e-12)
	// Centres stay centred for odd sizes the nominal ratio gets wrong.
	assert.InDelta(t, 50.0, toLevel0(41.5, 101, 84), 1e-12)
	assert.InDelta(t, 26.0, toLevel0(12.5, 53, 26), 1e-12)
}

func TestKeypointsInsideOddImage(t *testing.T) {
	buf := texture(161, 97, 11)
	for _, v := range []Variant{VariantORB, VariantAKAZE} {
		kps, _, err := Detect(buf, v, 1000)
		require.NoError(t, err)
		require.NotEmpty(t, kps, v.String())
		for _, kp := range kps {
			assert.True(t, kp.X >= 0 && kp.X <= 160 && kp.Y >= 0 && kp.Y <= 96, "%s %+v", v, kp)
		}
	}
}

func TestORBDetectsCorners(t *testing.T) {
	kps, desc, err := Detect(texture(160, 160, 1), VariantORB, 500)
	require.NoError(t, err)
	require.NotEmpty(t, kps)
	require.NoError(t, desc.Validate())
	assert.Equal(t, len(kps), desc.Rows)
	assert.Equal(t, DescriptorBinary, desc.Type)
	assert.Equal(t, 32, desc.Cols)

	for i, kp := range kps {
		assert.GreaterOrEqual(t, kp.Angle, 0.0)
		assert.Less(t, kp.Angle, 360.0)
		assert.True(t, kp.X >= 0 && kp.X < 160 && kp.Y >= 0 && kp.Y < 160)
		if i > 0 {
			assert.GreaterOrEqual(t, kps[i-1].Response, kp.Response)
		}
	}
}

func TestDetectTruncationKeepsRows(t *testing.T) {
	buf := texture(160, 160, 2)
	all, allDesc, err := Detect(buf, VariantORB, 10000)
	require.NoError(t, err)
	require.Greater(t, len(all), 5)

	few, fewDesc, err := Detect(buf, VariantORB, 5)
	require.NoError(t, err)
	require.Len(t, few, 5)
	assert.Equal(t, 5, fewDesc.Rows)
	for i := range few {
		assert.Equal(t, all[i], few[i])
		assert.Equal(t, allDesc.Row(i), fewDesc.Row(i))
	}
}

func TestDetectDeterministic(t *testing.T) {
	buf := texture(128, 128, 3)
	for _, v := range []Variant{VariantORB, VariantAKAZE, VariantAKAZEFloat} {
		k1, d1, err := Detect(buf, v, 200)
		require.NoError(t, err)
		k2, d2, err := Detect(buf, v, 200)
		require.NoError(t, err)
		assert.Equal(t, k1, k2, v.String())
		assert.Equal(t, d1, d2, v.String())
	}
}

func TestAKAZEFindsBlob(t *testing.T) {
	for _, v := range []Variant{VariantAKAZE, VariantAKAZEFloat} {
		kps, desc, err := Detect(blob(128, 128, 6), v, 50)
		require.NoError(t, err)
		require.NotEmpty(t, kps, v.String())
		require.NoError(t, desc.Validate())

		best := kps[0]
		assert.InDelta(t, 64, best.X, 2.5, v.String())
		assert.InDelta(t, 64, best.Y, 2.5, v.String())
		assert.Greater(t, best.Response, 0.001)
	}
}

func TestAKAZEFloatRowsAreUnitOrZero(t *testing.T) {
	_, desc, err := Detect(texture(128, 128, 4), VariantAKAZEFloat, 100)
	require.NoError(t, err)
	for i := 0; i < desc.Rows; i++ {
		var n float64
		for _, f := range desc.FloatRow(i) {
			n += f * f
		}
		if n != 0 {
			assert.InDelta(t, 1, n, 1e-4)
		}
	}
}

func TestRankAndTruncateStable(t *testing.T) {
	kps := []Keypoint{
		{X: 0, Response: 1},
		{X: 1, Response: 3},
		{X: 2, Response: 1},
		{X: 3, Response: 2},
	}
	desc := NewDescriptorSet(DescriptorBinary, 4, 2)
	for i := 0; i < 4; i++ {
		desc.Row(i)[0] = byte(i)
		desc.Row(i)[1] = byte(10 + i)
	}

	out, od := rankAndTruncate(kps, desc, 3)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{1, 3, 0}, []float64{out[0].X, out[1].X, out[2].X})
	assert.Equal(t, []byte{1, 11}, od.Row(0))
	assert.Equal(t, []byte{3, 13}, od.Row(1))
	assert.Equal(t, []byte{0, 10}, od.Row(2))
}

func TestFEDStepsSumToTime(t *testing.T) {
	for _, total := range []float64{0.1, 1.28, 5, 20.48} {
		var sum float64
		steps := fedSteps(total, akazeFEDTauMax)
		require.NotEmpty(t, steps)
		for _, s := range steps {
			sum += s
		}
		assert.InDelta(t, total, sum, 1e-9)
	}
}

func TestContrastFactorFlat(t *testing.T) {
	assert.Zero(t, contrastFactor(NewGray(32, 32), 0.7))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("orb", "")
	require.NoError(t, err)
	assert.Equal(t, VariantORB, v)

	v, err = ParseVariant("akaze", "float")
	require.NoError(t, err)
	assert.Equal(t, VariantAKAZEFloat, v)

	_, err = ParseVariant("orb", "float")
	assert.ErrorIs(t, err, failure.ErrUnsupportedType)

	_, err = ParseVariant("sift", "")
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestORBPatternInsidePatch(t *testing.T) {
	for _, p := range orbPattern {
		for _, c := range p {
			assert.LessOrEqual(t, c, orbPatternRadius)
			assert.GreaterOrEqual(t, c, -orbPatternRadius)
		}
		assert.False(t, p[0] == p[2] && p[1] == p[3])
	}
}

func TestFastCornerOnSquare(t *testing.T) {
	g := NewGray(40, 40)
	for y := 20; y < 40; y++ {
		for x := 20; x < 40; x++ {
			g.Pix[y*40+x] = 200
		}
	}
	assert.True(t, isFastCorner(g, 20, 20, 20))
	assert.False(t, isFastCorner(g, 30, 30, 20))
	assert.False(t, isFastCorner(g, 10, 10, 20))
}
