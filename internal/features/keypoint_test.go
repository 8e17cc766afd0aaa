package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featalign/internal/failure"
)

func TestDescriptorSetValidate(t *testing.T) {
	d := NewDescriptorSet(DescriptorFloat, 3, 4)
	require.NoError(t, d.Validate())
	assert.Len(t, d.Data, 48)

	d.Data = d.Data[:47]
	assert.ErrorIs(t, d.Validate(), failure.ErrInvalidInput)

	bad := DescriptorSet{Type: DescriptorType(3), Rows: 0, Cols: 0}
	assert.ErrorIs(t, bad.Validate(), failure.ErrUnsupportedType)

	// Shapes whose byte length wraps around must not validate against a
	// short slice.
	wrap := DescriptorSet{Type: DescriptorBinary, Rows: 1 << 62, Cols: 4}
	assert.ErrorIs(t, wrap.Validate(), failure.ErrInvalidInput)
	wrap = DescriptorSet{Type: DescriptorFloat, Rows: 1 << 60, Cols: 4}
	assert.ErrorIs(t, wrap.Validate(), failure.ErrInvalidInput)
}

func TestDescriptorSetFloatRow(t *testing.T) {
	d := NewDescriptorSet(DescriptorFloat, 2, 3)
	d.setFloatRow(1, []float32{0.5, -2, 3.25})
	assert.Equal(t, []float64{0, 0, 0}, d.FloatRow(0))
	assert.Equal(t, []float64{0.5, -2, 3.25}, d.FloatRow(1))
}

func TestDescriptorTypeTags(t *testing.T) {
	assert.Equal(t, 0, int(DescriptorBinary))
	assert.Equal(t, 5, int(DescriptorFloat))
	assert.Equal(t, "float", DescriptorFloat.String())
	assert.Equal(t, 0, DescriptorType(9).ElemSize())
}
