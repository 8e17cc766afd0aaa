package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuma(t *testing.T) {
	assert.InDelta(t, 255, Luma(255, 255, 255), 1e-9)
	assert.InDelta(t, 0.299*255, Luma(255, 0, 0), 1e-9)
	assert.Equal(t, 0.0, Luma(0, 0, 0))
}

func TestLumaPlane(t *testing.T) {
	pix := []byte{
		255, 255, 255, 0,
		0, 0, 255, 255,
	}
	plane := LumaPlane(pix, 2, 1)
	assert.Len(t, plane, 2)
	assert.InDelta(t, 255, plane[0], 1e-9)
	assert.InDelta(t, 0.114*255, plane[1], 1e-9)
}

func TestPalette(t *testing.T) {
	assert.Equal(t, Green, Palette(0))
	assert.Equal(t, Palette(1), Palette(7))
	assert.Equal(t, Palette(2), Palette(-2))
}
