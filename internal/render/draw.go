package render

import (
	"image/color"
	"math"

	fimage "featalign/internal/image"
)

// fillCircle fills a circle with the given color.
func fillCircle(b fimage.Buffer, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				b.SetRGBA(x, y, c)
			}
		}
	}
}

// drawCircle draws a circle outline using Bresenham's algorithm.
func drawCircle(b fimage.Buffer, cx, cy, r int, c color.RGBA) {
	x := r
	y := 0
	err := 0

	for x >= y {
		b.SetRGBA(cx+x, cy+y, c)
		b.SetRGBA(cx+y, cy+x, c)
		b.SetRGBA(cx-y, cy+x, c)
		b.SetRGBA(cx-x, cy+y, c)
		b.SetRGBA(cx-x, cy-y, c)
		b.SetRGBA(cx-y, cy-x, c)
		b.SetRGBA(cx+y, cy-x, c)
		b.SetRGBA(cx+x, cy-y, c)

		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// drawThickLine draws a line with given thickness.
func drawThickLine(b fimage.Buffer, x1, y1, x2, y2 float64, thickness int, c color.RGBA) {
	dx := x2 - x1
	dy := y2 - y1
	length := math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return
	}

	px := -dy / length
	py := dx / length
	half := float64(thickness-1) / 2

	for t := -half; t <= half; t += 1.0 {
		drawLine(b,
			int(math.Round(x1+px*t)), int(math.Round(y1+py*t)),
			int(math.Round(x2+px*t)), int(math.Round(y2+py*t)), c)
	}
}

// drawLine draws a line using Bresenham's algorithm. Pixels outside the
// buffer are clipped.
func drawLine(b fimage.Buffer, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)

	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}

	err := dx - dy
	for {
		b.SetRGBA(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// darken reduces the brightness of a color.
func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * (1 - factor)),
		G: uint8(float64(c.G) * (1 - factor)),
		B: uint8(float64(c.B) * (1 - factor)),
		A: c.A,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
