// Package warp resamples images through a projective transform.
package warp

import (
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"featalign/internal/failure"
	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

// edgeEps lets coordinates that land a rounding error outside the source
// still sample the edge pixel.
const edgeEps = 1e-6

// minWorkerPixels is the smallest share of output pixels worth a goroutine.
const minWorkerPixels = 1 << 16

// WarpPerspective maps src through h into a new outW x outH buffer. Each
// output pixel is the bilinear sample of src at h^-1(x, y); pixels that map
// outside src are transparent black.
func WarpPerspective(src fimage.Buffer, h geometry.Matrix3, outW, outH int) (fimage.Buffer, error) {
	return warpWith(src, h, outW, outH, 0)
}

// WarpFlat is WarpPerspective over a raw RGBA slice and a row-major
// 9-element matrix.
func WarpFlat(pix []byte, width, height int, matrix []float64, outW, outH int) ([]byte, error) {
	h, ok := geometry.MatrixFromSlice(matrix)
	if !ok {
		return nil, errors.Wrapf(failure.ErrInvalidInput, "matrix has %d elements, want 9", len(matrix))
	}
	src, err := fimage.FromPix(pix, width, height)
	if err != nil {
		return nil, err
	}
	out, err := WarpPerspective(src, h, outW, outH)
	if err != nil {
		return nil, err
	}
	return out.Pix, nil
}

func warpWith(src fimage.Buffer, h geometry.Matrix3, outW, outH, workers int) (fimage.Buffer, error) {
	if err := src.Validate(); err != nil {
		return fimage.Buffer{}, err
	}
	if err := fimage.CheckSize(outW, outH); err != nil {
		return fimage.Buffer{}, errors.Wrap(err, "output size")
	}
	if !h.IsFinite() {
		return fimage.Buffer{}, errors.Wrap(failure.ErrInvalidInput, "matrix has non-finite elements")
	}
	inv, ok := h.Inverse()
	if !ok {
		return fimage.Buffer{}, errors.Wrap(failure.ErrNumericalFailure, "matrix is not invertible")
	}

	dst := fimage.NewBuffer(outW, outH)
	if workers < 1 {
		workers = workerCount(outW, outH)
	}
	rowsPerWorker := (outH + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, outH)
		if startY >= outH {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < outW; x++ {
					sampleInto(dst.Pix[dst.Offset(x, y):], src, inv, float64(x), float64(y))
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return dst, nil
}

// workerCount splits an output of validated size across at most NumCPU
// goroutines, each with at least minWorkerPixels pixels.
func workerCount(outW, outH int) int {
	return max(1, min(runtime.NumCPU(), outW*outH/minWorkerPixels))
}

// sampleInto writes the bilinear sample of src at inv(x, y) to out[0:4].
// out is left untouched (zero) when the point falls outside src.
func sampleInto(out []byte, src fimage.Buffer, inv geometry.Matrix3, x, y float64) {
	d := inv[6]*x + inv[7]*y + inv[8]
	if d == 0 {
		return
	}
	sx := (inv[0]*x + inv[1]*y + inv[2]) / d
	sy := (inv[3]*x + inv[4]*y + inv[5]) / d

	maxX := float64(src.Width - 1)
	maxY := float64(src.Height - 1)
	if !(sx >= -edgeEps && sx <= maxX+edgeEps && sy >= -edgeEps && sy <= maxY+edgeEps) {
		return
	}
	sx = math.Max(0, math.Min(maxX, sx))
	sy = math.Max(0, math.Min(maxY, sy))

	x0 := int(sx)
	y0 := int(sy)
	x1 := min(x0+1, src.Width-1)
	y1 := min(y0+1, src.Height-1)
	fx := sx - float64(x0)
	fy := sy - float64(y0)

	p00 := src.Pix[src.Offset(x0, y0):]
	p10 := src.Pix[src.Offset(x1, y0):]
	p01 := src.Pix[src.Offset(x0, y1):]
	p11 := src.Pix[src.Offset(x1, y1):]
	w00 := (1 - fx) * (1 - fy)
	w10 := fx * (1 - fy)
	w01 := (1 - fx) * fy
	w11 := fx * fy
	for c := 0; c < fimage.Channels; c++ {
		v := w00*float64(p00[c]) + w10*float64(p10[c]) + w01*float64(p01[c]) + w11*float64(p11[c])
		out[c] = byte(math.Min(255, v+0.5))
	}
}
