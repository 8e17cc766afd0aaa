//go:build withcv
// +build withcv

package cvref

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"featalign/internal/failure"
	fimage "featalign/internal/image"
	"featalign/pkg/geometry"
)

// stripes runs fn over horizontal row ranges, one goroutine per CPU.
func stripes(height int, fn func(yStart, yEnd int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}
		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}

// bufferToMat converts a buffer to a BGRA Mat. The caller closes it.
func bufferToMat(b fimage.Buffer) (gocv.Mat, error) {
	if err := b.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	mat := gocv.NewMatWithSize(b.Height, b.Width, gocv.MatTypeCV8UC4)
	stripes(b.Height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < b.Width; x++ {
				i := b.Offset(x, y)
				mat.SetUCharAt(y, x*4+0, b.Pix[i+2])
				mat.SetUCharAt(y, x*4+1, b.Pix[i+1])
				mat.SetUCharAt(y, x*4+2, b.Pix[i+0])
				mat.SetUCharAt(y, x*4+3, b.Pix[i+3])
			}
		}
	})
	return mat, nil
}

// grayMat converts a buffer to a single-channel Mat. The caller closes it.
func grayMat(b fimage.Buffer) (gocv.Mat, error) {
	bgra, err := bufferToMat(b)
	if err != nil {
		return bgra, err
	}
	defer bgra.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(bgra, &gray, gocv.ColorBGRAToGray)
	return gray, nil
}

// matToBuffer converts a BGRA Mat back to a buffer.
func matToBuffer(mat gocv.Mat) (fimage.Buffer, error) {
	if mat.Type() != gocv.MatTypeCV8UC4 {
		return fimage.Buffer{}, errors.Wrapf(failure.ErrUnsupportedType, "mat type %v, want CV_8UC4", mat.Type())
	}
	h, w := mat.Rows(), mat.Cols()
	b := fimage.NewBuffer(w, h)
	stripes(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < w; x++ {
				i := b.Offset(x, y)
				b.Pix[i+0] = mat.GetUCharAt(y, x*4+2)
				b.Pix[i+1] = mat.GetUCharAt(y, x*4+1)
				b.Pix[i+2] = mat.GetUCharAt(y, x*4+0)
				b.Pix[i+3] = mat.GetUCharAt(y, x*4+3)
			}
		}
	})
	return b, nil
}

func matrixToMat(h geometry.Matrix3) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, h.At(r, c))
		}
	}
	return m
}

func matToMatrix(m gocv.Mat) (geometry.Matrix3, bool) {
	var h geometry.Matrix3
	if m.Empty() || m.Rows() != 3 || m.Cols() != 3 {
		return h, false
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	return h, true
}

func pointsToMat(pts []geometry.Point2D) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV64FC2)
	for i, p := range pts {
		m.SetDoubleAt(i, 0, p.X)
		m.SetDoubleAt(i, 1, p.Y)
	}
	return m
}
