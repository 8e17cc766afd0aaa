package report

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 20

// histogram builds a residual histogram plot.
func histogram(residuals []float64, title string) (*plot.Plot, error) {
	if len(residuals) == 0 {
		return nil, errors.New("no residuals to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "reprojection error (px)"
	p.Y.Label.Text = "inliers"

	h, err := plotter.NewHist(plotter.Values(residuals), histogramBins)
	if err != nil {
		return nil, errors.Wrap(err, "could not build histogram")
	}
	p.Add(h)
	return p, nil
}

// WriteHistogram renders the residual histogram as PNG to w.
func WriteHistogram(w io.Writer, residuals []float64, title string) error {
	p, err := histogram(residuals, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(15*vg.Centimeter, 10*vg.Centimeter, "png")
	if err != nil {
		return errors.Wrap(err, "could not render plot")
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveHistogram saves the residual histogram to path. The format follows the
// extension (png, svg, pdf...).
func SaveHistogram(path string, residuals []float64, title string) error {
	p, err := histogram(residuals, title)
	if err != nil {
		return err
	}
	if strings.TrimPrefix(filepath.Ext(path), ".") == "" {
		path += ".png"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "could not create plot directory")
		}
	}
	if err := p.Save(15*vg.Centimeter, 10*vg.Centimeter, path); err != nil {
		return errors.Wrap(err, "could not save plot")
	}
	return nil
}
