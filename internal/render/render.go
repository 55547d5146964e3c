// Package render draws traces as PNG plots.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg" // registers the png format

	"github.com/rjboer/gofpc/internal/fpc"
)

const (
	width  = 20 * vg.Centimeter
	height = 12 * vg.Centimeter
)

// ErrEmpty is returned for traces without samples.
var ErrEmpty = errors.New("render: trace has no samples")

// Trace writes tr as a PNG line plot to path.
func Trace(path string, tr fpc.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := WriteTo(f, tr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTo renders tr as PNG into w. The Y axis is logarithmic when every
// sample is positive, as for power spectral densities.
func WriteTo(w io.Writer, tr fpc.Trace) (int64, error) {
	p, err := newPlot(tr)
	if err != nil {
		return 0, err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return 0, fmt.Errorf("render: %w", err)
	}
	return wt.WriteTo(w)
}

func newPlot(tr fpc.Trace) (*plot.Plot, error) {
	if tr.Len() == 0 {
		return nil, ErrEmpty
	}
	if len(tr.X) != len(tr.Y) {
		return nil, fmt.Errorf("render: %d x values for %d y values", len(tr.X), len(tr.Y))
	}

	xys := make(plotter.XYs, tr.Len())
	for i := range xys {
		xys[i].X = tr.X[i]
		xys[i].Y = tr.Y[i]
	}

	p := plot.New()
	p.X.Label.Text = axisLabel(tr.NameX, tr.UnitX)
	p.Y.Label.Text = axisLabel(tr.NameY, tr.UnitY)
	p.Add(plotter.NewGrid())
	if allPositive(tr.Y) {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	p.Add(line)
	return p, nil
}

func axisLabel(name, unit string) string {
	if unit == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, unit)
}

func allPositive(y []float64) bool {
	for _, v := range y {
		if !(v > 0) {
			return false
		}
	}
	return true
}
