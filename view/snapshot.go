package view

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// correlation values are always drawn against the full [-1, 1] range
const (
	corrMin = -1.0
	corrMax = 1.0
)

// corrGrid adapts a correlation matrix to plotter.GridXYZ with column c on
// the x axis and row r on the y axis
type corrGrid struct {
	m mat.Symmetric
}

func (g corrGrid) Dims() (c, r int) {
	n := g.m.SymmetricDim()
	return n, n
}

func (g corrGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }

// trTicks labels bins with 1-based TR numbers, thinned to about ten labels
type trTicks struct {
	n int
}

func (t trTicks) Ticks(_, _ float64) []plot.Tick {
	step := int(math.Ceil(float64(t.n) / 10))
	if step < 1 {
		step = 1
	}
	var ticks []plot.Tick
	for i := 0; i < t.n; i++ {
		tick := plot.Tick{Value: float64(i)}
		if i%step == 0 {
			tick.Label = strconv.Itoa(i + 1)
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// RenderPNG draws bin t as a PNG: the representative image on the left and
// the correlation heatmap, with bin t marked, on the right
func (v *Viewer) RenderPNG(w io.Writer, t int) error {
	bv, err := v.Select(t)
	if err != nil {
		return err
	}

	left := imagePlot(bv)
	right, err := v.heatmapPlot(t)
	if err != nil {
		return err
	}

	img := vgimg.New(v.width, v.height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter * 6,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}

	plots := [][]*plot.Plot{{left, right}}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

func imagePlot(bv BinView) *plot.Plot {
	p := plot.New()
	p.Title.Text = bv.Title()
	p.HideAxes()

	s := bv.Image.Shape()
	p.Add(plotter.NewImage(bv.Image, 0, 0, float64(s.Width), float64(s.Height)))
	return p
}

func (v *Viewer) heatmapPlot(t int) (*plot.Plot, error) {
	corr := v.result.Correlation
	n := corr.SymmetricDim()

	cm := moreland.SmoothBlueRed()
	cm.SetMin(corrMin)
	cm.SetMax(corrMax)

	hm := plotter.NewHeatMap(corrGrid{m: corr}, cm.Palette(255))
	hm.Min, hm.Max = corrMin, corrMax
	hm.NaN = color.Gray{Y: 200}

	marker, err := plotter.NewLine(plotter.XYs{
		{X: float64(t), Y: -0.5},
		{X: float64(t), Y: float64(n) - 0.5},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build bin marker: %w", err)
	}
	marker.Color = color.Black
	marker.Width = vg.Points(2)

	p := plot.New()
	p.Title.Text = "TR x TR Correlation Matrix"
	p.X.Label.Text = "TR"
	p.Y.Label.Text = "TR"
	p.X.Tick.Marker = trTicks{n: n}
	p.Y.Tick.Marker = trTicks{n: n}
	// row 0 at the top, as matrices are usually drawn
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(hm, marker)
	return p, nil
}
