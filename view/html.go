package view

import (
	"fmt"
	"io"
	"math"

	"github.com/RyanBlaney/moviescan/logging"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// diverging blue-white-red scale for correlations in [-1, 1]
var heatmapColors = []string{"#3b4cc0", "#6f92f3", "#aac7fd", "#dddddd", "#f7b89c", "#e7745b", "#b40426"}

// WriteHTML writes an interactive heatmap page of the correlation matrix.
// NaN entries are left as empty cells.
func (v *Viewer) WriteHTML(w io.Writer) error {
	corr := v.result.Correlation
	n := corr.SymmetricDim()

	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("TR %d", i+1)
	}

	data := make([]opts.HeatMapData, 0, n*n)
	missing := 0
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			val := corr.At(r, c)
			var z any = val
			if math.IsNaN(val) {
				// echarts treats "-" as a missing value
				z = "-"
				missing++
			}
			data = append(data, opts.HeatMapData{Value: [3]any{c, r, z}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "TR x TR Correlation", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "TR x TR Correlation Matrix",
			Subtitle: fmt.Sprintf("bins=%d run=%s", n, v.result.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: labels, Name: "TR", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels, Name: "TR", NameLocation: "middle", NameGap: 50}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        corrMin,
			Max:        corrMax,
			InRange:    &opts.VisualMapInRange{Color: heatmapColors},
		}),
	)
	hm.SetXAxis(labels).AddSeries("correlation", data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("failed to render heatmap: %w", err)
	}

	v.logger.Debug("Heatmap page written", logging.Fields{
		"bins":    n,
		"missing": missing,
	})
	return nil
}
