// Package view presents pipeline results: per-bin selection, static PNG
// snapshots, and an interactive HTML correlation heatmap.
package view

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/moviescan/frame"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/pipeline"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

// ErrBinOutOfRange is returned when a bin index falls outside the result
var ErrBinOutOfRange = errors.New("bin index out of range")

// BinView is everything shown for one selected bin
type BinView struct {
	Index     int
	Timestamp float64
	Image     *frame.RGB
	Stats     frame.AverageStats

	// Row holds the correlation of this bin with every bin
	Row []float64
}

// Label returns the 1-based TR label
func (b BinView) Label() string {
	return fmt.Sprintf("TR %d", b.Index+1)
}

// Title returns the caption used above the bin image
func (b BinView) Title() string {
	return fmt.Sprintf("TR %d - Time %.2fs", b.Index+1, b.Timestamp)
}

// Viewer renders one pipeline result
type Viewer struct {
	result *pipeline.Result
	width  vg.Length
	height vg.Length
	logger logging.Logger
}

// New wraps result. The result must hold at least one bin.
func New(result *pipeline.Result) (*Viewer, error) {
	if result == nil || result.Correlation == nil {
		return nil, errors.New("view needs a pipeline result")
	}
	n := result.Correlation.SymmetricDim()
	if n < 1 || len(result.Images) != n || len(result.Timestamps) != n {
		return nil, fmt.Errorf("%w: %d images, %d timestamps, %d correlation rows",
			pipeline.ErrConsistency, len(result.Images), len(result.Timestamps), n)
	}

	return &Viewer{
		result: result,
		width:  12 * vg.Inch,
		height: 5 * vg.Inch,
		logger: logging.WithFields(logging.Fields{
			"component": "viewer",
			"run_id":    result.RunID,
		}),
	}, nil
}

// SetSize changes the snapshot dimensions
func (v *Viewer) SetSize(width, height vg.Length) {
	v.width, v.height = width, height
}

// NumBins returns the number of selectable bins
func (v *Viewer) NumBins() int {
	return len(v.result.Timestamps)
}

// Select returns the view of bin t
func (v *Viewer) Select(t int) (BinView, error) {
	if t < 0 || t >= v.NumBins() {
		return BinView{}, fmt.Errorf("%w: %d not in [0, %d)", ErrBinOutOfRange, t, v.NumBins())
	}

	bv := BinView{
		Index:     t,
		Timestamp: v.result.Timestamps[t],
		Image:     v.result.Images[t],
		Row:       mat.Row(nil, t, v.result.Correlation),
	}
	if t < len(v.result.Stats) {
		bv.Stats = v.result.Stats[t]
	}
	return bv, nil
}

// SaveSnapshots writes one PNG per requested bin into dir and returns the
// written paths. A nil bins slice renders every bin.
func (v *Viewer) SaveSnapshots(dir string, bins []int) ([]string, error) {
	if bins == nil {
		bins = make([]int, v.NumBins())
		for i := range bins {
			bins[i] = i
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	width := max(3, int(math.Log10(float64(v.NumBins())))+1)
	paths := make([]string, 0, len(bins))
	for _, t := range bins {
		if _, err := v.Select(t); err != nil {
			return paths, err
		}

		path := filepath.Join(dir, fmt.Sprintf("tr_%0*d.png", width, t+1))
		if err := v.savePNG(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	v.logger.Debug("Snapshots written", logging.Fields{
		"directory": dir,
		"count":     len(paths),
	})
	return paths, nil
}

func (v *Viewer) savePNG(path string, t int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := v.RenderPNG(f, t); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
