package frame

import (
	"fmt"

	"github.com/RyanBlaney/moviescan/algorithms/temporal"
	"github.com/RyanBlaney/moviescan/logging"
)

// AverageStats describes how a representative image was produced
type AverageStats struct {
	// Requested is the number of frames the nominal range asked for
	Requested int `json:"requested"`

	// Available is the number of requested frames inside the recording
	Available int `json:"available"`

	// Used is the number of frames actually averaged
	Used int `json:"used"`

	// Blank is true when no frame could be used
	Blank bool `json:"blank"`

	// StopErr is the decode failure that ended accumulation early, if any
	StopErr error `json:"-"`
}

// Averager turns the frames of one bin into a single representative image.
// Decode problems never fail the bin: accumulation stops at the first bad
// frame and whatever was collected is averaged, or a blank image is returned
// when nothing was.
type Averager struct {
	blank  Shape
	logger logging.Logger
}

// NewAverager creates an averager whose empty bins are zero images of blank
func NewAverager(blank Shape) *Averager {
	return &Averager{
		blank: blank,
		logger: logging.WithFields(logging.Fields{
			"component": "bin_averager",
		}),
	}
}

// WithLogger returns a copy of the averager that logs to logger
func (a *Averager) WithLogger(logger logging.Logger) *Averager {
	return &Averager{blank: a.blank, logger: logger}
}

// BlankShape returns the shape used for empty bins
func (a *Averager) BlankShape() Shape {
	return a.blank
}

// Average decodes the frames of r that exist in src and returns their
// elementwise mean, truncated to 8 bits per channel
func (a *Averager) Average(src Source, r temporal.FrameRange) (*RGB, AverageStats) {
	avail := r.Clip(src.TotalFrames())
	stats := AverageStats{
		Requested: r.Len(),
		Available: avail.Len(),
	}

	var (
		sum   []float64
		shape Shape
	)

	for i := avail.Start; i < avail.End; i++ {
		f, err := src.Frame(i)
		if err == nil && sum != nil && f.Shape() != shape {
			err = fmt.Errorf("frame %d has shape %s, want %s", i, f.Shape(), shape)
		}
		if err != nil {
			stats.StopErr = err
			a.logger.Debug("Stopping bin accumulation at unreadable frame", logging.Fields{
				"frame": i,
				"range": r.String(),
				"used":  stats.Used,
				"error": err.Error(),
			})
			break
		}

		if sum == nil {
			shape = f.Shape()
			sum = make([]float64, shape.Bytes())
		}
		accumulate(sum, f)
		stats.Used++
	}

	if stats.Used == 0 {
		stats.Blank = true
		return NewRGB(a.blank), stats
	}

	return mean(sum, shape, stats.Used), stats
}

func accumulate(sum []float64, f *RGB) {
	rowBytes := f.Rect.Dx() * Channels
	k := 0
	for y := 0; y < f.Rect.Dy(); y++ {
		row := f.Pix[y*f.Stride : y*f.Stride+rowBytes]
		for _, v := range row {
			sum[k] += float64(v)
			k++
		}
	}
}

func mean(sum []float64, shape Shape, n int) *RGB {
	img := NewRGB(shape)
	count := float64(n)
	for i, s := range sum {
		// Truncation matches a float-to-uint8 cast; values are within [0, 255]
		img.Pix[i] = uint8(s / count)
	}
	return img
}
