// Package pipeline aligns a frame source with a signal matrix: it correlates
// every pair of time bins and reduces the frames of each bin to one
// representative image.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/moviescan/algorithms/stats"
	"github.com/RyanBlaney/moviescan/algorithms/temporal"
	"github.com/RyanBlaney/moviescan/frame"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/signals"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrConsistency is returned when images, timestamps and the correlation
// matrix disagree on the number of bins
var ErrConsistency = errors.New("inconsistent pipeline output")

// Config holds the alignment parameters of a run
type Config struct {
	// BinDuration is the length of one time bin (TR) in seconds
	BinDuration float64 `json:"bin_duration" yaml:"bin_duration"`

	// SkipBins is the number of leading bins without a matrix column
	SkipBins int `json:"skip_bins" yaml:"skip_bins"`

	// Workers is the number of bins averaged concurrently, each worker with
	// its own frame source
	Workers int `json:"workers" yaml:"workers"`

	// Policy decides correlations involving zero-variance bins
	Policy stats.DegeneratePolicy `json:"-" yaml:"-"`
}

// DefaultConfig returns the acquisition defaults of the scanner protocol
func DefaultConfig() Config {
	return Config{
		BinDuration: 2.01,
		SkipBins:    4,
		Workers:     1,
		Policy:      stats.DegenerateNaN,
	}
}

// Pipeline runs the alignment and aggregation steps. It is safe to reuse
// across runs.
type Pipeline struct {
	config  Config
	aligner *temporal.BinAligner
	engine  *stats.TemporalCorrelation
}

// New validates config and builds a pipeline
func New(config Config) (*Pipeline, error) {
	aligner, err := temporal.NewBinAligner(config.BinDuration, config.SkipBins)
	if err != nil {
		return nil, err
	}
	if config.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", config.Workers)
	}

	return &Pipeline{
		config:  config,
		aligner: aligner,
		engine:  stats.NewTemporalCorrelation(config.Policy),
	}, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.config
}

// Result is the output of one run. Index t of every slice and row/column t
// of Correlation describe the same bin.
type Result struct {
	RunID       string               `json:"run_id"`
	Images      []*frame.RGB         `json:"-"`
	Timestamps  []float64            `json:"timestamps"`
	Bins        []temporal.Bin       `json:"bins"`
	Correlation *mat.SymDense        `json:"-"`
	Summary     stats.Summary        `json:"correlation_summary"`
	Stats       []frame.AverageStats `json:"stats"`
	Coverage    temporal.Coverage    `json:"coverage"`
	FrameRate   float64              `json:"frame_rate"`
	TotalFrames int                  `json:"total_frames"`
}

// NumBins returns the number of bins in the result
func (r *Result) NumBins() int {
	return len(r.Timestamps)
}

func (r *Result) check() error {
	if r.Correlation == nil {
		return fmt.Errorf("%w: missing correlation matrix", ErrConsistency)
	}
	n := r.Correlation.SymmetricDim()
	if len(r.Images) != n || len(r.Timestamps) != n || len(r.Bins) != n || len(r.Stats) != n {
		return fmt.Errorf("%w: %d images, %d timestamps, %d bins for a %dx%d correlation matrix",
			ErrConsistency, len(r.Images), len(r.Timestamps), len(r.Bins), n, n)
	}
	for t, img := range r.Images {
		if img == nil {
			return fmt.Errorf("%w: bin %d has no image", ErrConsistency, t)
		}
	}
	return nil
}

// Run correlates the bins of m, opens the frame source, and averages the
// frames of every bin. The source is closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, m *signals.Matrix, open frame.Opener) (*Result, error) {
	runID := uuid.NewString()
	logger := logging.WithFields(logging.Fields{
		"component": "pipeline",
		"function":  "Run",
		"run_id":    runID,
	})

	if m == nil {
		return nil, fmt.Errorf("%w: nil signal matrix", signals.ErrShape)
	}
	logger.Info("Signal matrix ready", logging.Fields{
		"units": m.Units(),
		"bins":  m.Bins(),
	})

	corr, err := p.engine.Compute(m.View())
	if err != nil {
		return nil, fmt.Errorf("failed to compute correlation matrix: %w", err)
	}
	summary := stats.DescribeOffDiagonal(corr)
	logger.Info("Correlation matrix computed", logging.Fields{
		"shape":     fmt.Sprintf("%dx%d", corr.SymmetricDim(), corr.SymmetricDim()),
		"policy":    p.engine.Policy().String(),
		"mean":      summary.Mean,
		"undefined": summary.NaN,
	})

	src, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("Failed to close frame source", logging.Fields{"error": err.Error()})
		}
	}()

	logger.Info("Frame source opened", logging.Fields{
		"total_frames": src.TotalFrames(),
		"frame_rate":   src.FrameRate(),
		"shape":        src.Shape().String(),
	})

	bins, err := p.aligner.Align(src.FrameRate(), src.TotalFrames(), m.Bins())
	if err != nil {
		return nil, fmt.Errorf("failed to align bins: %w", err)
	}

	coverage := temporal.Summarize(bins)
	fields := logging.Fields{
		"full":           coverage.Full,
		"partial":        coverage.Partial,
		"empty":          coverage.Empty,
		"frames_per_bin": p.aligner.FramesPerBin(src.FrameRate()),
		"start_frame":    p.aligner.StartFrame(src.FrameRate()),
	}
	if coverage.Empty > 0 {
		logger.Warn("Some bins lie past the end of the recording", fields)
	} else {
		logger.Debug("Bins aligned", fields)
	}

	averager := frame.NewAverager(src.Shape()).WithLogger(logger.WithFields(logging.Fields{
		"component": "bin_averager",
	}))

	images := make([]*frame.RGB, len(bins))
	avgStats := make([]frame.AverageStats, len(bins))

	workers := min(p.config.Workers, len(bins))
	if workers > 1 {
		err = p.averageParallel(ctx, workers, bins, src, open, averager, images, avgStats)
	} else {
		err = averageRange(ctx, bins, src, averager, images, avgStats)
	}
	if err != nil {
		return nil, err
	}

	for t := range bins {
		if avgStats[t].StopErr != nil {
			logger.Warn("Bin averaged from a partial range", logging.Fields{
				"bin":   t,
				"used":  avgStats[t].Used,
				"error": avgStats[t].StopErr.Error(),
			})
		}
	}

	result := &Result{
		RunID:       runID,
		Images:      images,
		Timestamps:  temporal.Timestamps(bins),
		Bins:        bins,
		Correlation: corr,
		Summary:     summary,
		Stats:       avgStats,
		Coverage:    coverage,
		FrameRate:   src.FrameRate(),
		TotalFrames: src.TotalFrames(),
	}
	if err := result.check(); err != nil {
		return nil, err
	}

	logger.Info("Bin images averaged", logging.Fields{
		"bins":    len(images),
		"workers": workers,
	})

	return result, nil
}

// averageRange averages bins in order into the matching slots of images and
// avgStats, stopping when ctx is done
func averageRange(ctx context.Context, bins []temporal.Bin, src frame.Source, averager *frame.Averager,
	images []*frame.RGB, avgStats []frame.AverageStats) error {
	for _, bin := range bins {
		if err := ctx.Err(); err != nil {
			return err
		}
		images[bin.Index], avgStats[bin.Index] = averager.Average(src, bin.Frames)
	}
	return nil
}

// averageParallel splits bins into contiguous chunks, one per worker, so that
// each worker's source reads forward. The first chunk reuses src; the others
// open their own.
func (p *Pipeline) averageParallel(ctx context.Context, workers int, bins []temporal.Bin, src frame.Source,
	open frame.Opener, averager *frame.Averager, images []*frame.RGB, avgStats []frame.AverageStats) error {
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		chunk := bins[w*len(bins)/workers : (w+1)*len(bins)/workers]
		if w == 0 {
			g.Go(func() error {
				return averageRange(gctx, chunk, src, averager, images, avgStats)
			})
			continue
		}

		g.Go(func() error {
			wsrc, err := open(gctx)
			if err != nil {
				return fmt.Errorf("failed to open frame source for worker %d: %w", w, err)
			}
			defer wsrc.Close()
			return averageRange(gctx, chunk, wsrc, averager, images, avgStats)
		})
	}

	return g.Wait()
}
