package temporal

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/moviescan/algorithms/common"
)

var (
	// ErrInvalidDuration is returned for a non-positive bin duration or frame
	// rate, or a negative skip offset
	ErrInvalidDuration = errors.New("invalid bin duration or frame rate")

	// ErrInvalidBinCount is returned when fewer than one bin is requested
	ErrInvalidBinCount = errors.New("invalid bin count")
)

// FrameRange is a half-open interval [Start, End) of frame indices
type FrameRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of frames in the range, never negative
func (r FrameRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range holds no frames
func (r FrameRange) Empty() bool {
	return r.Len() == 0
}

// Clip limits the upper end of the range to total. The lower end is kept, so
// a range entirely past total becomes empty rather than moving.
func (r FrameRange) Clip(total int) FrameRange {
	if total < 0 {
		total = 0
	}
	if r.End > total {
		r.End = total
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	return r
}

func (r FrameRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Bin is one time bin aligned to the video
type Bin struct {
	Index int `json:"index"`

	// Frames is the nominal range covered by the bin
	Frames FrameRange `json:"frames"`

	// Available is Frames clipped to the recording length
	Available FrameRange `json:"available"`

	// Timestamp is the time in seconds of Frames.Start
	Timestamp float64 `json:"timestamp"`
}

// BinAligner maps fixed-duration time bins onto a constant-rate frame stream.
// The first skipBins bins of the recording are skipped before alignment starts,
// which compensates for a delayed physiological response.
type BinAligner struct {
	binDuration float64
	skipBins    int
}

// NewBinAligner validates the bin geometry and returns an aligner
func NewBinAligner(binDuration float64, skipBins int) (*BinAligner, error) {
	if !(binDuration > 0) || !common.IsFinite(binDuration) {
		return nil, fmt.Errorf("%w: bin duration %v must be positive", ErrInvalidDuration, binDuration)
	}
	if skipBins < 0 {
		return nil, fmt.Errorf("%w: skip bins %d must not be negative", ErrInvalidDuration, skipBins)
	}
	return &BinAligner{binDuration: binDuration, skipBins: skipBins}, nil
}

// BinDuration returns the bin length in seconds
func (ba *BinAligner) BinDuration() float64 {
	return ba.binDuration
}

// SkipBins returns the number of leading bins skipped
func (ba *BinAligner) SkipBins() int {
	return ba.skipBins
}

// StartFrame returns the first frame aligned to bin 0
func (ba *BinAligner) StartFrame(frameRate float64) int {
	return int(math.Floor(float64(ba.skipBins) * ba.binDuration * frameRate))
}

// FramesPerBin returns the number of frames covered by each bin
func (ba *BinAligner) FramesPerBin(frameRate float64) int {
	return int(math.Floor(ba.binDuration * frameRate))
}

// Align returns numBins contiguous bins. Ranges are never clipped to the
// recording; bins past totalFrames get an empty Available range.
func (ba *BinAligner) Align(frameRate float64, totalFrames, numBins int) ([]Bin, error) {
	if !(frameRate > 0) || !common.IsFinite(frameRate) {
		return nil, fmt.Errorf("%w: frame rate %v must be positive", ErrInvalidDuration, frameRate)
	}
	if numBins < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBinCount, numBins)
	}

	startFrame := ba.StartFrame(frameRate)
	framesPerBin := ba.FramesPerBin(frameRate)

	bins := make([]Bin, numBins)
	for t := range numBins {
		r := FrameRange{
			Start: startFrame + t*framesPerBin,
			End:   startFrame + (t+1)*framesPerBin,
		}
		bins[t] = Bin{
			Index:     t,
			Frames:    r,
			Available: r.Clip(totalFrames),
			Timestamp: float64(r.Start) / frameRate,
		}
	}

	return bins, nil
}

// Align is a convenience wrapper that builds a BinAligner and aligns numBins bins
func Align(binDuration float64, skipBins int, frameRate float64, totalFrames, numBins int) ([]Bin, error) {
	ba, err := NewBinAligner(binDuration, skipBins)
	if err != nil {
		return nil, err
	}
	return ba.Align(frameRate, totalFrames, numBins)
}

// Coverage counts how many bins are fully, partly, or not at all backed by frames
type Coverage struct {
	Full    int `json:"full"`
	Partial int `json:"partial"`
	Empty   int `json:"empty"`
}

// Summarize reports frame coverage for aligned bins
func Summarize(bins []Bin) Coverage {
	var c Coverage
	for _, b := range bins {
		switch {
		case b.Available.Empty():
			c.Empty++
		case b.Available.Len() < b.Frames.Len():
			c.Partial++
		default:
			c.Full++
		}
	}
	return c
}

// Timestamps extracts bin timestamps in bin order
func Timestamps(bins []Bin) []float64 {
	ts := make([]float64, len(bins))
	for i, b := range bins {
		ts[i] = b.Timestamp
	}
	return ts
}
