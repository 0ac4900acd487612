package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoding for sequences
	_ "image/jpeg" // register JPEG decoding for sequences
	_ "image/png"  // register PNG decoding for sequences
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrFrameOutOfRange is returned when a frame index is outside [0, TotalFrames)
var ErrFrameOutOfRange = errors.New("frame index out of range")

// Source is random access to the decoded frames of a constant-rate recording.
// Frames are delivered in canonical RGB order. A Source is not safe for
// concurrent use; each goroutine needs its own.
type Source interface {
	// FrameRate returns frames per second
	FrameRate() float64

	// TotalFrames returns the number of decodable frames
	TotalFrames() int

	// Shape returns the native frame height and width
	Shape() Shape

	// Frame decodes the frame at an absolute index
	Frame(index int) (*RGB, error)

	// Close releases the decoder
	Close() error
}

// Opener creates a fresh, independently positioned Source
type Opener func(ctx context.Context) (Source, error)

// MemorySource serves frames held in memory. It is mostly useful for tests
// and for frames produced by another decoder.
type MemorySource struct {
	frames    []*RGB
	frameRate float64
	shape     Shape

	// failAt makes Frame fail for the listed indices
	failAt map[int]error
	closed bool
}

// NewMemorySource builds a source from frames that must all share one shape
func NewMemorySource(frameRate float64, frames ...*RGB) (*MemorySource, error) {
	if !(frameRate > 0) {
		return nil, fmt.Errorf("frame rate must be positive: %v", frameRate)
	}
	if len(frames) == 0 {
		return nil, errors.New("memory source needs at least one frame")
	}

	shape := frames[0].Shape()
	for i, f := range frames {
		if f.Shape() != shape {
			return nil, fmt.Errorf("frame %d has shape %s, want %s", i, f.Shape(), shape)
		}
	}

	return &MemorySource{
		frames:    frames,
		frameRate: frameRate,
		shape:     shape,
		failAt:    make(map[int]error),
	}, nil
}

// NewMemorySourceFromPacked builds a source from packed pixel buffers in the given channel order
func NewMemorySourceFromPacked(frameRate float64, shape Shape, order ChannelOrder, buffers ...[]byte) (*MemorySource, error) {
	frames := make([]*RGB, len(buffers))
	for i, buf := range buffers {
		f, err := FromPacked(shape, buf, order)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames[i] = f
	}
	return NewMemorySource(frameRate, frames...)
}

// FailAt makes Frame(index) return err, simulating a corrupt frame
func (m *MemorySource) FailAt(index int, err error) {
	m.failAt[index] = err
}

func (m *MemorySource) FrameRate() float64 { return m.frameRate }
func (m *MemorySource) TotalFrames() int   { return len(m.frames) }
func (m *MemorySource) Shape() Shape       { return m.shape }

// Frame returns a copy of the frame at index
func (m *MemorySource) Frame(index int) (*RGB, error) {
	if m.closed {
		return nil, errors.New("memory source is closed")
	}
	if index < 0 || index >= len(m.frames) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, index, len(m.frames))
	}
	if err, ok := m.failAt[index]; ok {
		return nil, err
	}
	return m.frames[index].Clone(), nil
}

// Close marks the source closed
func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MemorySource) Closed() bool {
	return m.closed
}

// Opener returns an Opener that hands out independent views of the same frames
func (m *MemorySource) Opener() Opener {
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &MemorySource{
			frames:    m.frames,
			frameRate: m.frameRate,
			shape:     m.shape,
			failAt:    m.failAt,
		}, nil
	}
}

// sequenceExtensions lists the still-image formats registered above
var sequenceExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// SequenceSource treats a directory of still images, sorted by file name, as
// a recording at a fixed frame rate. Frames are decoded on demand.
type SequenceSource struct {
	dir       string
	paths     []string
	frameRate float64
	shape     Shape
}

// OpenSequence scans dir for images and decodes the first one to learn the frame shape
func OpenSequence(dir string, frameRate float64) (*SequenceSource, error) {
	if !(frameRate > 0) {
		return nil, fmt.Errorf("frame rate must be positive: %v", frameRate)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image sequence: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(sequenceExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	slices.Sort(paths)

	s := &SequenceSource{dir: dir, paths: paths, frameRate: frameRate}
	first, err := s.decode(0)
	if err != nil {
		return nil, err
	}
	s.shape = first.Shape()

	return s, nil
}

// SequenceOpener returns an Opener for an image directory
func SequenceOpener(dir string, frameRate float64) Opener {
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenSequence(dir, frameRate)
	}
}

func (s *SequenceSource) FrameRate() float64 { return s.frameRate }
func (s *SequenceSource) TotalFrames() int   { return len(s.paths) }
func (s *SequenceSource) Shape() Shape       { return s.shape }

// Frame decodes the image at index
func (s *SequenceSource) Frame(index int) (*RGB, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, index, len(s.paths))
	}
	return s.decode(index)
}

func (s *SequenceSource) decode(index int) (*RGB, error) {
	f, err := os.Open(s.paths[index])
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %d: %w", index, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d (%s): %w", index, filepath.Base(s.paths[index]), err)
	}
	return FromImage(img), nil
}

// Close is a no-op; files are opened per frame
func (s *SequenceSource) Close() error {
	return nil
}
