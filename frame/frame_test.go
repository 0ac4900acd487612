package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/moviescan/algorithms/temporal"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
	os.Exit(m.Run())
}

func solid(s Shape, r, g, b uint8) *RGB {
	img := NewRGB(s)
	img.Fill(r, g, b)
	return img
}

func TestFromPackedNormalizesBGR(t *testing.T) {
	s := Shape{Height: 1, Width: 2}
	bgr := []byte{10, 20, 30, 40, 50, 60}

	img, err := FromPacked(s, bgr, OrderBGR)
	require.NoError(t, err)
	assert.Equal(t, []uint8{30, 20, 10, 60, 50, 40}, img.Pix)
	assert.Equal(t, []byte{10, 20, 30, 40, 50, 60}, bgr, "input must not be modified")

	img, err = FromPacked(s, bgr, OrderRGB)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.RGBAt(0, 0))

	_, err = FromPacked(s, bgr[:5], OrderRGB)
	assert.Error(t, err)
	_, err = FromPacked(Shape{}, nil, OrderRGB)
	assert.Error(t, err)
}

func TestFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(2, 3, 4, 4))
	src.Set(2, 3, color.NRGBA{1, 2, 3, 255})
	src.Set(3, 3, color.NRGBA{4, 5, 6, 255})

	img := FromImage(src)
	assert.Equal(t, Shape{Height: 1, Width: 2}, img.Shape())
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, img.Pix)
}

func TestRGBImageInterface(t *testing.T) {
	img := NewRGB(Shape{Height: 2, Width: 3})
	img.SetRGB(2, 1, 9, 8, 7)
	img.SetRGB(5, 5, 1, 1, 1) // out of bounds, ignored

	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.RGBA{9, 8, 7, 255}, img.At(2, 1))
	assert.Equal(t, color.RGBA{}, img.RGBAt(-1, 0))
	assert.False(t, img.IsZero())
	assert.True(t, NewRGB(Shape{Height: 2, Width: 2}).IsZero())
}

func TestAverageUniformColor(t *testing.T) {
	s := Shape{Height: 4, Width: 5}
	frames := make([]*RGB, 10)
	for i := range frames {
		frames[i] = solid(s, 17, 200, 255)
	}
	src, err := NewMemorySource(30, frames...)
	require.NoError(t, err)

	img, stats := NewAverager(s).Average(src, temporal.FrameRange{Start: 2, End: 9})

	assert.Equal(t, solid(s, 17, 200, 255).Pix, img.Pix)
	assert.Equal(t, AverageStats{Requested: 7, Available: 7, Used: 7}, stats)
}

func TestAverageTruncatesMean(t *testing.T) {
	s := Shape{Height: 1, Width: 1}
	src, err := NewMemorySource(10, solid(s, 0, 1, 255), solid(s, 1, 2, 254))
	require.NoError(t, err)

	img, _ := NewAverager(s).Average(src, temporal.FrameRange{Start: 0, End: 2})
	// means 0.5, 1.5, 254.5 truncate down
	assert.Equal(t, []uint8{0, 1, 254}, img.Pix)
}

func TestAveragePastEndIsBlank(t *testing.T) {
	s := Shape{Height: 3, Width: 2}
	src, err := NewMemorySource(30, solid(s, 255, 255, 255), solid(s, 255, 255, 255))
	require.NoError(t, err)

	img, stats := NewAverager(s).Average(src, temporal.FrameRange{Start: 5, End: 10})

	assert.True(t, img.IsZero())
	assert.Equal(t, s, img.Shape())
	assert.True(t, stats.Blank)
	assert.Equal(t, 5, stats.Requested)
	assert.Equal(t, 0, stats.Available)
}

func TestAverageClipsToRecording(t *testing.T) {
	s := Shape{Height: 1, Width: 1}
	frames := []*RGB{solid(s, 10, 10, 10), solid(s, 20, 20, 20), solid(s, 30, 30, 30)}
	src, err := NewMemorySource(30, frames...)
	require.NoError(t, err)

	img, stats := NewAverager(s).Average(src, temporal.FrameRange{Start: 1, End: 6})

	assert.Equal(t, []uint8{25, 25, 25}, img.Pix)
	assert.Equal(t, 2, stats.Used)
	assert.Equal(t, 5, stats.Requested)
	assert.False(t, stats.Blank)
}

func TestAverageStopsAtDecodeFailure(t *testing.T) {
	s := Shape{Height: 1, Width: 1}
	frames := []*RGB{solid(s, 10, 10, 10), solid(s, 30, 30, 30), solid(s, 200, 200, 200), solid(s, 0, 0, 0)}
	src, err := NewMemorySource(30, frames...)
	require.NoError(t, err)
	corrupt := errors.New("corrupt packet")
	src.FailAt(2, corrupt)

	img, stats := NewAverager(s).Average(src, temporal.FrameRange{Start: 0, End: 4})

	assert.Equal(t, []uint8{20, 20, 20}, img.Pix, "only frames before the failure are averaged")
	assert.Equal(t, 2, stats.Used)
	assert.ErrorIs(t, stats.StopErr, corrupt)
}

func TestAverageFailureOnFirstFrameIsBlank(t *testing.T) {
	s := Shape{Height: 2, Width: 2}
	src, err := NewMemorySource(30, solid(s, 9, 9, 9), solid(s, 9, 9, 9))
	require.NoError(t, err)
	src.FailAt(0, errors.New("bad"))

	img, stats := NewAverager(s).Average(src, temporal.FrameRange{Start: 0, End: 2})

	assert.True(t, img.IsZero())
	assert.True(t, stats.Blank)
	assert.Error(t, stats.StopErr)
}

func TestMemorySourceOpenerIsIndependent(t *testing.T) {
	s := Shape{Height: 1, Width: 1}
	src, err := NewMemorySourceFromPacked(25, s, OrderBGR, []byte{1, 2, 3})
	require.NoError(t, err)

	a, err := src.Opener()(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	f, err := src.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 2, 1}, f.Pix)

	_, err = src.Frame(1)
	assert.ErrorIs(t, err, ErrFrameOutOfRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Opener()(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemorySourceRejectsMixedShapes(t *testing.T) {
	_, err := NewMemorySource(30, NewRGB(Shape{1, 1}), NewRGB(Shape{2, 1}))
	assert.Error(t, err)
	_, err = NewMemorySource(0, NewRGB(Shape{1, 1}))
	assert.Error(t, err)
}

func TestSequenceSource(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []uint8{40, 80, 120} {
		img := image.NewRGBA(image.Rect(0, 0, 3, 2))
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				img.Set(x, y, color.RGBA{v, v / 2, 0, 255})
			}
		}
		f, err := os.Create(filepath.Join(dir, []string{"b.png", "c.png", "a.png"}[i]))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	src, err := SequenceOpener(dir, 12)(context.Background())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.TotalFrames())
	assert.Equal(t, 12.0, src.FrameRate())
	assert.Equal(t, Shape{Height: 2, Width: 3}, src.Shape())

	// a.png sorts first
	f, err := src.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{120, 60, 0, 255}, f.RGBAt(1, 1))

	img, stats := NewAverager(src.Shape()).Average(src, temporal.FrameRange{Start: 0, End: 3})
	assert.Equal(t, 3, stats.Used)
	assert.Equal(t, color.RGBA{80, 40, 0, 255}, img.RGBAt(0, 0))

	_, err = src.Frame(3)
	assert.ErrorIs(t, err, ErrFrameOutOfRange)
}

func TestOpenSequenceEmptyDir(t *testing.T) {
	_, err := OpenSequence(t.TempDir(), 30)
	assert.Error(t, err)
}
