package view

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/moviescan/frame"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
	os.Exit(m.Run())
}

func testResult() *pipeline.Result {
	s := frame.Shape{Height: 12, Width: 16}
	images := make([]*frame.RGB, 3)
	for i := range images {
		images[i] = frame.NewRGB(s)
		images[i].Fill(uint8(80*i), 40, 200)
	}
	return &pipeline.Result{
		RunID:      "test-run",
		Images:     images,
		Timestamps: []float64{8.04, 10.05, 12.06},
		Stats:      make([]frame.AverageStats, 3),
		Correlation: mat.NewSymDense(3, []float64{
			1, 0.5, math.NaN(),
			0.5, 1, -0.25,
			math.NaN(), -0.25, 1,
		}),
	}
}

func TestSelect(t *testing.T) {
	v, err := New(testResult())
	require.NoError(t, err)
	assert.Equal(t, 3, v.NumBins())

	bv, err := v.Select(1)
	require.NoError(t, err)
	assert.Equal(t, 1, bv.Index)
	assert.Equal(t, "TR 2", bv.Label())
	assert.Equal(t, "TR 2 - Time 10.05s", bv.Title())
	assert.Equal(t, []float64{0.5, 1, -0.25}, bv.Row)
	assert.Equal(t, uint8(80), bv.Image.Pix[0])

	for _, bad := range []int{-1, 3} {
		_, err := v.Select(bad)
		assert.ErrorIs(t, err, ErrBinOutOfRange)
	}
}

func TestNewRejectsInconsistentResult(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	r := testResult()
	r.Timestamps = r.Timestamps[:2]
	_, err = New(r)
	assert.ErrorIs(t, err, pipeline.ErrConsistency)
}

func TestRenderPNG(t *testing.T) {
	v, err := New(testResult())
	require.NoError(t, err)
	v.SetSize(6*vg.Inch, 3*vg.Inch)

	var buf bytes.Buffer
	require.NoError(t, v.RenderPNG(&buf, 2))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())

	assert.ErrorIs(t, v.RenderPNG(&bytes.Buffer{}, 5), ErrBinOutOfRange)
}

func TestRenderPNGSingleBin(t *testing.T) {
	img := frame.NewRGB(frame.Shape{Height: 2, Width: 2})
	v, err := New(&pipeline.Result{
		Images:      []*frame.RGB{img},
		Timestamps:  []float64{0},
		Correlation: mat.NewSymDense(1, []float64{1}),
	})
	require.NoError(t, err)
	v.SetSize(4*vg.Inch, 2*vg.Inch)

	var buf bytes.Buffer
	require.NoError(t, v.RenderPNG(&buf, 0))
	assert.NotZero(t, buf.Len())
}

func TestSaveSnapshots(t *testing.T) {
	v, err := New(testResult())
	require.NoError(t, err)
	v.SetSize(4*vg.Inch, 2*vg.Inch)

	dir := filepath.Join(t.TempDir(), "snapshots")
	paths, err := v.SaveSnapshots(dir, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "tr_001.png"), filepath.Join(dir, "tr_003.png")}, paths)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}

	_, err = v.SaveSnapshots(dir, []int{7})
	assert.ErrorIs(t, err, ErrBinOutOfRange)
}

func TestWriteHTML(t *testing.T) {
	v, err := New(testResult())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, v.WriteHTML(&buf))

	page := buf.String()
	assert.True(t, strings.Contains(page, "<html"), "renders a full page")
	assert.Contains(t, page, "heatmap")
	assert.Contains(t, page, "TR 3")
}
