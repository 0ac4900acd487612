package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestDescribe(t *testing.T) {
	s := Describe([]float64{4, math.NaN(), 2, 8, 6})

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 1, s.NaN)
	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, math.Sqrt(5), s.StdDev, 1e-12)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 8.0, s.Max)
	assert.True(t, s.Min <= s.Q1 && s.Q1 <= s.Median && s.Median <= s.Q3 && s.Q3 <= s.Max)
}

func TestDescribeEmpty(t *testing.T) {
	for _, in := range [][]float64{nil, {math.NaN(), math.NaN()}} {
		s := Describe(in)
		assert.Equal(t, 0, s.Count)
		assert.Equal(t, len(in), s.NaN)
		assert.True(t, math.IsNaN(s.Mean))
		assert.True(t, math.IsNaN(s.Median))
	}
}

func TestDescribeOffDiagonal(t *testing.T) {
	m := mat.NewSymDense(3, []float64{
		1, 0.2, math.NaN(),
		0.2, 1, -0.4,
		math.NaN(), -0.4, 1,
	})
	s := DescribeOffDiagonal(m)

	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.NaN)
	assert.InDelta(t, -0.1, s.Mean, 1e-12)
	assert.Equal(t, -0.4, s.Min)
	assert.Equal(t, 0.2, s.Max)

	assert.Equal(t, 0, DescribeOffDiagonal(mat.NewSymDense(1, []float64{1})).Count)
}
