package stats

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func randomMatrix(units, bins int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]float64, units*bins)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(units, bins, data)
}

func TestCorrelationMatrixSymmetricWithUnitDiagonal(t *testing.T) {
	m := randomMatrix(50, 12, 7)

	corr, err := CorrelationMatrix(m, DegenerateNaN)
	require.NoError(t, err)

	n := corr.SymmetricDim()
	require.Equal(t, 12, n)
	for i := range n {
		assert.Equal(t, 1.0, corr.At(i, i))
		for j := range n {
			assert.Equal(t, corr.At(i, j), corr.At(j, i))
			assert.LessOrEqual(t, math.Abs(corr.At(i, j)), 1.0)
		}
	}
}

func TestCorrelationMatrixMatchesGonum(t *testing.T) {
	m := randomMatrix(30, 8, 42)

	got, err := CorrelationMatrix(m, DegenerateNaN)
	require.NoError(t, err)

	var want mat.SymDense
	stat.CorrelationMatrix(&want, m, nil)

	assert.True(t, mat.EqualApprox(got, &want, 1e-12))
}

func TestCorrelationMatrixDegenerateScenario(t *testing.T) {
	// 3 units x 4 bins: columns [1,1,1], [1,1,1], [5,5,5], [5,5,5]
	m := mat.NewDense(3, 4, []float64{
		1, 1, 5, 5,
		1, 1, 5, 5,
		1, 1, 5, 5,
	})

	t.Run("nan policy", func(t *testing.T) {
		corr, err := CorrelationMatrix(m, DegenerateNaN)
		require.NoError(t, err)

		assert.Equal(t, 1.0, corr.At(0, 1))
		assert.Equal(t, 1.0, corr.At(2, 3))
		for _, pair := range [][2]int{{0, 2}, {0, 3}, {1, 2}, {1, 3}} {
			assert.True(t, math.IsNaN(corr.At(pair[0], pair[1])), "pair %v", pair)
		}
		for i := range 4 {
			assert.Equal(t, 1.0, corr.At(i, i))
		}
	})

	t.Run("zero policy", func(t *testing.T) {
		corr, err := CorrelationMatrix(m, DegenerateZero)
		require.NoError(t, err)

		assert.Equal(t, 1.0, corr.At(0, 1))
		assert.Equal(t, 1.0, corr.At(3, 2))
		assert.Equal(t, 0.0, corr.At(0, 2))
		assert.Equal(t, 0.0, corr.At(3, 1))
	})
}

func TestCorrelationMatrixDegenerateAgainstVaryingBin(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 1,
		1, 2,
		1, 3,
	})

	corr, err := CorrelationMatrix(m, DegenerateZero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, corr.At(0, 1))
	assert.Equal(t, 1.0, corr.At(1, 1))
}

func TestCorrelationMatrixPerfectCorrelations(t *testing.T) {
	m := mat.NewDense(4, 3, []float64{
		1, 2, -1,
		2, 4, -2,
		3, 6, -3,
		4, 8, -4,
	})

	corr, err := CorrelationMatrix(m, DegenerateNaN)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, corr.At(0, 1), 1e-12)
	assert.InDelta(t, -1.0, corr.At(0, 2), 1e-12)
	assert.InDelta(t, -1.0, corr.At(1, 2), 1e-12)
}

func TestCorrelationMatrixSingleBin(t *testing.T) {
	corr, err := CorrelationMatrix(mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5}), DegenerateNaN)
	require.NoError(t, err)
	assert.Equal(t, 1, corr.SymmetricDim())
	assert.Equal(t, 1.0, corr.At(0, 0))
}

func TestCorrelationMatrixSingleUnit(t *testing.T) {
	// One unit means every bin is degenerate; equal values still correlate
	corr, err := CorrelationMatrix(mat.NewDense(1, 3, []float64{2, 2, 9}), DegenerateNaN)
	require.NoError(t, err)

	assert.Equal(t, 1.0, corr.At(0, 1))
	assert.True(t, math.IsNaN(corr.At(0, 2)))
	assert.Equal(t, 1.0, corr.At(2, 2))
}

func TestCorrelationMatrixShapeError(t *testing.T) {
	_, err := CorrelationMatrix(&mat.Dense{}, DegenerateNaN)
	assert.ErrorIs(t, err, ErrShape)

	_, err = CorrelationMatrix(nil, DegenerateNaN)
	assert.ErrorIs(t, err, ErrShape)
}

func TestCorrelationIsDeterministic(t *testing.T) {
	m := randomMatrix(20, 6, 3)

	a, err := CorrelationMatrix(m, DegenerateNaN)
	require.NoError(t, err)
	b, err := CorrelationMatrix(m, DegenerateNaN)
	require.NoError(t, err)

	assert.True(t, mat.Equal(a, b))
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{10, 20, 30}), 1e-12)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	assert.True(t, math.IsNaN(Pearson([]float64{1, 1}, []float64{1, 2})))
	assert.True(t, math.IsNaN(Pearson([]float64{1}, []float64{1, 2})))
}

func TestParseDegeneratePolicy(t *testing.T) {
	p, err := ParseDegeneratePolicy("ZERO")
	require.NoError(t, err)
	assert.Equal(t, DegenerateZero, p)
	assert.Equal(t, "zero", p.String())

	p, err = ParseDegeneratePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DegenerateNaN, p)

	_, err = ParseDegeneratePolicy("drop")
	assert.Error(t, err)
}
