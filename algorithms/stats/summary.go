package stats

import (
	"math"
	"slices"

	"github.com/RyanBlaney/moviescan/algorithms/common"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summary contains descriptive statistics of a set of values. NaN values are
// counted but excluded from every other field.
type Summary struct {
	Count  int     `json:"count"`   // Finite or infinite values
	NaN    int     `json:"nan"`     // Values that were NaN
	Mean   float64 `json:"mean"`    // Arithmetic mean
	StdDev float64 `json:"std_dev"` // Population standard deviation
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`     // 25th percentile
	Median float64 `json:"median"` // 50th percentile
	Q3     float64 `json:"q3"`     // 75th percentile
	Max    float64 `json:"max"`
}

// Describe summarizes values. Every statistic of an empty or all-NaN input is NaN.
func Describe(values []float64) Summary {
	sorted := make([]float64, 0, len(values))
	nan := 0
	for _, v := range values {
		if math.IsNaN(v) {
			nan++
			continue
		}
		sorted = append(sorted, v)
	}

	s := Summary{Count: len(sorted), NaN: nan}
	if len(sorted) == 0 {
		s.Mean, s.StdDev = math.NaN(), math.NaN()
		s.Min, s.Q1, s.Median, s.Q3, s.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	slices.Sort(sorted)
	s.Mean = common.Mean(sorted)
	s.StdDev = common.PopulationStdDev(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	s.Median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	s.Q3 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return s
}

// DescribeOffDiagonal summarizes the strict upper triangle of a symmetric
// matrix, i.e. every distinct pair of bins once
func DescribeOffDiagonal(m mat.Symmetric) Summary {
	n := m.SymmetricDim()
	values := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			values = append(values, m.At(i, j))
		}
	}
	return Describe(values)
}
