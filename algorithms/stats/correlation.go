package stats

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/moviescan/algorithms/common"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when a matrix has no units or no bins
var ErrShape = errors.New("invalid signal matrix shape")

// DegeneratePolicy decides the correlation reported for a pair of bins when
// at least one of them has zero variance across units
type DegeneratePolicy int

const (
	// DegenerateNaN reports NaN for undefined correlations
	DegenerateNaN DegeneratePolicy = iota

	// DegenerateZero reports 0 for undefined correlations
	DegenerateZero
)

func (p DegeneratePolicy) String() string {
	switch p {
	case DegenerateNaN:
		return "nan"
	case DegenerateZero:
		return "zero"
	default:
		return "unknown"
	}
}

// ParseDegeneratePolicy maps "nan" or "zero" to a DegeneratePolicy
func ParseDegeneratePolicy(name string) (DegeneratePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nan", "":
		return DegenerateNaN, nil
	case "zero", "0":
		return DegenerateZero, nil
	default:
		return DegenerateNaN, fmt.Errorf("unknown degenerate policy %q (want nan or zero)", name)
	}
}

func (p DegeneratePolicy) fill() float64 {
	if p == DegenerateZero {
		return 0
	}
	return math.NaN()
}

// TemporalCorrelation computes the bins x bins Pearson correlation of a
// signal matrix whose rows are units and whose columns are time bins.
//
// Each bin is treated as a vector of unit values. Entry (i, j) is the
// product-moment correlation of bin i and bin j across units. The diagonal
// is always 1. A bin whose centered norm is below minStdDev is degenerate:
// it correlates 1 with a bin holding exactly the same values and takes the
// policy value against every other bin.
type TemporalCorrelation struct {
	policy    DegeneratePolicy
	minStdDev float64
}

// NewTemporalCorrelation creates a correlation engine with the given policy
func NewTemporalCorrelation(policy DegeneratePolicy) *TemporalCorrelation {
	return &TemporalCorrelation{
		policy:    policy,
		minStdDev: 1e-10,
	}
}

// Policy returns the degenerate-variance policy in use
func (tc *TemporalCorrelation) Policy() DegeneratePolicy {
	return tc.policy
}

// Compute returns the symmetric correlation matrix between the columns of m
func (tc *TemporalCorrelation) Compute(m mat.Matrix) (*mat.SymDense, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrShape)
	}
	units, bins := m.Dims()
	if units < 1 || bins < 1 {
		return nil, fmt.Errorf("%w: %d units x %d bins", ErrShape, units, bins)
	}

	raw := make([][]float64, bins)
	centered := make([][]float64, bins)
	norms := make([]float64, bins)
	for b := range bins {
		col := mat.Col(nil, b, m)
		raw[b] = col
		centered[b] = common.Center(col)
		norms[b] = common.Norm(centered[b])
	}

	// Scale the threshold with the unit count so it tracks the per-unit std
	threshold := tc.minStdDev * math.Sqrt(float64(units))

	corr := mat.NewSymDense(bins, nil)
	for i := range bins {
		corr.SetSym(i, i, 1.0)
		for j := i + 1; j < bins; j++ {
			var r float64
			switch {
			case norms[i] < threshold || norms[j] < threshold:
				if floats.Equal(raw[i], raw[j]) {
					r = 1.0
				} else {
					r = tc.policy.fill()
				}
			default:
				r = floats.Dot(centered[i], centered[j]) / (norms[i] * norms[j])
				if common.IsFinite(r) {
					r = common.Clamp(r, -1, 1)
				}
			}
			corr.SetSym(i, j, r)
		}
	}

	return corr, nil
}

// CorrelationMatrix is a convenience wrapper around TemporalCorrelation
func CorrelationMatrix(m mat.Matrix, policy DegeneratePolicy) (*mat.SymDense, error) {
	return NewTemporalCorrelation(policy).Compute(m)
}

// Pearson returns the Pearson correlation coefficient of x and y, or NaN
// when the lengths differ, are empty, or either series is constant
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return math.NaN()
	}
	cx := common.Center(x)
	cy := common.Center(y)
	den := common.Norm(cx) * common.Norm(cy)
	if den == 0 {
		return math.NaN()
	}
	return common.Clamp(floats.Dot(cx, cy)/den, -1, 1)
}
