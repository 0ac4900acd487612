package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared across algorithms, backed by gonum

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Center returns a copy of data with its mean subtracted
func Center(data []float64) []float64 {
	centered := make([]float64, len(data))
	if len(data) == 0 {
		return centered
	}
	copy(centered, data)
	floats.AddConst(-Mean(data), centered)
	return centered
}

// Norm returns the Euclidean norm of data
func Norm(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Norm(data, 2)
}

// PopulationStdDev calculates the standard deviation normalized by N, the
// convention used for Pearson correlation
func PopulationStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// IsFinite reports whether v is neither NaN nor ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp restricts value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
