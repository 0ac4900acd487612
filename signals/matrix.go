// Package signals loads time-binned signal matrices: one row per spatial unit
// (voxel, channel) and one column per time bin.
package signals

import (
	"fmt"

	"github.com/RyanBlaney/moviescan/algorithms/stats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned for matrices without units or bins
var ErrShape = stats.ErrShape

// Format identifies an on-disk signal matrix encoding
type Format string

const (
	FormatNPY  Format = "npy"
	FormatCSV  Format = "csv"
	FormatMAT  Format = "mat"
	FormatCBOR Format = "cbor"
)

// Matrix is an immutable units x bins signal matrix
type Matrix struct {
	data     *mat.Dense
	format   Format
	source   string
	variable string
}

// NewMatrix copies data, laid out row major, into a units x bins matrix
func NewMatrix(units, bins int, data []float64) (*Matrix, error) {
	if units < 1 || bins < 1 {
		return nil, fmt.Errorf("%w: %d units x %d bins", ErrShape, units, bins)
	}
	if len(data) != units*bins {
		return nil, fmt.Errorf("%w: %d values for %d units x %d bins", ErrShape, len(data), units, bins)
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Matrix{data: mat.NewDense(units, bins, buf)}, nil
}

// FromDense copies any gonum matrix into a Matrix
func FromDense(m mat.Matrix) (*Matrix, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrShape)
	}
	units, bins := m.Dims()
	if units < 1 || bins < 1 {
		return nil, fmt.Errorf("%w: %d units x %d bins", ErrShape, units, bins)
	}
	return &Matrix{data: mat.DenseCopyOf(m)}, nil
}

// Units returns the number of rows
func (m *Matrix) Units() int {
	r, _ := m.data.Dims()
	return r
}

// Bins returns the number of columns
func (m *Matrix) Bins() int {
	_, c := m.data.Dims()
	return c
}

// Dims returns units and bins
func (m *Matrix) Dims() (units, bins int) {
	return m.data.Dims()
}

// At returns the value of unit u in bin b
func (m *Matrix) At(u, b int) float64 {
	return m.data.At(u, b)
}

// Column returns a copy of the unit values of bin b
func (m *Matrix) Column(b int) []float64 {
	return mat.Col(nil, b, m.data)
}

// View exposes the matrix read-only for numeric routines
func (m *Matrix) View() mat.Matrix {
	return readOnly{m.data}
}

// Format returns the encoding the matrix was loaded from, if any
func (m *Matrix) Format() Format {
	return m.format
}

// Source returns the path the matrix was loaded from, if any
func (m *Matrix) Source() string {
	return m.source
}

// Variable returns the container entry the matrix was read from, if any
func (m *Matrix) Variable() string {
	return m.variable
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%d units x %d bins", m.Units(), m.Bins())
}

// readOnly hides the mutating methods of the wrapped Dense
type readOnly struct {
	m mat.Matrix
}

func (r readOnly) Dims() (int, int)    { return r.m.Dims() }
func (r readOnly) At(i, j int) float64 { return r.m.At(i, j) }
func (r readOnly) T() mat.Matrix       { return mat.Transpose{Matrix: r} }
