package signals

import (
	"fmt"
	"io"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// readNPY decodes a NumPy .npy dump. One-dimensional arrays become a single
// unit row.
func readNPY(r io.Reader) (*decoded, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}

	shape := npy.Header.Descr.Shape
	var rows, cols int
	switch len(shape) {
	case 1:
		rows, cols = 1, shape[0]
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return nil, fmt.Errorf("%w: npy array has %d dimensions, want 2", ErrShape, len(shape))
	}
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: npy array is %dx%d", ErrShape, rows, cols)
	}

	values, err := readNPYValues(npy)
	if err != nil {
		return nil, err
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: npy array holds %d values for %dx%d", ErrShape, len(values), rows, cols)
	}

	// Fortran ordered dumps are column major
	if npy.Header.Descr.Fortran && len(shape) == 2 {
		dense := mat.NewDense(rows, cols, nil)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				dense.Set(i, j, values[j*rows+i])
			}
		}
		return &decoded{dense: dense}, nil
	}

	return &decoded{dense: mat.NewDense(rows, cols, values)}, nil
}

// readNPYValues reads the payload in its stored dtype and widens it to float64
func readNPYValues(npy *npyio.Reader) ([]float64, error) {
	descr := npy.Header.Descr.Type
	if len(descr) < 2 {
		return nil, fmt.Errorf("invalid npy dtype %q", descr)
	}

	switch kind := descr[1:]; kind {
	case "f8":
		var v []float64
		if err := npy.Read(&v); err != nil {
			return nil, fmt.Errorf("failed to read npy data: %w", err)
		}
		return v, nil
	case "f4":
		var v []float32
		return widen(npy, &v)
	case "i1":
		var v []int8
		return widen(npy, &v)
	case "u1":
		var v []uint8
		return widen(npy, &v)
	case "i2":
		var v []int16
		return widen(npy, &v)
	case "u2":
		var v []uint16
		return widen(npy, &v)
	case "i4":
		var v []int32
		return widen(npy, &v)
	case "u4":
		var v []uint32
		return widen(npy, &v)
	case "i8":
		var v []int64
		return widen(npy, &v)
	case "u8":
		var v []uint64
		return widen(npy, &v)
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func widen[T number](npy *npyio.Reader, v *[]T) ([]float64, error) {
	if err := npy.Read(v); err != nil {
		return nil, fmt.Errorf("failed to read npy data: %w", err)
	}
	out := make([]float64, len(*v))
	for i, x := range *v {
		out[i] = float64(x)
	}
	return out, nil
}
