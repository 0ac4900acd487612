package signals

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Level 5 MAT-file data types
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// Level 5 MAT-file array classes
const (
	mxDOUBLE = 6
	mxUINT64 = 15
)

const (
	matHeaderSize  = 128
	matComplexFlag = 0x0800
	matMaxElement  = 1 << 31
)

var errNoVariable = errors.New("mat file holds no usable variable")

// readMAT decodes the first variable of a level 5 MAT-file whose name does
// not start with "__"
func readMAT(r io.Reader) (*decoded, error) {
	header := make([]byte, matHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read mat header: %w", err)
	}
	if bytes.HasPrefix(header, []byte("MATLAB 7.3")) {
		return nil, errors.New("HDF5 based v7.3 mat files are not supported")
	}

	var order binary.ByteOrder
	switch string(header[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, errors.New("not a level 5 mat file")
	}

	for {
		typ, data, err := readMATElement(r, order)
		if err == io.EOF {
			return nil, errNoVariable
		}
		if err != nil {
			return nil, err
		}

		if typ == miCOMPRESSED {
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("failed to inflate mat element: %w", err)
			}
			typ, data, err = readMATElement(zr, order)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to inflate mat element: %w", err)
			}
		}

		if typ != miMATRIX {
			continue
		}

		name, dense, err := parseMATMatrix(data, order)
		if strings.HasPrefix(name, "__") {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mat variable %q: %w", name, err)
		}
		return &decoded{dense: dense, variable: name}, nil
	}
}

// readMATElement reads one tagged data element and its padding. Returns
// io.EOF only when the stream ends cleanly before a tag.
func readMATElement(r io.Reader, order binary.ByteOrder) (uint32, []byte, error) {
	var tag [8]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("failed to read mat element tag: %w", err)
	}

	first := order.Uint32(tag[0:4])

	// small data element: size in the upper half, payload packed in the tag
	if size := first >> 16; size != 0 {
		if size > 4 {
			return 0, nil, fmt.Errorf("invalid small mat element size %d", size)
		}
		data := make([]byte, size)
		copy(data, tag[4:4+size])
		return first & 0xffff, data, nil
	}

	size := order.Uint32(tag[4:8])
	if size > matMaxElement {
		return 0, nil, fmt.Errorf("mat element of %d bytes is too large", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, fmt.Errorf("failed to read mat element: %w", err)
	}

	if first != miCOMPRESSED {
		if pad := (8 - size%8) % 8; pad > 0 {
			// the last element of a stream may omit its padding
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil && err != io.EOF {
				return 0, nil, fmt.Errorf("failed to skip mat padding: %w", err)
			}
		}
	}

	return first, data, nil
}

// parseMATMatrix decodes an miMATRIX payload. The name is returned whenever
// it could be read so that callers can skip hidden variables.
func parseMATMatrix(data []byte, order binary.ByteOrder) (string, *mat.Dense, error) {
	r := bytes.NewReader(data)

	typ, flags, err := readMATElement(r, order)
	if err != nil {
		return "", nil, err
	}
	if typ != miUINT32 || len(flags) < 8 {
		return "", nil, errors.New("invalid array flags")
	}
	word := order.Uint32(flags[0:4])
	class := word & 0xff

	typ, dimBytes, err := readMATElement(r, order)
	if err != nil {
		return "", nil, err
	}
	if typ != miINT32 || len(dimBytes)%4 != 0 {
		return "", nil, errors.New("invalid dimensions")
	}
	dims := make([]int, len(dimBytes)/4)
	for i := range dims {
		dims[i] = int(int32(order.Uint32(dimBytes[4*i:])))
	}

	typ, nameBytes, err := readMATElement(r, order)
	if err != nil {
		return "", nil, err
	}
	if typ != miINT8 && typ != miUINT8 {
		return "", nil, errors.New("invalid array name")
	}
	name := string(nameBytes)

	if class < mxDOUBLE || class > mxUINT64 {
		return name, nil, fmt.Errorf("array class %d is not numeric", class)
	}
	if word&matComplexFlag != 0 {
		return name, nil, errors.New("complex arrays are not supported")
	}
	if len(dims) != 2 {
		return name, nil, fmt.Errorf("%w: array has %d dimensions, want 2", ErrShape, len(dims))
	}
	rows, cols := dims[0], dims[1]
	if rows < 1 || cols < 1 {
		return name, nil, fmt.Errorf("%w: array is %dx%d", ErrShape, rows, cols)
	}

	typ, payload, err := readMATElement(r, order)
	if err != nil {
		return name, nil, err
	}
	values, err := decodeMATNumeric(typ, payload, order)
	if err != nil {
		return name, nil, err
	}
	if len(values) != rows*cols {
		return name, nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(values), rows, cols)
	}

	// column major on disk
	dense := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			dense.Set(i, j, values[j*rows+i])
		}
	}
	return name, dense, nil
}

func decodeMATNumeric(typ uint32, data []byte, order binary.ByteOrder) ([]float64, error) {
	var width int
	switch typ {
	case miINT8, miUINT8:
		width = 1
	case miINT16, miUINT16:
		width = 2
	case miINT32, miUINT32, miSINGLE:
		width = 4
	case miDOUBLE, miINT64, miUINT64:
		width = 8
	default:
		return nil, fmt.Errorf("unsupported mat data type %d", typ)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("mat data of %d bytes is not a multiple of %d", len(data), width)
	}

	out := make([]float64, len(data)/width)
	for i := range out {
		b := data[i*width:]
		switch typ {
		case miINT8:
			out[i] = float64(int8(b[0]))
		case miUINT8:
			out[i] = float64(b[0])
		case miINT16:
			out[i] = float64(int16(order.Uint16(b)))
		case miUINT16:
			out[i] = float64(order.Uint16(b))
		case miINT32:
			out[i] = float64(int32(order.Uint32(b)))
		case miUINT32:
			out[i] = float64(order.Uint32(b))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case miDOUBLE:
			out[i] = math.Float64frombits(order.Uint64(b))
		case miINT64:
			out[i] = float64(int64(order.Uint64(b)))
		case miUINT64:
			out[i] = float64(order.Uint64(b))
		}
	}
	return out, nil
}
