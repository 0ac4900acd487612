package signals

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/mat"
)

// RFC 8746 tags
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagUint64LE      = 71
	tagInt8          = 72
	tagInt16LE       = 77
	tagInt32LE       = 78
	tagInt64LE       = 79
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

const (
	cborMajorMap   = 5
	cborBreak      = 0xff
	cborIndefinite = 31
)

// readCBOR decodes the first entry of a top level CBOR map whose key does not
// start with "__". Map keys are visited in wire order.
func readCBOR(r io.Reader) (*decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read cbor: %w", err)
	}

	count, rest, err := cborMapHeader(data)
	if err != nil {
		return nil, err
	}

	for i := 0; count < 0 || i < count; i++ {
		if count < 0 {
			if len(rest) == 0 {
				return nil, io.ErrUnexpectedEOF
			}
			if rest[0] == cborBreak {
				break
			}
		}

		var key string
		if rest, err = cbor.UnmarshalFirst(rest, &key); err != nil {
			return nil, fmt.Errorf("cbor map key %d: %w", i, err)
		}

		var raw cbor.RawMessage
		if rest, err = cbor.UnmarshalFirst(rest, &raw); err != nil {
			return nil, fmt.Errorf("cbor entry %q: %w", key, err)
		}
		if strings.HasPrefix(key, "__") {
			continue
		}

		var value any
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("cbor entry %q: %w", key, err)
		}
		dense, err := cborMatrix(value)
		if err != nil {
			return nil, fmt.Errorf("cbor entry %q: %w", key, err)
		}
		return &decoded{dense: dense, variable: key}, nil
	}

	return nil, errors.New("cbor map holds no usable entry")
}

// cborMapHeader returns the pair count of a leading map header, or -1 for an
// indefinite length map, and the bytes following the header
func cborMapHeader(data []byte) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	if major := data[0] >> 5; major != cborMajorMap {
		return 0, nil, fmt.Errorf("cbor top level item has major type %d, want a map", major)
	}

	info := data[0] & 0x1f
	data = data[1:]
	var n uint64
	switch {
	case info < 24:
		n = uint64(info)
	case info == 24 && len(data) >= 1:
		n, data = uint64(data[0]), data[1:]
	case info == 25 && len(data) >= 2:
		n, data = uint64(binary.BigEndian.Uint16(data)), data[2:]
	case info == 26 && len(data) >= 4:
		n, data = uint64(binary.BigEndian.Uint32(data)), data[4:]
	case info == 27 && len(data) >= 8:
		n, data = binary.BigEndian.Uint64(data), data[8:]
	case info == cborIndefinite:
		return -1, data, nil
	default:
		return 0, nil, errors.New("malformed cbor map header")
	}
	if n > math.MaxInt32 {
		return 0, nil, fmt.Errorf("cbor map of %d entries is too large", n)
	}
	return int(n), data, nil
}

// cborMatrix accepts a tag 40 multi-dimensional array or nested arrays of
// numbers
func cborMatrix(value any) (*mat.Dense, error) {
	switch v := value.(type) {
	case cbor.Tag:
		return decodeMultiDimArray(v)
	case []any:
		return decodeNestedArray(v)
	default:
		return nil, fmt.Errorf("unsupported cbor value %T", value)
	}
}

func decodeMultiDimArray(tag cbor.Tag) (*mat.Dense, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("unsupported cbor tag %d", tag.Number)
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}

	dims, ok := items[0].([]any)
	if !ok {
		return nil, errors.New("invalid multidim dimensions")
	}
	var rows, cols int
	switch len(dims) {
	case 1:
		n, err := toInt(dims[0])
		if err != nil {
			return nil, err
		}
		rows, cols = 1, n
	case 2:
		r, err := toInt(dims[0])
		if err != nil {
			return nil, err
		}
		c, err := toInt(dims[1])
		if err != nil {
			return nil, err
		}
		rows, cols = r, c
	default:
		return nil, fmt.Errorf("%w: multidim array has %d dimensions, want 2", ErrShape, len(dims))
	}
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: multidim array is %dx%d", ErrShape, rows, cols)
	}

	var values []float64
	switch flat := items[1].(type) {
	case cbor.Tag:
		v, err := decodeTypedArray(flat)
		if err != nil {
			return nil, err
		}
		values = v
	case []any:
		values = make([]float64, len(flat))
		for i, x := range flat {
			f, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			values[i] = f
		}
	default:
		return nil, fmt.Errorf("unsupported multidim payload %T", items[1])
	}

	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(values), rows, cols)
	}
	return mat.NewDense(rows, cols, values), nil
}

func decodeTypedArray(tag cbor.Tag) ([]float64, error) {
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("typed array tag %d content is %T, want bytes", tag.Number, tag.Content)
	}

	var width int
	switch tag.Number {
	case tagUint8, tagInt8:
		width = 1
	case tagUint16LE, tagInt16LE:
		width = 2
	case tagUint32LE, tagInt32LE, tagFloat32LE:
		width = 4
	case tagUint64LE, tagInt64LE, tagFloat64LE:
		width = 8
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("typed array of %d bytes is not a multiple of %d", len(data), width)
	}

	le := binary.LittleEndian
	out := make([]float64, len(data)/width)
	for i := range out {
		b := data[i*width:]
		switch tag.Number {
		case tagUint8:
			out[i] = float64(b[0])
		case tagInt8:
			out[i] = float64(int8(b[0]))
		case tagUint16LE:
			out[i] = float64(le.Uint16(b))
		case tagInt16LE:
			out[i] = float64(int16(le.Uint16(b)))
		case tagUint32LE:
			out[i] = float64(le.Uint32(b))
		case tagInt32LE:
			out[i] = float64(int32(le.Uint32(b)))
		case tagFloat32LE:
			out[i] = float64(math.Float32frombits(le.Uint32(b)))
		case tagUint64LE:
			out[i] = float64(le.Uint64(b))
		case tagInt64LE:
			out[i] = float64(int64(le.Uint64(b)))
		case tagFloat64LE:
			out[i] = math.Float64frombits(le.Uint64(b))
		}
	}
	return out, nil
}

// decodeNestedArray reads [[row0...], [row1...]] or a flat [v0, v1, ...]
func decodeNestedArray(rowsRaw []any) (*mat.Dense, error) {
	if len(rowsRaw) == 0 {
		return nil, fmt.Errorf("%w: empty cbor array", ErrShape)
	}

	if _, nested := rowsRaw[0].([]any); !nested {
		values := make([]float64, len(rowsRaw))
		for i, x := range rowsRaw {
			f, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			values[i] = f
		}
		return mat.NewDense(1, len(values), values), nil
	}

	var (
		values []float64
		cols   int
	)
	for i, rowRaw := range rowsRaw {
		row, ok := rowRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("cbor row %d is %T, want array", i, rowRaw)
		}
		if i == 0 {
			cols = len(row)
		}
		if len(row) != cols {
			return nil, fmt.Errorf("%w: cbor row %d has %d values, want %d", ErrShape, i, len(row), cols)
		}
		for _, x := range row {
			f, err := toFloat(x)
			if err != nil {
				return nil, err
			}
			values = append(values, f)
		}
	}
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty cbor rows", ErrShape)
	}
	return mat.NewDense(len(rowsRaw), cols, values), nil
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case uint64:
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("dimension %d is too large", v)
		}
		return int(v), nil
	case int64:
		if v < 0 || v > math.MaxInt32 {
			return 0, fmt.Errorf("invalid dimension %d", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("unsupported dimension type %T", value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported cbor number %T", value)
	}
}
