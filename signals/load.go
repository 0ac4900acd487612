package signals

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/moviescan/algorithms/stats"
	"github.com/RyanBlaney/moviescan/logging"
	"gonum.org/v1/gonum/mat"
)

// ErrUnsupportedFormat is returned for file extensions without a loader
var ErrUnsupportedFormat = errors.New("unsupported signal matrix format")

// decoded is what every format reader produces
type decoded struct {
	dense    *mat.Dense
	variable string
}

type reader func(r io.Reader) (*decoded, error)

var readers = map[Format]reader{
	FormatNPY:  readNPY,
	FormatCSV:  readCSV,
	FormatMAT:  readMAT,
	FormatCBOR: readCBOR,
}

// SupportedExtensions lists the file extensions Load understands
func SupportedExtensions() []string {
	return []string{".npy", ".csv", ".mat", ".cbor"}
}

// FormatFromPath picks a Format from the file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".npy":
		return FormatNPY, nil
	case ".csv":
		return FormatCSV, nil
	case ".mat":
		return FormatMAT, nil
	case ".cbor":
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w: %q (use %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions(), ", "))
	}
}

// Load reads a units x bins matrix, choosing the decoder by file extension
func Load(path string) (*Matrix, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "signal_loader",
		"function":  "Load",
		"filename":  path,
	})

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signal matrix: %w", err)
	}
	defer f.Close()

	m, err := LoadReader(f, format)
	if err != nil {
		logger.Error(err, "Failed to decode signal matrix", logging.Fields{"format": format})
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	m.source = path

	summary := stats.Describe(m.data.RawMatrix().Data)
	logger.Debug("Signal matrix decoded", logging.Fields{
		"format":   format,
		"units":    m.Units(),
		"bins":     m.Bins(),
		"variable": m.variable,
		"min":      summary.Min,
		"max":      summary.Max,
		"nan":      summary.NaN,
	})

	return m, nil
}

// LoadReader decodes a matrix of the given format from r
func LoadReader(r io.Reader, format Format) (*Matrix, error) {
	read, ok := readers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	d, err := read(r)
	if err != nil {
		return nil, err
	}

	units, bins := d.dense.Dims()
	if units < 1 || bins < 1 {
		return nil, fmt.Errorf("%w: %d units x %d bins", ErrShape, units, bins)
	}

	return &Matrix{data: d.dense, format: format, variable: d.variable}, nil
}
