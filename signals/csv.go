package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// readCSV decodes comma separated rows of numbers, one row per unit
func readCSV(r io.Reader) (*decoded, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		values []float64
		cols   int
		rows   int
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: ragged csv rows: %v", ErrShape, err)
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		if rows == 0 {
			cols = len(record)
		}
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("csv row %d column %d: %w", rows+1, j+1, err)
			}
			values = append(values, v)
		}
		rows++
	}

	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: csv holds no values", ErrShape)
	}

	return &decoded{dense: mat.NewDense(rows, cols, values)}, nil
}
