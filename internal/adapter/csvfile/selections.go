// Package csvfile reads the month selection table and appends output records
// to CSV files.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

var selectionColumns = []string{"Projection_slice_ID", "Year", "Month"}

// ReadSelections returns the rows of the selection table for projectionID in
// file order. Extra columns are ignored.
func ReadSelections(path string, projectionID int) ([]domain.Selection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open selections: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read selections header %s: %w", path, err)
	}
	idx, err := columnIndex(header, selectionColumns)
	if err != nil {
		return nil, fmt.Errorf("selections %s: %w", path, err)
	}

	var out []domain.Selection
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("selections %s line %d: %w", path, line, err)
		}
		vals := make([]int, len(selectionColumns))
		for i, col := range selectionColumns {
			if idx[i] >= len(row) {
				return nil, fmt.Errorf("selections %s line %d: missing %s", path, line, col)
			}
			v, err := parseIntCell(row[idx[i]])
			if err != nil {
				return nil, fmt.Errorf("selections %s line %d: %s: %w", path, line, col, err)
			}
			vals[i] = v
		}
		if vals[0] != projectionID {
			continue
		}
		out = append(out, domain.Selection{ProjectionID: vals[0], Year: vals[1], Month: vals[2]})
	}
	return out, nil
}

// HasSelection reports whether sel contains year and month.
func HasSelection(sel []domain.Selection, year, month int) bool {
	for _, s := range sel {
		if s.Year == year && s.Month == month {
			return true
		}
	}
	return false
}

func columnIndex(header, want []string) ([]int, error) {
	idx := make([]int, len(want))
	for i, col := range want {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == col {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("missing column %s", col)
		}
	}
	return idx, nil
}

// parseIntCell accepts integers written as floats, e.g. "12.0".
func parseIntCell(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}
