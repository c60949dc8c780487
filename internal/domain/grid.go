package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrGridMismatch is returned when a dataset and a mask are on different grids.
var ErrGridMismatch = errors.New("grid mismatch")

// Cell is a single model grid cell.
type Cell struct {
	Index   int     `json:"index"` // row-major position in the flattened grid
	ID      string  `json:"id"`
	GridLat float64 `json:"grid_lat"`
	GridLon float64 `json:"grid_lon"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// CellID builds the string id of a cell from its coordinates, e.g.
// (-56.2, 125.05) -> "UK_05620S_12505E".
func CellID(lat, lon float64) string {
	return "UK_" + padCoord(lat, "N", "S") + "_" + padCoord(lon, "E", "W")
}

// padCoord renders |v| with three integer and two decimal digits, drops the
// decimal point and appends the hemisphere letter.
func padCoord(v float64, positive, negative string) string {
	s := strings.Replace(fmt.Sprintf("%06.2f", math.Abs(v)), ".", "", 1)
	if v < 0 {
		return s + negative
	}
	return s + positive
}

// Mask assigns a water company id (WCID) to every cell of a grid.
type Mask struct {
	NY   int
	NX   int
	WCID []float64
}

// Valid reports whether cell i belongs to any water company.
func (m Mask) Valid(i int) bool {
	v := m.WCID[i]
	return !math.IsNaN(v) && v >= 0
}

// ValidCells returns the indices of all cells assigned to a company.
func (m Mask) ValidCells() []int {
	var out []int
	for i := range m.WCID {
		if m.Valid(i) {
			out = append(out, i)
		}
	}
	return out
}

// Cells returns the indices of the cells belonging to wcid.
func (m Mask) Cells(wcid int) []int {
	var out []int
	for i, v := range m.WCID {
		if m.Valid(i) && int(v) == wcid {
			out = append(out, i)
		}
	}
	return out
}

// CheckShape verifies that the mask covers an ny x nx grid.
func (m Mask) CheckShape(ny, nx int) error {
	if m.NY != ny || m.NX != nx || len(m.WCID) != ny*nx {
		return fmt.Errorf("%w: mask is %dx%d, data is %dx%d", ErrGridMismatch, m.NY, m.NX, ny, nx)
	}
	return nil
}

// Field holds one variable as per-cell time series. Missing values are NaN.
type Field struct {
	Variable string
	Times    []Date360
	Cells    []Cell
	Values   [][]float32 // [cell][time]
}

// Concat appends next along the time axis. Both fields must cover the same cells
// and next must start after f ends.
func (f *Field) Concat(next *Field) (*Field, error) {
	if len(f.Cells) != len(next.Cells) {
		return nil, fmt.Errorf("%w: %d cells vs %d cells", ErrGridMismatch, len(f.Cells), len(next.Cells))
	}
	for i := range f.Cells {
		if f.Cells[i].Index != next.Cells[i].Index {
			return nil, fmt.Errorf("%w: cell %d differs", ErrGridMismatch, i)
		}
	}
	if len(f.Times) > 0 && len(next.Times) > 0 && !next.Times[0].After(f.Times[len(f.Times)-1]) {
		return nil, fmt.Errorf("concat %s: %s does not follow %s",
			f.Variable, next.Times[0], f.Times[len(f.Times)-1])
	}

	out := &Field{
		Variable: f.Variable,
		Times:    append(append(make([]Date360, 0, len(f.Times)+len(next.Times)), f.Times...), next.Times...),
		Cells:    f.Cells,
		Values:   make([][]float32, len(f.Cells)),
	}
	for i := range f.Values {
		series := make([]float32, 0, len(f.Times)+len(next.Times))
		series = append(series, f.Values[i]...)
		out.Values[i] = append(series, next.Values[i]...)
	}
	return out, nil
}

// Select returns the subset of f covering the given flattened cell indices.
// Indices that f does not hold are ignored.
func (f *Field) Select(indices []int) *Field {
	pos := make(map[int]int, len(f.Cells))
	for i, c := range f.Cells {
		pos[c.Index] = i
	}

	out := &Field{Variable: f.Variable, Times: f.Times}
	for _, idx := range indices {
		i, ok := pos[idx]
		if !ok {
			continue
		}
		out.Cells = append(out.Cells, f.Cells[i])
		out.Values = append(out.Values, f.Values[i])
	}
	return out
}

// Since returns the part of f at or after start. The result shares storage with f.
func (f *Field) Since(start Date360) *Field {
	first := len(f.Times)
	for i, t := range f.Times {
		if !t.Before(start) {
			first = i
			break
		}
	}

	out := &Field{Variable: f.Variable, Times: f.Times[first:], Cells: f.Cells, Values: make([][]float32, len(f.Values))}
	for i, v := range f.Values {
		out.Values[i] = v[first:]
	}
	return out
}

// CatchmentSeries holds catchment-averaged time series, one per catchment id.
type CatchmentSeries struct {
	Variable string
	Times    []Date360
	IDs      []string
	Values   [][]float32 // [catchment][time]
}
