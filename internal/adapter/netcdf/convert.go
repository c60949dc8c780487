package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// fillThreshold marks values at or above it as fill values. UKCP18 files use
// 1e20 for missing data.
const fillThreshold = 1e19

func missing64(v float64) bool { return math.IsNaN(v) || v >= fillThreshold }

func clean32(v float32) float32 {
	if missing64(float64(v)) {
		return float32(math.NaN())
	}
	return v
}

// flatten walks nested numeric slices in row-major order and returns the
// values with the array shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	var shape []int
	for cur := rv; cur.Kind() == reflect.Slice; {
		shape = append(shape, cur.Len())
		if cur.Len() == 0 {
			break
		}
		cur = cur.Index(0)
	}

	size := 1
	for _, n := range shape {
		size *= n
	}
	out := make([]float64, 0, size)

	var walk func(reflect.Value) error
	walk = func(val reflect.Value) error {
		switch val.Kind() {
		case reflect.Slice:
			for i := 0; i < val.Len(); i++ {
				if err := walk(val.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			f := val.Float()
			if missing64(f) {
				f = math.NaN()
			}
			out = append(out, f)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(val.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(val.Uint()))
		default:
			return fmt.Errorf("unsupported value type %s", val.Type())
		}
		return nil
	}
	if err := walk(rv); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

// squeeze drops leading length-1 dimensions.
func squeeze(shape []int) []int {
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	return shape
}

// asGrid3 converts a (time, y, x) slice to float32 with fill values as NaN.
func asGrid3(v any) ([][][]float32, error) {
	switch g := v.(type) {
	case [][][]float32:
		for _, plane := range g {
			for _, row := range plane {
				for i, x := range row {
					row[i] = clean32(x)
				}
			}
		}
		return g, nil
	case [][][]float64:
		out := make([][][]float32, len(g))
		for t, plane := range g {
			out[t] = make([][]float32, len(plane))
			for y, row := range plane {
				out[t][y] = make([]float32, len(row))
				for x, val := range row {
					if missing64(val) {
						out[t][y][x] = float32(math.NaN())
					} else {
						out[t][y][x] = float32(val)
					}
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported data layout %T", v)
	}
}

// asGrid4 returns the first member of an (ensemble, time, y, x) slice.
func asGrid4(v any) ([][][]float32, error) {
	switch g := v.(type) {
	case [][][][]float32:
		if len(g) == 0 {
			return nil, fmt.Errorf("empty ensemble dimension")
		}
		return asGrid3(g[0])
	case [][][][]float64:
		if len(g) == 0 {
			return nil, fmt.Errorf("empty ensemble dimension")
		}
		return asGrid3(g[0])
	default:
		return nil, fmt.Errorf("unsupported data layout %T", v)
	}
}

// labels renders catchment ids, which are stored either as numbers or strings.
func labels(v any) ([]string, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	vals, shape, err := flatten(v)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("catchment ids must be 1-D, got shape %v", shape)
	}
	out := make([]string, len(vals))
	for i, f := range vals {
		if f == math.Trunc(f) {
			out[i] = strconv.FormatInt(int64(f), 10)
		} else {
			out[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return out, nil
}
