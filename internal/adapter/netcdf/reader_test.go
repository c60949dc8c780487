package netcdf

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

type attrMap struct {
	keys   []string
	values map[string]any
}

func (a attrMap) Keys() []string { return a.keys }

func (a attrMap) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a attrMap) GetType(string) (string, bool) { return "", false }

func (a attrMap) GetGoType(string) (string, bool) { return "", false }

func newAttrs(kv ...string) attrMap {
	a := attrMap{values: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		a.keys = append(a.keys, kv[i])
		a.values[kv[i]] = kv[i+1]
	}
	return a
}

var timeAttrs = newAttrs("units", "hours since 1970-01-01 00:00:00", "calendar", "360_day")

type ncVar struct {
	name string
	v    api.Variable
}

func writeNC(t *testing.T, vars ...ncVar) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.nc")
	w, err := cdf.OpenWriter(path)
	require.NoError(t, err)
	for _, v := range vars {
		require.NoError(t, w.AddVar(v.name, v.v), v.name)
	}
	require.NoError(t, w.Close())
	return path
}

func gridVars() []ncVar {
	return []ncVar{
		{"time", api.Variable{Values: []float64{0.5, 1.5, 2.5}, Dimensions: []string{"time"}, Attributes: timeAttrs}},
		{"grid_latitude", api.Variable{Values: []float64{1, 2}, Dimensions: []string{"grid_latitude"}, Attributes: newAttrs()}},
		{"grid_longitude", api.Variable{Values: []float64{10, 20, 30}, Dimensions: []string{"grid_longitude"}, Attributes: newAttrs()}},
		{"latitude", api.Variable{
			Values:     [][]float64{{51, 51, 51}, {52, 52, 52}},
			Dimensions: []string{"grid_latitude", "grid_longitude"},
			Attributes: newAttrs(),
		}},
		{"longitude", api.Variable{
			Values:     [][]float64{{-1, -2, -3}, {-1, -2, -3}},
			Dimensions: []string{"grid_latitude", "grid_longitude"},
			Attributes: newAttrs(),
		}},
	}
}

func prValues() [][][]float32 {
	return [][][]float32{
		{{1e20, 2, 3}, {4, 5, 6}},
		{{11, 12, 13}, {14, 15, 16}},
		{{21, 22, 23}, {24, 25, 26}},
	}
}

func testMask() domain.Mask {
	nan := math.NaN()
	return domain.Mask{NY: 2, NX: 3, WCID: []float64{0, nan, 1, -1, 2, 0}}
}

func testReader() *Reader {
	return NewReader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReadMask(t *testing.T) {
	path := writeNC(t, ncVar{"WCID", api.Variable{
		Values:     [][][]float64{{{0, math.NaN(), 1}, {-1, 2, 1e20}}},
		Dimensions: []string{"time", "grid_latitude", "grid_longitude"},
		Attributes: newAttrs(),
	}})

	m, err := testReader().ReadMask(path, "WCID")
	require.NoError(t, err)

	assert.Equal(t, 2, m.NY)
	assert.Equal(t, 3, m.NX)
	assert.Equal(t, []int{0, 2, 4}, m.ValidCells())
	assert.True(t, math.IsNaN(m.WCID[5]), "fill values are outside every company")
}

func TestReadMask_MissingVariable(t *testing.T) {
	path := writeNC(t, gridVars()...)
	_, err := testReader().ReadMask(path, "WCID")
	require.Error(t, err)
}

func TestReadField_TimeChunks(t *testing.T) {
	vars := append(gridVars(), ncVar{"pr", api.Variable{
		Values:     prValues(),
		Dimensions: []string{"time", "grid_latitude", "grid_longitude"},
		Attributes: newAttrs("units", "mm/hour"),
	}})
	path := writeNC(t, vars...)

	r := testReader()
	r.chunkSize = 2
	f, err := r.ReadField(context.Background(), path, "pr", testMask())
	require.NoError(t, err)

	assert.Equal(t, []domain.Date360{
		{Year: 1970, Month: 1, Day: 1, Minute: 30},
		{Year: 1970, Month: 1, Day: 1, Hour: 1, Minute: 30},
		{Year: 1970, Month: 1, Day: 1, Hour: 2, Minute: 30},
	}, f.Times)

	require.Len(t, f.Cells, 4)
	assert.Equal(t, domain.Cell{Index: 0, ID: "UK_00100N_01000E", GridLat: 1, GridLon: 10, Lat: 51, Lon: -1}, f.Cells[0])
	assert.Equal(t, domain.Cell{Index: 5, ID: "UK_00200N_03000E", GridLat: 2, GridLon: 30, Lat: 52, Lon: -3}, f.Cells[3])

	assert.True(t, math.IsNaN(float64(f.Values[0][0])))
	assert.Equal(t, []float32{11, 21}, f.Values[0][1:])
	assert.Equal(t, []float32{3, 13, 23}, f.Values[1])
	assert.Equal(t, []float32{5, 15, 25}, f.Values[2])
	assert.Equal(t, []float32{6, 16, 26}, f.Values[3])
}

func TestReadField_FirstEnsembleMember(t *testing.T) {
	vars := append(gridVars(), ncVar{"pr", api.Variable{
		Values:     [][][][]float32{prValues()},
		Dimensions: []string{"ensemble_member", "time", "grid_latitude", "grid_longitude"},
		Attributes: newAttrs(),
	}})
	path := writeNC(t, vars...)

	f, err := testReader().ReadField(context.Background(), path, "pr", testMask())
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 16, 26}, f.Values[3])
}

func TestReadField_GridMismatch(t *testing.T) {
	vars := append(gridVars(), ncVar{"pr", api.Variable{
		Values:     prValues(),
		Dimensions: []string{"time", "grid_latitude", "grid_longitude"},
		Attributes: newAttrs(),
	}})
	path := writeNC(t, vars...)

	mask := domain.Mask{NY: 3, NX: 2, WCID: make([]float64, 6)}
	_, err := testReader().ReadField(context.Background(), path, "pr", mask)
	require.ErrorIs(t, err, domain.ErrGridMismatch)
}

func TestReadCatchmentSeries(t *testing.T) {
	path := writeNC(t,
		ncVar{"time", api.Variable{Values: []float64{0.49999, 1.50001}, Dimensions: []string{"time"}, Attributes: timeAttrs}},
		ncVar{"catchment_ID", api.Variable{Values: []int32{101, 202}, Dimensions: []string{"catchment_ID"}, Attributes: newAttrs()}},
		ncVar{"pr", api.Variable{
			Values:     [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			Dimensions: []string{"time", "catchment_ID"},
			Attributes: newAttrs(),
		}},
	)

	s, err := testReader().ReadCatchmentSeries(path, "pr")
	require.NoError(t, err)

	assert.Equal(t, []string{"101", "202"}, s.IDs)
	assert.Equal(t, domain.Date360{Year: 1970, Month: 1, Day: 1, Minute: 30}, s.Times[0])
	assert.Equal(t, domain.Date360{Year: 1970, Month: 1, Day: 1, Hour: 1, Minute: 30}, s.Times[1])
	assert.Equal(t, [][]float32{{0.1, 0.3}, {0.2, 0.4}}, s.Values)
}

func TestFlatten(t *testing.T) {
	vals, shape, err := flatten([][]int16{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, vals)

	_, _, err = flatten([]string{"a"})
	require.Error(t, err)

	assert.Equal(t, []int{4, 5}, squeeze([]int{1, 1, 4, 5}))
}

func TestLabels(t *testing.T) {
	got, err := labels([]float64{3, 4.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4.5"}, got)

	got, err = labels([]string{"NI_01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NI_01"}, got)
}
