// Package netcdf reads UKCP18 NetCDF files into domain fields.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

const (
	timeVar     = "time"
	gridLatVar  = "grid_latitude"
	gridLonVar  = "grid_longitude"
	latVar      = "latitude"
	lonVar      = "longitude"
	catchIDVar  = "catchment_ID"
	defaultCal  = "360_day"
	timeChunk   = 30
	ensembleDim = "ensemble_member"
)

// Reader decodes gridded model output. It implements pipeline.FieldReader.
type Reader struct {
	logger    *slog.Logger
	chunkSize int64
}

// NewReader creates a Reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger, chunkSize: timeChunk}
}

// ReadMask loads a 2-D water company id grid.
func (r *Reader) ReadMask(path, variable string) (domain.Mask, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return domain.Mask{}, fmt.Errorf("open mask %s: %w", path, err)
	}
	defer nc.Close()

	v, err := nc.GetVariable(variable)
	if err != nil {
		return domain.Mask{}, fmt.Errorf("mask %s: variable %s: %w", path, variable, err)
	}
	vals, shape, err := flatten(v.Values)
	if err != nil {
		return domain.Mask{}, fmt.Errorf("mask %s: %w", path, err)
	}
	shape = squeeze(shape)
	if len(shape) != 2 {
		return domain.Mask{}, fmt.Errorf("mask %s: %s must be 2-D, got shape %v", path, variable, shape)
	}

	m := domain.Mask{NY: shape[0], NX: shape[1], WCID: vals}
	r.logger.Debug("mask loaded", "path", path, "ny", m.NY, "nx", m.NX, "cells", len(m.ValidCells()))
	return m, nil
}

// ReadField loads variable for every cell valid in mask. Data laid out as
// (time, y, x) is read in time chunks; (ensemble_member, time, y, x) data is
// read for the first member only.
func (r *Reader) ReadField(ctx context.Context, path, variable string, mask domain.Mask) (*domain.Field, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	times, err := readTimes(nc, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cells, err := readCells(nc, mask)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	vg, err := nc.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %s: %w", path, variable, err)
	}

	f := &domain.Field{
		Variable: variable,
		Times:    times,
		Cells:    cells,
		Values:   make([][]float32, len(cells)),
	}
	for i := range f.Values {
		f.Values[i] = make([]float32, 0, len(times))
	}

	dims := vg.Dimensions()
	switch {
	case len(dims) == 4 || (len(dims) > 0 && dims[0] == ensembleDim):
		slice, err := vg.GetSlice(0, 1)
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %w", path, variable, err)
		}
		grid, err := asGrid4(slice)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, variable, err)
		}
		appendCells(f, grid, mask.NX)
	case len(dims) == 3:
		n := vg.Len()
		for begin := int64(0); begin < n; begin += r.chunkSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			end := min(begin+r.chunkSize, n)
			slice, err := vg.GetSlice(begin, end)
			if err != nil {
				return nil, fmt.Errorf("%s: read %s[%d:%d]: %w", path, variable, begin, end, err)
			}
			grid, err := asGrid3(slice)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, variable, err)
			}
			appendCells(f, grid, mask.NX)
		}
	default:
		return nil, fmt.Errorf("%s: %s has dimensions %v, want (time, y, x) or (ensemble_member, time, y, x)", path, variable, dims)
	}

	if len(f.Values) > 0 && len(f.Values[0]) != len(times) {
		return nil, fmt.Errorf("%s: %s has %d time steps, time axis has %d", path, variable, len(f.Values[0]), len(times))
	}

	r.logger.Debug("field loaded", "path", path, "variable", variable, "cells", len(cells), "steps", len(times))
	return f, nil
}

// ReadCatchmentSeries loads a (time, catchment_ID) file of catchment averages.
// Raw time offsets are rounded to one decimal before decoding.
func (r *Reader) ReadCatchmentSeries(path, variable string) (*domain.CatchmentSeries, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	times, err := readTimes(nc, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	idVar, err := nc.GetVariable(catchIDVar)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %s: %w", path, catchIDVar, err)
	}
	ids, err := labels(idVar.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	v, err := nc.GetVariable(variable)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %s: %w", path, variable, err)
	}
	vals, shape, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	shape = squeeze(shape)
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s: %s must be 2-D, got shape %v", path, variable, shape)
	}

	catchFirst := len(v.Dimensions) > 0 && v.Dimensions[0] == catchIDVar
	nt, ncatch := shape[0], shape[1]
	if catchFirst {
		nt, ncatch = shape[1], shape[0]
	}
	if nt != len(times) || ncatch != len(ids) {
		return nil, fmt.Errorf("%s: %s shape %v does not match %d times x %d catchments", path, variable, shape, len(times), len(ids))
	}

	s := &domain.CatchmentSeries{
		Variable: variable,
		Times:    times,
		IDs:      ids,
		Values:   make([][]float32, len(ids)),
	}
	for c := range ids {
		series := make([]float32, nt)
		for t := range series {
			idx := t*ncatch + c
			if catchFirst {
				idx = c*nt + t
			}
			series[t] = float32(vals[idx])
		}
		s.Values[c] = series
	}
	return s, nil
}

func readTimes(nc api.Group, round bool) ([]domain.Date360, error) {
	v, err := nc.GetVariable(timeVar)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", timeVar, err)
	}
	offsets, _, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", timeVar, err)
	}
	if round {
		for i, o := range offsets {
			offsets[i] = math.Round(o*10) / 10
		}
	}

	units, _ := stringAttr(v.Attributes, "units")
	calendar, ok := stringAttr(v.Attributes, "calendar")
	if !ok {
		calendar = defaultCal
	}
	times, err := domain.DecodeTimes(units, calendar, offsets)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", timeVar, err)
	}
	return times, nil
}

func stringAttr(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func readCoord(nc api.Group, name string) ([]float64, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	vals, _, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return vals, nil
}

// readCells builds the cells valid in mask. True latitude and longitude come
// from the 2-D auxiliary coordinates when the file has them.
func readCells(nc api.Group, mask domain.Mask) ([]domain.Cell, error) {
	gridLat, err := readCoord(nc, gridLatVar)
	if err != nil {
		return nil, err
	}
	gridLon, err := readCoord(nc, gridLonVar)
	if err != nil {
		return nil, err
	}
	if err := mask.CheckShape(len(gridLat), len(gridLon)); err != nil {
		return nil, err
	}

	lat, errLat := readCoord(nc, latVar)
	lon, errLon := readCoord(nc, lonVar)
	aux := errLat == nil && errLon == nil && len(lat) == len(mask.WCID) && len(lon) == len(mask.WCID)

	valid := mask.ValidCells()
	cells := make([]domain.Cell, len(valid))
	for i, idx := range valid {
		y, x := idx/mask.NX, idx%mask.NX
		c := domain.Cell{
			Index:   idx,
			GridLat: gridLat[y],
			GridLon: gridLon[x],
			Lat:     gridLat[y],
			Lon:     gridLon[x],
		}
		if aux {
			c.Lat, c.Lon = lat[idx], lon[idx]
		}
		c.ID = domain.CellID(c.GridLat, c.GridLon)
		cells[i] = c
	}
	return cells, nil
}

// appendCells appends the masked cells of a (time, y, x) chunk to f.
func appendCells(f *domain.Field, grid [][][]float32, nx int) {
	for ci, c := range f.Cells {
		y, x := c.Index/nx, c.Index%nx
		series := f.Values[ci]
		for t := range grid {
			series = append(series, grid[t][y][x])
		}
		f.Values[ci] = series
	}
}
