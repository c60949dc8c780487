// Package postprocess merges catchment-averaged pr and tas NetCDF series into
// one CSV file per catchment.
package postprocess

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

// SeriesReader loads a catchment-averaged variable from a NetCDF file.
type SeriesReader interface {
	ReadCatchmentSeries(path, variable string) (*domain.CatchmentSeries, error)
}

// Processor writes the per-catchment CSV files of one ensemble member.
type Processor struct {
	reader SeriesReader
	logger *slog.Logger
}

// New creates a Processor.
func New(reader SeriesReader, logger *slog.Logger) *Processor {
	return &Processor{reader: reader, logger: logger}
}

// FileName returns the CSV file name for a catchment of ensemble member ensID.
func FileName(ensID, catchmentID string) string {
	return fmt.Sprintf("pr_tas_rcp85_land-cpm_uk_2.2km_%s_1hr_1980-2080_NIcatch_ave_ID%s.csv", ensID, catchmentID)
}

// Run reads every file under <inDir>/<ensID>/pr and <inDir>/<ensID>/tas in name
// order and writes <outDir>/<id>/<FileName(ensID, id)> for each catchment.
func (p *Processor) Run(ctx context.Context, inDir, outDir, ensID string) error {
	pr, err := p.load(ctx, filepath.Join(inDir, ensID, "pr"), "pr")
	if err != nil {
		return err
	}
	tas, err := p.load(ctx, filepath.Join(inDir, ensID, "tas"), "tas")
	if err != nil {
		return err
	}

	if !slices.Equal(pr.IDs, tas.IDs) {
		return fmt.Errorf("pr and tas catchments differ: %v vs %v", pr.IDs, tas.IDs)
	}
	if len(pr.Times) != len(tas.Times) {
		return fmt.Errorf("pr has %d time steps but tas has %d", len(pr.Times), len(tas.Times))
	}

	for c, id := range pr.IDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.logger.Info("writing catchment", "catchment", id, "n", c+1, "of", len(pr.IDs))
		dir := filepath.Join(outDir, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := writeCatchment(filepath.Join(dir, FileName(ensID, id)), pr.Times, pr.Values[c], tas.Values[c]); err != nil {
			return err
		}
	}
	return nil
}

// load concatenates the series of every file in dir along time.
func (p *Processor) load(ctx context.Context, dir, variable string) (*domain.CatchmentSeries, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", variable, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files in %s", variable, dir)
	}

	var out *domain.CatchmentSeries
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.logger.Info("loading file", "variable", variable, "n", i+1, "of", len(files), "path", path)
		s, err := p.reader.ReadCatchmentSeries(path, variable)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = s
			continue
		}
		if err := appendSeries(out, s); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return out, nil
}

func appendSeries(dst, next *domain.CatchmentSeries) error {
	if !slices.Equal(dst.IDs, next.IDs) {
		return errors.New("catchment ids differ from earlier files")
	}
	dst.Times = append(dst.Times, next.Times...)
	for c := range dst.Values {
		dst.Values[c] = append(dst.Values[c], next.Values[c]...)
	}
	return nil
}

func writeCatchment(path string, times []domain.Date360, pr, tas []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "pr (mm/hour)", "tas (celsius)"}); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for t, ts := range times {
		if err := w.Write([]string{ts.String() + ":00", formatValue(pr[t]), formatValue(tas[t])}); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// formatValue writes the shortest representation of v; missing values are empty.
func formatValue(v float32) string {
	if math.IsNaN(float64(v)) {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
