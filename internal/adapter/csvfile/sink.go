package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

// Sink appends records to one CSV file per table under a directory.
// It implements pipeline.BatchLoader.
type Sink struct {
	dir    string
	logger *slog.Logger
}

// NewSink creates a sink writing below dir.
func NewSink(dir string, logger *slog.Logger) *Sink {
	return &Sink{dir: dir, logger: logger}
}

// LoadBatch appends records to their tables. Rows of a table keep their
// relative order; a header is written only when a file is created.
func (s *Sink) LoadBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	var tables []string
	byTable := make(map[string][]domain.Record)
	for _, r := range records {
		t := r.Table()
		if _, ok := byTable[t]; !ok {
			tables = append(tables, t)
		}
		byTable[t] = append(byTable[t], r)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.appendTable(filepath.Join(s.dir, t), byTable[t]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) appendTable(path string, records []domain.Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(records[0].Header()); err != nil {
			f.Close()
			return fmt.Errorf("write header %s: %w", path, err)
		}
	}
	for _, r := range records {
		if err := w.Write(r.Fields()); err != nil {
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

	s.logger.Debug("rows appended", "path", path, "rows", len(records))
	return nil
}
