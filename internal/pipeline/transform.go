package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

// RainfallTransformer implements Transformer with the water company
// statistics of domain.Summarize.
type RainfallTransformer struct {
	mask     domain.Mask
	settings domain.Settings
	logger   *slog.Logger
}

// NewTransformer creates a RainfallTransformer. Companies that own no cell of
// mask are reported once and skipped in every job.
func NewTransformer(mask domain.Mask, settings domain.Settings, logger *slog.Logger) *RainfallTransformer {
	for wcid := 0; wcid < settings.NumberOfWC; wcid++ {
		if len(mask.Cells(wcid)) == 0 {
			logger.Debug("water company has no cells in mask", "wcid", wcid)
		}
	}
	return &RainfallTransformer{mask: mask, settings: settings, logger: logger}
}

func (t *RainfallTransformer) Transform(ctx context.Context, job domain.Job, field *domain.Field) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(field.Times) == 0 {
		return nil, errors.New("field has no time steps")
	}

	records := domain.Summarize(job, field, t.mask, t.settings)
	t.logger.Debug("job summarized", "job", job.Key(), "cells", len(field.Cells), "records", len(records))
	return records, nil
}
