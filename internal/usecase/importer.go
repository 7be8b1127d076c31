package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// ImportReport counts what happened to each input row.
type ImportReport struct {
	Imported  int `json:"imported"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// Importer seeds the catalog from the input spreadsheet. Existing rows are
// never overwritten.
type Importer struct {
	source ports.InputSource
	store  ports.CatalogStore
	mirror ports.MirrorSyncer
	logger *slog.Logger
}

// NewImporter wires the input file, the catalog and the mirror.
func NewImporter(source ports.InputSource, store ports.CatalogStore, mirror ports.MirrorSyncer, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Importer{source: source, store: store, mirror: mirror, logger: log}
}

// Import reads every row and creates the ones whose ID is new. The mirror
// is regenerated once at the end.
func (i *Importer) Import(ctx context.Context) (ImportReport, error) {
	var report ImportReport
	if i.source == nil {
		return report, fmt.Errorf("input spreadsheet is not configured")
	}

	rows, err := i.source.Rows(ctx)
	if err != nil {
		return report, err
	}
	i.logger.Info("import started", "path", i.source.Location(), "rows", len(rows))

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := strings.TrimSpace(row.OriginalID); id != "" {
			ids = append(ids, id)
		}
	}
	existing, err := i.store.Exists(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("load existing ids: %w", err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		product := domain.NewProduct(row.OriginalID, row.EAN, row.Name)
		if product.OriginalID == "" || product.OriginalName == "" {
			i.logger.Warn("malformed input row", "line", row.Line, "id", product.OriginalID)
			report.Malformed++
			continue
		}
		if existing[product.OriginalID] {
			report.Skipped++
			continue
		}

		if _, err := i.store.Create(ctx, product); err != nil {
			if errors.Is(err, domain.ErrDuplicateIdentity) {
				report.Skipped++
				continue
			}
			var invalid *domain.ValidationError
			if errors.As(err, &invalid) {
				i.logger.Warn("invalid input row", "line", row.Line, "error", err)
				report.Malformed++
				continue
			}
			return report, fmt.Errorf("line %d: %w", row.Line, err)
		}
		existing[product.OriginalID] = true
		report.Imported++
	}

	if i.mirror != nil {
		if err := i.mirror.Sync(ctx); err != nil {
			i.logger.Error("mirror out of date after import", "error", err)
		}
	}

	i.logger.Info("import finished",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"malformed", report.Malformed)
	return report, nil
}
