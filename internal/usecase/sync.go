package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/metrics"
	"CatalogScanner/internal/ports"
)

// Mediator keeps the spreadsheet mirror derived from the catalog. Every
// sync rewrites the whole file from the current rows; calls are serialized
// so the last one to finish reflects the latest state.
type Mediator struct {
	store  ports.CatalogStore
	mirror ports.MirrorFile
	logger *slog.Logger

	mu sync.Mutex
}

var _ ports.MirrorSyncer = (*Mediator)(nil)

// NewMediator wires the catalog to its mirror file.
func NewMediator(store ports.CatalogStore, mirror ports.MirrorFile, log *slog.Logger) *Mediator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Mediator{store: store, mirror: mirror, logger: log}
}

// Sync regenerates the mirror. Failures come back as *domain.SyncWriteError
// and never touch the catalog.
func (m *Mediator) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.regenerate(ctx)
	metrics.RecordSync(err)
	if err != nil {
		m.logger.Error("mirror sync failed", "path", m.mirror.Location(), "error", err)
		return &domain.SyncWriteError{Path: m.mirror.Location(), Err: err}
	}
	return nil
}

func (m *Mediator) regenerate(ctx context.Context) error {
	products, err := m.store.List(ctx, ports.ListOptions{})
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	if err := m.mirror.Write(products); err != nil {
		return err
	}
	m.logger.Debug("mirror regenerated", "path", m.mirror.Location(), "rows", len(products))
	return nil
}

// Download returns the mirror bytes, regenerating first when the catalog
// has rows. A failed regeneration falls back to the file already on disk.
func (m *Mediator) Download(ctx context.Context) ([]byte, error) {
	rows, err := m.store.List(ctx, ports.ListOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	if len(rows) > 0 {
		if err := m.Sync(ctx); err != nil {
			m.logger.Warn("serving previous mirror", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirror.Read()
}

// MirrorDiff describes where the mirror and the catalog disagree.
type MirrorDiff struct {
	MissingInMirror []string
	ExtraInMirror   []string
	Changed         []string
}

// Empty reports whether mirror and catalog agree.
func (d MirrorDiff) Empty() bool {
	return len(d.MissingInMirror) == 0 && len(d.ExtraInMirror) == 0 && len(d.Changed) == 0
}

// Verify compares the mirror on disk with the catalog, row by row, on the
// fields the mirror carries.
func (m *Mediator) Verify(ctx context.Context) (MirrorDiff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	catalog, err := m.store.List(ctx, ports.ListOptions{})
	if err != nil {
		return MirrorDiff{}, fmt.Errorf("list catalog: %w", err)
	}
	mirrored, err := m.mirror.Load()
	if err != nil {
		return MirrorDiff{}, err
	}

	byID := make(map[string]domain.Product, len(mirrored))
	for _, p := range mirrored {
		byID[p.OriginalID] = p
	}

	var diff MirrorDiff
	for _, p := range catalog {
		row, ok := byID[p.OriginalID]
		if !ok {
			diff.MissingInMirror = append(diff.MissingInMirror, p.OriginalID)
			continue
		}
		delete(byID, p.OriginalID)
		if !sameMirrorFields(p, row) {
			diff.Changed = append(diff.Changed, p.OriginalID)
		}
	}
	for _, p := range mirrored {
		if _, left := byID[p.OriginalID]; left {
			diff.ExtraInMirror = append(diff.ExtraInMirror, p.OriginalID)
		}
	}
	return diff, nil
}

func sameMirrorFields(a, b domain.Product) bool {
	if a.EAN != b.EAN || a.OriginalName != b.OriginalName || a.IsAvailable != b.IsAvailable {
		return false
	}
	if !sameString(a.ResolvedName, b.ResolvedName) || !sameString(a.ResolvedURL, b.ResolvedURL) ||
		!sameString(a.SellerName, b.SellerName) || !sameString(a.ScrapeError, b.ScrapeError) {
		return false
	}
	if a.LowestPrice.Valid != b.LowestPrice.Valid ||
		(a.LowestPrice.Valid && !a.LowestPrice.Decimal.Round(2).Equal(b.LowestPrice.Decimal.Round(2))) {
		return false
	}
	if (a.LastScraped == nil) != (b.LastScraped == nil) {
		return false
	}
	return a.LastScraped == nil || a.LastScraped.Truncate(time.Second).Equal(b.LastScraped.Truncate(time.Second))
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
