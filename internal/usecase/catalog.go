package usecase

import (
	"context"
	"log/slog"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// CatalogService is the CRUD surface over the catalog. Each committed
// mutation regenerates the mirror; a failed regeneration is logged and does
// not change the result of the mutation.
type CatalogService struct {
	store  ports.CatalogStore
	mirror ports.MirrorSyncer
	logger *slog.Logger
}

// NewCatalogService wires the store with the mirror syncer.
func NewCatalogService(store ports.CatalogStore, mirror ports.MirrorSyncer, log *slog.Logger) *CatalogService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CatalogService{store: store, mirror: mirror, logger: log}
}

// Create adds a product with identity fields only.
func (s *CatalogService) Create(ctx context.Context, id, ean, name string) (domain.Product, error) {
	created, err := s.store.Create(ctx, domain.NewProduct(id, ean, name))
	if err != nil {
		return domain.Product{}, err
	}
	s.syncMirror(ctx, "create", created.OriginalID)
	return created, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.store.Get(ctx, id)
}

func (s *CatalogService) List(ctx context.Context, opts ports.ListOptions) ([]domain.Product, error) {
	return s.store.List(ctx, opts)
}

// Update applies a partial change; enrichment fields may only be cleared
// or set in ways that keep the row consistent.
func (s *CatalogService) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return domain.Product{}, err
	}
	s.syncMirror(ctx, "update", updated.OriginalID)
	return updated, nil
}

func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.syncMirror(ctx, "delete", id)
	return nil
}

func (s *CatalogService) syncMirror(ctx context.Context, op, id string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Sync(ctx); err != nil {
		s.logger.Error("mirror out of date after mutation", "op", op, "id", id, "error", err)
	}
}
