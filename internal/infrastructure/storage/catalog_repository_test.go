package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

func newSQLiteRepository(t *testing.T) *CatalogRepository {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewCatalogRepository(db, DriverSQLite)
}

func TestCatalogRepositoryCreateRejectsDuplicates(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.NewProduct("A1", "5601234", "Kettle 1.7L"))
	require.NoError(t, err)
	assert.Equal(t, "A1", created.OriginalID)
	assert.False(t, created.HasEnrichment())

	_, err = repo.Create(ctx, domain.NewProduct("A1", "", "Another kettle"))
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	all, err := repo.List(ctx, ports.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "Kettle 1.7L", all[0].OriginalName)
}

func TestCatalogRepositoryCreateIgnoresEnrichment(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	seller := "Someone"
	input := domain.NewProduct("A1", "", "Kettle")
	input.SellerName = &seller
	input.IsAvailable = true

	created, err := repo.Create(ctx, input)
	require.NoError(t, err)
	assert.False(t, created.HasEnrichment())

	stored, err := repo.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, stored.SellerName)
	assert.False(t, stored.IsAvailable)
}

func TestCatalogRepositoryCreateValidates(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)

	_, err := repo.Create(context.Background(), domain.NewProduct("A1", "", ""))
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "original_name", vErr.Field)
}

func TestCatalogRepositoryListOptions(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	for _, id := range []string{"C", "A", "B", "D"} {
		_, err := repo.Create(ctx, domain.NewProduct(id, "", "name "+id))
		require.NoError(t, err)
	}

	limited, err := repo.List(ctx, ports.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "A", limited[0].OriginalID)
	assert.Equal(t, "B", limited[1].OriginalID)

	selected, err := repo.List(ctx, ports.ListOptions{IDs: []string{"D", "B", "Z"}})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "B", selected[0].OriginalID)
	assert.Equal(t, "D", selected[1].OriginalID)

	existing, err := repo.Exists(ctx, []string{"A", "Z"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true}, existing)
}

func TestCatalogRepositoryApplyOutcome(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

	_, err := repo.Create(ctx, domain.NewProduct("A1", "", "Kettle"))
	require.NoError(t, err)

	found, err := repo.ApplyOutcome(ctx, "A1", domain.Resolved{
		Name:   "Kettle Deluxe",
		URL:    "https://www.worten.pt/produtos/kettle-1",
		Price:  decimal.RequireFromString("24.99"),
		Seller: "Worten",
	}, at)
	require.NoError(t, err)
	assert.True(t, found.IsAvailable)
	require.True(t, found.LowestPrice.Valid)
	assert.True(t, found.LowestPrice.Decimal.Equal(decimal.RequireFromString("24.99")))
	require.NotNil(t, found.LastScraped)
	assert.True(t, found.LastScraped.Equal(at))
	assert.Nil(t, found.ScrapeError)
	assert.NoError(t, found.Validate())

	// A transient failure keeps the live listing.
	kept, err := repo.ApplyOutcome(ctx, "A1", domain.ResolutionError{Reason: "timeout"}, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, kept.IsAvailable)
	assert.Nil(t, kept.ScrapeError)
	assert.True(t, kept.LastScraped.Equal(at))

	missing, err := repo.ApplyOutcome(ctx, "A1", domain.NotFound{Reason: "no listing"}, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, missing.IsAvailable)
	assert.False(t, missing.LowestPrice.Valid)
	assert.Nil(t, missing.SellerName)
	assert.Nil(t, missing.ResolvedURL)
	require.NotNil(t, missing.ScrapeError)
	assert.Equal(t, "no listing", *missing.ScrapeError)
	assert.NoError(t, missing.Validate())

	errored, err := repo.ApplyOutcome(ctx, "A1", domain.ResolutionError{Reason: "challenge not cleared"}, at.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, errored.ScrapeError)
	assert.Equal(t, "challenge not cleared", *errored.ScrapeError)
	assert.True(t, errored.LastScraped.Equal(at.Add(2*time.Hour)), "errors leave last_scraped alone")

	_, err = repo.ApplyOutcome(ctx, "nope", domain.NotFound{Reason: "x"}, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.ApplyOutcome(ctx, "nope", domain.ResolutionError{Reason: "x"}, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogRepositoryApplyOutcomeRejectsIncompleteListing(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.NewProduct("A1", "", "Phone X"))
	require.NoError(t, err)

	for name, outcome := range map[string]domain.Resolved{
		"no url":    {Name: "Phone X", Price: decimal.RequireFromString("99.9"), Seller: "Worten"},
		"no seller": {Name: "Phone X", URL: "https://www.worten.pt/produtos/phone-x", Price: decimal.RequireFromString("99.9")},
	} {
		_, err := repo.ApplyOutcome(ctx, "A1", outcome, time.Now())
		var vErr *domain.ValidationError
		assert.True(t, errors.As(err, &vErr), name)
	}

	row, err := repo.Get(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, row.IsAvailable)
	assert.Nil(t, row.LastScraped)
}

func TestCatalogRepositoryUpdate(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	for _, id := range []string{"A1", "B2"} {
		_, err := repo.Create(ctx, domain.NewProduct(id, "", "name "+id))
		require.NoError(t, err)
	}
	_, err := repo.ApplyOutcome(ctx, "A1", domain.Resolved{
		Name: "n", URL: "https://x/produtos/1", Price: decimal.NewFromInt(5), Seller: "Worten",
	}, time.Now())
	require.NoError(t, err)

	newName := "Renamed"
	updated, err := repo.Update(ctx, "A1", domain.ProductPatch{OriginalName: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.OriginalName)
	assert.True(t, updated.IsAvailable)

	reason := "manual"
	_, err = repo.Update(ctx, "A1", domain.ProductPatch{ScrapeError: &reason})
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr), "error on an available row must be rejected")

	unavailable := false
	cleared, err := repo.Update(ctx, "A1", domain.ProductPatch{
		IsAvailable:      &unavailable,
		ClearLowestPrice: true,
		ClearSellerName:  true,
		ClearResolvedURL: true,
		ScrapeError:      &reason,
	})
	require.NoError(t, err)
	assert.False(t, cleared.LowestPrice.Valid)
	assert.Equal(t, "manual", *cleared.ScrapeError)
	require.NotNil(t, cleared.LastScraped, "untouched by the patch")

	reset, err := repo.Update(ctx, "A1", domain.ProductPatch{ClearLastScraped: true})
	require.NoError(t, err)
	assert.Nil(t, reset.LastScraped)
	stored, err := repo.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, stored.LastScraped)

	taken := "B2"
	_, err = repo.Update(ctx, "A1", domain.ProductPatch{OriginalID: &taken})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	fresh := "C3"
	renamed, err := repo.Update(ctx, "A1", domain.ProductPatch{OriginalID: &fresh})
	require.NoError(t, err)
	assert.Equal(t, "C3", renamed.OriginalID)
	_, err = repo.Get(ctx, "A1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Update(ctx, "missing", domain.ProductPatch{OriginalName: &newName})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.NewProduct("A1", "", "Kettle"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "A1"))
	assert.ErrorIs(t, repo.Delete(ctx, "A1"), domain.ErrNotFound)

	_, err = repo.Get(ctx, "A1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Driver("mysql"), "dsn")
	assert.Error(t, err)
}
