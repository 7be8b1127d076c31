package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/infrastructure/spreadsheet"
	"CatalogScanner/internal/infrastructure/storage"
	"CatalogScanner/internal/ports"
	"CatalogScanner/internal/resolver"
	"CatalogScanner/internal/session"
)

var fixedTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *storage.CatalogRepository {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewCatalogRepository(db, storage.DriverSQLite)
}

func newMirror(t *testing.T, name string) *spreadsheet.Mirror {
	t.Helper()

	m, err := spreadsheet.NewMirror(filepath.Join(t.TempDir(), "output", name))
	require.NoError(t, err)
	return m
}

func seed(t *testing.T, store ports.CatalogStore, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("P%03d", i)
		_, err := store.Create(context.Background(), domain.NewProduct(id, "", "Produto "+id))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func resolvedFor(id string) domain.Resolved {
	return domain.Resolved{
		Name:   "Worten " + id,
		URL:    "https://www.worten.pt/produtos/" + id,
		Price:  decimal.RequireFromString("19.99"),
		Seller: "Worten",
	}
}

// scriptedResolver answers from a per-id table, falling back to a function.
type scriptedResolver struct {
	mu       sync.Mutex
	outcomes map[string]domain.Outcome
	fallback func(q resolver.Query) domain.Outcome
	hook     func(ctx context.Context, q resolver.Query)
	calls    []string
}

func (r *scriptedResolver) Name() string { return "scripted" }

func (r *scriptedResolver) Resolve(ctx context.Context, _ *session.Session, q resolver.Query) domain.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, q.OriginalID)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(ctx, q)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.outcomes[q.OriginalID]; ok {
		return o
	}
	if r.fallback != nil {
		return r.fallback(q)
	}
	return resolvedFor(q.OriginalID)
}

func (r *scriptedResolver) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type nopBrowser struct {
	closed atomic.Int32
}

func (b *nopBrowser) Navigate(context.Context, string) error { return nil }

func (b *nopBrowser) Snapshot(context.Context) (ports.Page, error) {
	return ports.Page{Title: "Worten.pt"}, nil
}

func (b *nopBrowser) Close() error {
	b.closed.Add(1)
	return nil
}

type countingLauncher struct {
	browser  *nopBrowser
	err      error
	launches atomic.Int32
}

func (l *countingLauncher) Launch(context.Context) (ports.Browser, error) {
	l.launches.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

func newLauncher() *countingLauncher {
	return &countingLauncher{browser: &nopBrowser{}}
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}

type countingSyncer struct {
	inner ports.MirrorSyncer
	err   error
	calls atomic.Int32
}

func (c *countingSyncer) Sync(ctx context.Context) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	if c.inner == nil {
		return nil
	}
	return c.inner.Sync(ctx)
}

// brokenMirror fails every write.
type brokenMirror struct {
	ports.MirrorFile
	err error
}

func (b brokenMirror) Write([]domain.Product) error { return b.err }

// assertMirrorMatchesCatalog re-reads the mirror through the codec and
// compares it with the catalog on every mirrored field.
func assertMirrorMatchesCatalog(t *testing.T, store ports.CatalogStore, mirror ports.MirrorFile) {
	t.Helper()

	want, err := store.List(context.Background(), ports.ListOptions{})
	require.NoError(t, err)
	got, err := mirror.Load()
	require.NoError(t, err)

	opts := []cmp.Option{
		cmpopts.IgnoreFields(domain.Product{}, "CreatedAt", "UpdatedAt"),
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b decimal.NullDecimal) bool {
			if a.Valid != b.Valid {
				return false
			}
			return !a.Valid || a.Decimal.Equal(b.Decimal)
		}),
	}
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Fatalf("mirror differs from catalog (-catalog +mirror):\n%s", diff)
	}
}
