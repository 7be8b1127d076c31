package ports

import (
	"context"
	"io"
	"time"

	"CatalogScanner/internal/domain"
)

// ListOptions narrows a catalog listing. Zero value lists everything.
type ListOptions struct {
	Limit int
	IDs   []string
}

// CatalogStore is the authoritative relational table of products.
type CatalogStore interface {
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	Get(ctx context.Context, originalID string) (domain.Product, error)
	List(ctx context.Context, opts ListOptions) ([]domain.Product, error)
	Update(ctx context.Context, originalID string, patch domain.ProductPatch) (domain.Product, error)
	Delete(ctx context.Context, originalID string) error
	ApplyOutcome(ctx context.Context, originalID string, outcome domain.Outcome, at time.Time) (domain.Product, error)
	Exists(ctx context.Context, ids []string) (map[string]bool, error)
}

// InputRow is one line of the import spreadsheet.
type InputRow struct {
	Line       int
	OriginalID string
	EAN        string
	Name       string
}

// SpreadsheetCodec renders the mirror and reads input sheets.
type SpreadsheetCodec interface {
	EncodeMirror(w io.Writer, products []domain.Product) error
	DecodeMirror(r io.Reader) ([]domain.Product, error)
	DecodeInput(r io.Reader) ([]InputRow, error)
}

// MirrorSyncer regenerates the spreadsheet mirror from the catalog.
type MirrorSyncer interface {
	Sync(ctx context.Context) error
}

// MirrorFile is the on-disk spreadsheet mirror. Read and Load return
// domain.ErrMirrorMissing when the file has not been written yet.
type MirrorFile interface {
	Location() string
	Write(products []domain.Product) error
	Read() ([]byte, error)
	Load() ([]domain.Product, error)
}

// InputSource yields the rows of the import spreadsheet.
type InputSource interface {
	Location() string
	Rows(ctx context.Context) ([]InputRow, error)
}

// Page is a rendered document snapshot taken from a browser.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Browser drives one disguised browsing context. Implementations are not
// safe for concurrent use.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (Page, error)
	Close() error
}

// BrowserLauncher starts a Browser.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Notifier streams batch summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when recurring scrape batches execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
