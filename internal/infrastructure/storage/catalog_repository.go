package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

const productsTable = "products"

var productColumns = []string{
	"original_id",
	"ean",
	"original_name",
	"resolved_name",
	"resolved_url",
	"lowest_price",
	"seller_name",
	"is_available",
	"last_scraped",
	"scrape_error",
	"created_at",
	"updated_at",
}

// CatalogRepository persists products in a SQL table.
type CatalogRepository struct {
	db     *sql.DB
	driver Driver
	sb     sq.StatementBuilderType
	now    func() time.Time
}

var _ ports.CatalogStore = (*CatalogRepository)(nil)

// NewCatalogRepository wires a sql.DB opened with the given driver.
func NewCatalogRepository(db *sql.DB, driver Driver) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(driver.placeholder()),
		now:    time.Now,
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create inserts a new row holding only the identity fields.
func (r *CatalogRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	row := domain.NewProduct(product.OriginalID, product.EAN, product.OriginalName)
	if err := row.Validate(); err != nil {
		return domain.Product{}, err
	}

	now := r.now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.get(ctx, tx, row.OriginalID, false); err == nil {
		return domain.Product{}, &domain.DuplicateIdentityError{OriginalID: row.OriginalID}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, err
	}

	query, args, err := r.sb.Insert(productsTable).
		Columns("original_id", "ean", "original_name", "is_available", "created_at", "updated_at").
		Values(row.OriginalID, row.EAN, row.OriginalName, false, now, now).
		ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, &domain.DuplicateIdentityError{OriginalID: row.OriginalID}
		}
		return domain.Product{}, fmt.Errorf("insert product %s: %w", row.OriginalID, err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, &domain.DuplicateIdentityError{OriginalID: row.OriginalID}
		}
		return domain.Product{}, fmt.Errorf("commit create: %w", err)
	}

	return row, nil
}

// Get loads a single product by original_id.
func (r *CatalogRepository) Get(ctx context.Context, originalID string) (domain.Product, error) {
	return r.get(ctx, r.db, originalID, false)
}

func (r *CatalogRepository) get(ctx context.Context, q queryer, originalID string, lock bool) (domain.Product, error) {
	builder := r.sb.Select(productColumns...).
		From(productsTable).
		Where(sq.Eq{"original_id": originalID})
	if lock && r.driver != DriverSQLite {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build select: %w", err)
	}

	product, err := scanProduct(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product %s: %w", originalID, err)
	}
	return product, nil
}

// List returns products ordered by original_id.
func (r *CatalogRepository) List(ctx context.Context, opts ports.ListOptions) ([]domain.Product, error) {
	builder := r.sb.Select(productColumns...).
		From(productsTable).
		OrderBy("original_id")
	if len(opts.IDs) > 0 {
		builder = builder.Where(sq.Eq{"original_id": opts.IDs})
	}
	if opts.Limit > 0 {
		builder = builder.Limit(uint64(opts.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return products, nil
}

// Exists returns the subset of ids already present in the catalog.
func (r *CatalogRepository) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := r.sb.Select("original_id").
		From(productsTable).
		Where(sq.Eq{"original_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exists: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// Update applies a partial update inside a transaction and rejects patches
// that would break the row invariants.
func (r *CatalogRepository) Update(ctx context.Context, originalID string, patch domain.ProductPatch) (domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, originalID, true)
	if err != nil {
		return domain.Product{}, err
	}

	updated := patch.Apply(current)
	if err := updated.Validate(); err != nil {
		return domain.Product{}, err
	}

	if updated.OriginalID != current.OriginalID {
		if _, err := r.get(ctx, tx, updated.OriginalID, false); err == nil {
			return domain.Product{}, &domain.DuplicateIdentityError{OriginalID: updated.OriginalID}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, err
		}
	}

	updated.UpdatedAt = r.now().UTC()

	query, args, err := r.sb.Update(productsTable).
		SetMap(map[string]any{
			"original_id":   updated.OriginalID,
			"ean":           updated.EAN,
			"original_name": updated.OriginalName,
			"resolved_name": updated.ResolvedName,
			"resolved_url":  updated.ResolvedURL,
			"lowest_price":  updated.LowestPrice,
			"seller_name":   updated.SellerName,
			"is_available":  updated.IsAvailable,
			"scrape_error":  updated.ScrapeError,
			"last_scraped":  updated.LastScraped,
			"updated_at":    updated.UpdatedAt,
		}).
		Where(sq.Eq{"original_id": current.OriginalID}).
		ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, &domain.DuplicateIdentityError{OriginalID: updated.OriginalID}
		}
		return domain.Product{}, fmt.Errorf("update product %s: %w", originalID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Product{}, fmt.Errorf("commit update: %w", err)
	}

	return updated, nil
}

// Delete removes a product.
func (r *CatalogRepository) Delete(ctx context.Context, originalID string) error {
	query, args, err := r.sb.Delete(productsTable).
		Where(sq.Eq{"original_id": originalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", originalID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %s: %w", originalID, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyOutcome commits a resolution result with a single UPDATE so no
// reader observes a half-written row.
//
// A ResolutionError only records scrape_error on rows without a live
// listing; an available row keeps its last known listing untouched.
func (r *CatalogRepository) ApplyOutcome(ctx context.Context, originalID string, outcome domain.Outcome, at time.Time) (domain.Product, error) {
	at = at.UTC()
	builder := r.sb.Update(productsTable).Where(sq.Eq{"original_id": originalID})

	switch o := outcome.(type) {
	case domain.Resolved:
		if o.Price.IsNegative() {
			return domain.Product{}, &domain.ValidationError{Field: "lowest_price", Reason: "must not be negative"}
		}
		if strings.TrimSpace(o.URL) == "" {
			return domain.Product{}, &domain.ValidationError{Field: "resolved_url", Reason: "required for an available product"}
		}
		if strings.TrimSpace(o.Seller) == "" {
			return domain.Product{}, &domain.ValidationError{Field: "seller_name", Reason: "required for an available product"}
		}
		builder = builder.SetMap(map[string]any{
			"resolved_name": nullableString(o.Name),
			"resolved_url":  o.URL,
			"lowest_price":  decimal.NewNullDecimal(o.Price),
			"seller_name":   o.Seller,
			"is_available":  true,
			"last_scraped":  at,
			"scrape_error":  nil,
			"updated_at":    at,
		})
	case domain.NotFound:
		builder = builder.SetMap(map[string]any{
			"resolved_name": nil,
			"resolved_url":  nil,
			"lowest_price":  nil,
			"seller_name":   nil,
			"is_available":  false,
			"last_scraped":  at,
			"scrape_error":  o.Reason,
			"updated_at":    at,
		})
	case domain.ResolutionError:
		builder = builder.SetMap(map[string]any{
			"scrape_error": o.Reason,
			"updated_at":   at,
		}).Where(sq.Eq{
			"is_available": false,
			"resolved_url": nil,
			"lowest_price": nil,
			"seller_name":  nil,
		})
	default:
		return domain.Product{}, fmt.Errorf("unknown outcome %T", outcome)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build outcome update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Product{}, fmt.Errorf("commit %s for %s: %w", outcome.Kind(), originalID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("commit %s for %s: %w", outcome.Kind(), originalID, err)
	}

	product, err := r.Get(ctx, originalID)
	if err != nil {
		return domain.Product{}, err
	}
	if affected == 0 {
		if _, ok := outcome.(domain.ResolutionError); !ok {
			return domain.Product{}, domain.ErrNotFound
		}
	}
	return product, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p            domain.Product
		resolvedName sql.NullString
		resolvedURL  sql.NullString
		sellerName   sql.NullString
		scrapeError  sql.NullString
		lastScraped  sql.NullTime
	)

	err := row.Scan(
		&p.OriginalID,
		&p.EAN,
		&p.OriginalName,
		&resolvedName,
		&resolvedURL,
		&p.LowestPrice,
		&sellerName,
		&p.IsAvailable,
		&lastScraped,
		&scrapeError,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}

	p.ResolvedName = fromNullString(resolvedName)
	p.ResolvedURL = fromNullString(resolvedURL)
	p.SellerName = fromNullString(sellerName)
	p.ScrapeError = fromNullString(scrapeError)
	if lastScraped.Valid {
		ts := lastScraped.Time.UTC()
		p.LastScraped = &ts
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return p, nil
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
