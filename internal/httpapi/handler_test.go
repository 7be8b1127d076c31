package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/infrastructure/spreadsheet"
	"CatalogScanner/internal/infrastructure/storage"
	"CatalogScanner/internal/usecase"
)

// MockScraper records the last selection and answers from fixed values.
type MockScraper struct {
	report     usecase.Report
	err        error
	product    domain.Product
	outcome    domain.Outcome
	lastSel    usecase.Selection
	lastDelay  time.Duration
	lastCalled string
}

func (m *MockScraper) ScrapeAll(_ context.Context, sel usecase.Selection, delay time.Duration) (usecase.Report, error) {
	m.lastSel, m.lastDelay = sel, delay
	return m.report, m.err
}

func (m *MockScraper) ScrapeOne(_ context.Context, id string) (domain.Product, domain.Outcome, error) {
	m.lastCalled = id
	return m.product, m.outcome, m.err
}

type MockImporter struct {
	report usecase.ImportReport
	err    error
}

func (m *MockImporter) Import(context.Context) (usecase.ImportReport, error) {
	return m.report, m.err
}

type testServer struct {
	handler http.Handler
	scraper *MockScraper
	mirror  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewCatalogRepository(db, storage.DriverSQLite)

	path := filepath.Join(t.TempDir(), "products.csv")
	mirror, err := spreadsheet.NewMirror(path)
	require.NoError(t, err)
	mediator := usecase.NewMediator(store, mirror, nil)

	scraper := &MockScraper{}
	h := NewHandler(Deps{
		Catalog:    usecase.NewCatalogService(store, mediator, nil),
		Mirror:     mediator,
		Importer:   &MockImporter{report: usecase.ImportReport{Imported: 2, Skipped: 1}},
		Scraper:    scraper,
		MirrorPath: path,
	})
	return &testServer{handler: h.Routes(), scraper: scraper, mirror: path}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestProductCRUD(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/products", `{"original_id":"A1","ean":"560","original_name":"Torradeira"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[Product](t, rec)
	assert.Equal(t, "A1", created.OriginalID)
	assert.False(t, created.LowestPrice.Valid)

	rec = s.do(t, http.MethodPost, "/products", `{"original_id":"A1","original_name":"Outra"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/products", `{"original_id":"A2","original_name":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/products/A1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Torradeira", decode[Product](t, rec).OriginalName)

	rec = s.do(t, http.MethodPatch, "/products/A1",
		`{"lowest_price":"12.50","seller_name":"Worten","resolved_url":"https://www.worten.pt/produtos/a1","is_available":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[Product](t, rec)
	assert.True(t, patched.LowestPrice.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, patched.IsAvailable)

	rec = s.do(t, http.MethodPatch, "/products/A1", `{"scrape_error":"boom"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "error on an available row is rejected")

	rec = s.do(t, http.MethodPatch, "/products/A1",
		`{"lowest_price":null,"seller_name":null,"resolved_url":null,"is_available":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[Product](t, rec).LowestPrice.Valid)

	rec = s.do(t, http.MethodPut, "/products/A1", `{"ean":"999"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "PUT needs original_name")

	rec = s.do(t, http.MethodPut, "/products/A1", `{"original_id":"B1","ean":"999","original_name":"Torradeira Inox"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "B1", decode[Product](t, rec).OriginalID)

	rec = s.do(t, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "B1", list.Products[0].OriginalID)

	rec = s.do(t, http.MethodDelete, "/products/B1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/products/B1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/products/B1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/products", `{"original_id":"A1","original_name":"X"}`)
	rec := s.do(t, http.MethodPatch, "/products/A1", `{"updated_at":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "updated_at")
}

func TestPatchLastScrapedOnlyClears(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/products", `{"original_id":"A1","original_name":"X"}`)
	rec := s.do(t, http.MethodPatch, "/products/A1", `{"last_scraped":"2024-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "last_scraped")

	rec = s.do(t, http.MethodPatch, "/products/A1", `{"last_scraped":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[Product](t, rec).LastScraped)
}

func TestDecodePatchClearsLastScraped(t *testing.T) {
	t.Parallel()

	patch, err := decodePatch([]byte(`{"last_scraped":null,"scrape_error":null}`), false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductPatch{ClearLastScraped: true, ClearScrapeError: true}, patch)
}

func TestDownload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing written yet")

	s.do(t, http.MethodPost, "/products", `{"original_id":"A1","original_name":"Chaleira"}`)
	rec = s.do(t, http.MethodGet, "/products/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="products.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Chaleira")
}

func TestImport(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/products/import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.ImportReport{Imported: 2, Skipped: 1}, decode[usecase.ImportReport](t, rec))
}

func TestScrapeBatch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		body       string
		report     usecase.Report
		err        error
		wantStatus int
		check      func(t *testing.T, m *MockScraper, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "selection and delay forwarded",
			body:       `{"product_ids":["P1","P2"],"limit":5,"delay_ms":250}`,
			report:     usecase.Report{Selected: 2, Found: 1, NotFound: 1},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, m *MockScraper, rec *httptest.ResponseRecorder) {
				assert.Equal(t, usecase.Selection{Limit: 5, IDs: []string{"P1", "P2"}}, m.lastSel)
				assert.Equal(t, 250*time.Millisecond, m.lastDelay)
				assert.Equal(t, 1, decode[usecase.Report](t, rec).Found)
			},
		},
		{
			name:       "empty body uses default delay",
			report:     usecase.Report{Selected: 1, Found: 1},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, m *MockScraper, _ *httptest.ResponseRecorder) {
				assert.Equal(t, time.Duration(-1), m.lastDelay)
			},
		},
		{
			name:       "nothing selected",
			body:       `{"product_ids":["missing"]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative limit",
			body:       `{"limit":-1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "batch already running",
			err:        domain.ErrBatchRunning,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "browser cannot start",
			err:        &domain.SessionStartError{Err: errors.New("no chrome")},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "interrupted batch still reports",
			report:     usecase.Report{Selected: 3, Found: 1, Interrupted: true},
			err:        context.Canceled,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, _ *MockScraper, rec *httptest.ResponseRecorder) {
				assert.True(t, decode[usecase.Report](t, rec).Interrupted)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.scraper.report, s.scraper.err = tc.report, tc.err

			rec := s.do(t, http.MethodPost, "/products/scrape", tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.check != nil {
				tc.check(t, s.scraper, rec)
			}
		})
	}
}

func TestScrapeOne(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	reason := "no listing"
	s.scraper.product = domain.Product{OriginalID: "P9", OriginalName: "Ventoinha", ScrapeError: &reason}
	s.scraper.outcome = domain.NotFound{Reason: reason}

	rec := s.do(t, http.MethodPost, "/products/P9/scrape", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[outcomeResponse](t, rec)
	assert.Equal(t, "P9", s.scraper.lastCalled)
	assert.Equal(t, "not_found", resp.Outcome)
	assert.Equal(t, reason, resp.Reason)
	assert.False(t, resp.Product.IsAvailable)

	s.scraper.err = domain.ErrNotFound
	rec = s.do(t, http.MethodPost, "/products/P404/scrape", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodGet, "/products", "")
	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `catalog_http_requests_total{endpoint="GET /products"`),
		"request metrics are labelled by route pattern")
}
