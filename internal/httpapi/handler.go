package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/metrics"
	"CatalogScanner/internal/ports"
	"CatalogScanner/internal/usecase"
)

const maxBodyBytes = 1 << 20

// CatalogProvider is the CRUD surface the API exposes.
type CatalogProvider interface {
	Create(ctx context.Context, id, ean, name string) (domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context, opts ports.ListOptions) ([]domain.Product, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type MirrorProvider interface {
	Download(ctx context.Context) ([]byte, error)
}

type ImportRunner interface {
	Import(ctx context.Context) (usecase.ImportReport, error)
}

type ScrapeRunner interface {
	ScrapeAll(ctx context.Context, sel usecase.Selection, delay time.Duration) (usecase.Report, error)
	ScrapeOne(ctx context.Context, id string) (domain.Product, domain.Outcome, error)
}

// Deps wires the use cases behind the HTTP surface. MirrorPath only decides
// the download file name and content type.
type Deps struct {
	Catalog    CatalogProvider
	Mirror     MirrorProvider
	Importer   ImportRunner
	Scraper    ScrapeRunner
	MirrorPath string
	Logger     *slog.Logger
}

// Handler serves the catalog REST API.
type Handler struct {
	catalog    CatalogProvider
	mirror     MirrorProvider
	importer   ImportRunner
	scraper    ScrapeRunner
	mirrorPath string
	logger     *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		catalog:    deps.Catalog,
		mirror:     deps.Mirror,
		importer:   deps.Importer,
		scraper:    deps.Scraper,
		mirrorPath: deps.MirrorPath,
		logger:     log,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /products", h.HandleList)
	mux.HandleFunc("POST /products", h.HandleCreate)
	mux.HandleFunc("GET /products/download", h.HandleDownload)
	mux.HandleFunc("POST /products/import", h.HandleImport)
	mux.HandleFunc("POST /products/scrape", h.HandleScrapeBatch)
	mux.HandleFunc("GET /products/{id}", h.HandleGet)
	mux.HandleFunc("PUT /products/{id}", h.HandleReplace)
	mux.HandleFunc("PATCH /products/{id}", h.HandlePatch)
	mux.HandleFunc("DELETE /products/{id}", h.HandleDelete)
	mux.HandleFunc("POST /products/{id}/scrape", h.HandleScrapeOne)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return instrument(mux, h.logger)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts := ports.ListOptions{}
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		l, err := strconv.Atoi(lStr)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = l
	}
	if ids := r.URL.Query().Get("ids"); ids != "" {
		opts.IDs = splitIDs(ids)
	}

	rows, err := h.catalog.List(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	products := make([]Product, len(rows))
	for i, p := range rows {
		products[i] = productFromDomain(p)
	}
	writeJSON(w, http.StatusOK, listResponse{Total: len(products), Products: products})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.catalog.Create(r.Context(), req.OriginalID, req.EAN, req.OriginalName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, productFromDomain(created))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productFromDomain(product))
}

func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *Handler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, full bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	patch, err := decodePatch(body, full)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.catalog.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productFromDomain(updated))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	data, err := h.mirror.Download(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := filepath.Base(h.mirrorPath)
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	report, err := h.importer.Import(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleScrapeBatch runs a batch synchronously. An empty body scrapes the
// whole catalog; a selection that matches nothing is rejected.
func (h *Handler) HandleScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Limit < 0 || (req.DelayMS != nil && *req.DelayMS < 0) {
		writeError(w, http.StatusBadRequest, "limit and delay_ms must not be negative")
		return
	}

	report, err := h.scraper.ScrapeAll(r.Context(), req.selection(), req.delay())
	if err != nil && !report.Interrupted {
		h.fail(w, r, err)
		return
	}
	if report.Selected == 0 {
		writeError(w, http.StatusBadRequest, "no products selected")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleScrapeOne(w http.ResponseWriter, r *http.Request) {
	product, outcome, err := h.scraper.ScrapeOne(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeFromDomain(outcome, product))
}

// fail maps domain errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		invalid  *domain.ValidationError
		startErr *domain.SessionStartError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMirrorMissing):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateIdentity), errors.Is(err, domain.ErrBatchRunning):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &startErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func splitIDs(v string) []string {
	parts := strings.Split(v, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
