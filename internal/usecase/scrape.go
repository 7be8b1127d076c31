package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/metrics"
	"CatalogScanner/internal/ports"
	"CatalogScanner/internal/resolver"
	"CatalogScanner/internal/session"
)

// DefaultScrapeDelay is the pause between two products of a batch.
const DefaultScrapeDelay = 500 * time.Millisecond

// ConfiguredDelay asks ScrapeAll to use the delay the Scraper was built with.
const ConfiguredDelay time.Duration = -1

var tracer = otel.Tracer("CatalogScanner/usecase")

// SessionRunner scopes one browser session around a unit of work.
type SessionRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context, s *session.Session) error) error
}

// Selection narrows a batch. Zero value selects the whole catalog.
type Selection struct {
	Limit int      `json:"limit"`
	IDs   []string `json:"product_ids"`
}

// RowFailure explains why a product could not be determined.
type RowFailure struct {
	OriginalID string `json:"original_id"`
	Reason     string `json:"reason"`
}

// Report summarises one batch.
type Report struct {
	Selected    int          `json:"selected"`
	Found       int          `json:"found"`
	NotFound    int          `json:"not_found"`
	Errored     int          `json:"errored"`
	Failures    []RowFailure `json:"failures"`
	Interrupted bool         `json:"interrupted"`
}

// Processed counts rows that reached a verdict.
func (r Report) Processed() int {
	return r.Found + r.NotFound + r.Errored
}

// ScraperDeps wires all driven adapters into the scrape orchestrator.
type ScraperDeps struct {
	Store    ports.CatalogStore
	Sessions SessionRunner
	Resolver resolver.Resolver
	Mirror   ports.MirrorSyncer
	Notifier ports.Notifier
	Logger   *slog.Logger
	Delay    time.Duration
	Now      func() time.Time
}

// Scraper enriches catalog rows one at a time through a single browser
// session. Only one batch runs at a time.
type Scraper struct {
	store    ports.CatalogStore
	sessions SessionRunner
	resolver resolver.Resolver
	mirror   ports.MirrorSyncer
	notifier ports.Notifier
	logger   *slog.Logger
	delay    time.Duration
	now      func() time.Time

	running atomic.Bool
}

// NewScraper constructs the orchestration component.
func NewScraper(deps ScraperDeps) *Scraper {
	s := &Scraper{
		store:    deps.Store,
		sessions: deps.Sessions,
		resolver: deps.Resolver,
		mirror:   deps.Mirror,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		delay:    deps.Delay,
		now:      deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.delay < 0 {
		s.delay = DefaultScrapeDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ScrapeAll resolves every selected row in catalog order, committing each
// verdict before moving on. A negative delay means the configured default.
// Row failures never stop the batch; a session that cannot start does, and
// so does ctx, in which case the partial report comes back with ctx.Err().
func (s *Scraper) ScrapeAll(ctx context.Context, sel Selection, delay time.Duration) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, domain.ErrBatchRunning
	}
	defer s.running.Store(false)

	if delay < 0 {
		delay = s.delay
	}

	products, err := s.store.List(ctx, ports.ListOptions{Limit: sel.Limit, IDs: sel.IDs})
	if err != nil {
		return Report{}, fmt.Errorf("select products: %w", err)
	}
	if len(products) == 0 {
		s.logger.Info("nothing to scrape")
		return Report{}, nil
	}

	ctx, span := tracer.Start(ctx, "scrape.batch")
	defer span.End()

	report := Report{Selected: len(products)}
	s.logger.Info("scrape batch started", "products", len(products), "delay", delay)

	err = s.sessions.Run(ctx, func(ctx context.Context, sess *session.Session) error {
		for i, p := range products {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Info("scraping product", "position", fmt.Sprintf("%d/%d", i+1, len(products)), "id", p.OriginalID, "name", p.OriginalName)
			outcome, commitErr := s.scrapeRow(ctx, sess, p)
			if outcome == nil && commitErr == nil {
				return ctx.Err()
			}
			report.record(p.OriginalID, outcome, commitErr)

			if i < len(products)-1 {
				if err := sleep(ctx, delay); err != nil {
					return err
				}
			}
		}
		return nil
	})

	var startErr *domain.SessionStartError
	switch {
	case errors.As(err, &startErr):
		s.logger.Error("scrape batch aborted", "error", err)
		return Report{}, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		report.Interrupted = true
	case err != nil:
		// release failures surface here after every row was handled
		s.logger.Warn("scrape batch finished with session error", "error", err)
	}

	span.SetAttributes(
		attribute.Int("found", report.Found),
		attribute.Int("not_found", report.NotFound),
		attribute.Int("errored", report.Errored),
	)
	s.logger.Info("scrape batch finished",
		"found", report.Found,
		"not_found", report.NotFound,
		"errored", report.Errored,
		"interrupted", report.Interrupted)

	s.notify(ctx, report)

	if report.Interrupted {
		return report, err
	}
	return report, nil
}

// ScrapeOne resolves a single product in its own session.
func (s *Scraper) ScrapeOne(ctx context.Context, id string) (domain.Product, domain.Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.Product{}, nil, domain.ErrBatchRunning
	}
	defer s.running.Store(false)

	product, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Product{}, nil, err
	}

	var (
		outcome   domain.Outcome
		committed domain.Product
	)
	err = s.sessions.Run(ctx, func(ctx context.Context, sess *session.Session) error {
		outcome = s.resolve(ctx, sess, product)
		if err := ctx.Err(); err != nil {
			return err
		}
		var commitErr error
		committed, commitErr = s.commit(ctx, product.OriginalID, outcome)
		return commitErr
	})
	if err != nil && committed.OriginalID == "" {
		return domain.Product{}, outcome, err
	}
	if err != nil {
		s.logger.Warn("close session after single scrape", "id", id, "error", err)
	}
	return committed, outcome, nil
}

// scrapeRow resolves and commits one product. A nil outcome means ctx was
// cancelled before a verdict could be trusted.
func (s *Scraper) scrapeRow(ctx context.Context, sess *session.Session, p domain.Product) (domain.Outcome, error) {
	outcome := s.resolve(ctx, sess, p)
	if ctx.Err() != nil {
		return nil, nil
	}
	_, err := s.commit(ctx, p.OriginalID, outcome)
	return outcome, err
}

func (s *Scraper) resolve(ctx context.Context, sess *session.Session, p domain.Product) domain.Outcome {
	started := time.Now()
	outcome := s.resolver.Resolve(ctx, sess, resolver.QueryFor(p))
	if outcome == nil {
		outcome = domain.ResolutionError{Reason: "resolver returned no outcome"}
	}
	metrics.RecordResolution(outcome.Kind(), time.Since(started))

	switch o := outcome.(type) {
	case domain.Resolved:
		s.logger.Info("product found", "id", p.OriginalID, "price", o.Price.StringFixed(2), "seller", o.Seller)
	case domain.NotFound:
		s.logger.Info("product not found", "id", p.OriginalID, "reason", o.Reason)
	case domain.ResolutionError:
		s.logger.Warn("product could not be resolved", "id", p.OriginalID, "reason", o.Reason)
	}
	return outcome
}

func (s *Scraper) commit(ctx context.Context, id string, outcome domain.Outcome) (domain.Product, error) {
	product, err := s.store.ApplyOutcome(ctx, id, outcome, s.now().UTC().Truncate(time.Second))
	if err != nil {
		s.logger.Error("commit scrape result", "id", id, "outcome", outcome.Kind(), "error", err)
		return domain.Product{}, fmt.Errorf("commit %s: %w", id, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Sync(ctx); err != nil {
			s.logger.Error("mirror out of date after scrape commit", "id", id, "error", err)
		}
	}
	return product, nil
}

func (r *Report) record(id string, outcome domain.Outcome, commitErr error) {
	if commitErr != nil {
		r.Errored++
		r.Failures = append(r.Failures, RowFailure{OriginalID: id, Reason: commitErr.Error()})
		return
	}

	switch o := outcome.(type) {
	case domain.Resolved:
		r.Found++
	case domain.NotFound:
		r.NotFound++
	case domain.ResolutionError:
		r.Errored++
		r.Failures = append(r.Failures, RowFailure{OriginalID: id, Reason: o.Reason})
	}
}

func (s *Scraper) notify(ctx context.Context, report Report) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishDigest(context.WithoutCancel(ctx), buildSummary(report)); err != nil {
		s.logger.Warn("publish scrape summary", "error", err)
	}
}

func buildSummary(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scrape finished: %d found, %d not found, %d errors (of %d selected)",
		report.Found, report.NotFound, report.Errored, report.Selected)
	if report.Interrupted {
		b.WriteString(", interrupted")
	}
	b.WriteString("\n")
	for _, f := range report.Failures {
		fmt.Fprintf(&b, "- %s: %s\n", f.OriginalID, f.Reason)
	}
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
