package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
	"CatalogScanner/internal/resolver"
	"CatalogScanner/internal/session"
)

const (
	// WortenBaseURL is the Portuguese storefront.
	WortenBaseURL = "https://www.worten.pt"

	defaultRenderTimeout = 20 * time.Second
	defaultRenderPoll    = 500 * time.Millisecond
)

var tracer trace.Tracer = otel.Tracer("CatalogScanner/parser")

// WortenOptions tune how long a search page may take to settle.
type WortenOptions struct {
	BaseURL          string
	RenderTimeout    time.Duration
	PollInterval     time.Duration
	ChallengeRetries int
}

// WortenResolver searches worten.pt through the shared browser session.
type WortenResolver struct {
	base   *url.URL
	opts   WortenOptions
	logger *slog.Logger
}

var _ resolver.Resolver = (*WortenResolver)(nil)

// NewWortenResolver fills defaults; ChallengeRetries below zero means none.
func NewWortenResolver(opts WortenOptions, log *slog.Logger) (*WortenResolver, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = WortenBaseURL
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = defaultRenderTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultRenderPoll
	}
	if opts.ChallengeRetries == 0 {
		opts.ChallengeRetries = 1
	}
	if opts.ChallengeRetries < 0 {
		opts.ChallengeRetries = 0
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	return &WortenResolver{base: base, opts: opts, logger: log}, nil
}

// Name identifies the strategy inside the registry.
func (w *WortenResolver) Name() string {
	return "worten"
}

// Resolve tries each search term in turn. The first found listing or the
// first error ends the search; not-found terms fall through to the next.
func (w *WortenResolver) Resolve(ctx context.Context, s *session.Session, q resolver.Query) (outcome domain.Outcome) {
	ctx, span := tracer.Start(ctx, "worten.resolve", trace.WithAttributes(
		attribute.String("product.id", q.OriginalID),
	))
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("resolver panic", "id", q.OriginalID, "panic", r)
			outcome = domain.ResolutionError{Reason: fmt.Sprintf("internal error: %v", r)}
		}
		span.SetAttributes(attribute.String("outcome", outcome.Kind()))
		if failed, ok := outcome.(domain.ResolutionError); ok {
			span.SetStatus(codes.Error, failed.Reason)
		}
		span.End()
	}()

	terms := SearchTerms(q)
	if len(terms) == 0 {
		return domain.NotFound{Reason: "no search terms"}
	}
	if s == nil {
		return domain.ResolutionError{Reason: "no browser session"}
	}

	err := s.Use(func(b ports.Browser) error {
		for _, term := range terms {
			result := w.searchTerm(ctx, b, term)
			w.logger.Debug("search term done", "id", q.OriginalID, "term", term, "outcome", result.Kind())
			if _, miss := result.(domain.NotFound); !miss {
				outcome = result
				return nil
			}
		}
		outcome = domain.NotFound{Reason: fmt.Sprintf("no listing for %s", q.Name)}
		return nil
	})
	if errors.Is(err, domain.ErrSessionBusy) {
		return domain.ResolutionError{Reason: "browser session is busy"}
	}
	if err != nil {
		return domain.ResolutionError{Reason: err.Error()}
	}
	return outcome
}

type pageState int

const (
	stateLoading pageState = iota
	stateChallenge
	stateProduct
	stateNoResults
	stateResults
)

type snapshot struct {
	state    pageState
	page     ports.Page
	doc      *goquery.Document
	listings []listing
}

func (w *WortenResolver) searchTerm(ctx context.Context, b ports.Browser, term string) domain.Outcome {
	target := w.searchURL(term)

	var snap snapshot
	for attempt := 0; attempt <= w.opts.ChallengeRetries; attempt++ {
		if attempt > 0 {
			w.logger.Info("challenge page still present, retrying", "term", term, "attempt", attempt)
		}
		if err := b.Navigate(ctx, target); err != nil {
			return domain.ResolutionError{Reason: fmt.Sprintf("navigation failed: %v", err)}
		}

		var err error
		snap, err = w.await(ctx, b)
		if err != nil {
			return domain.ResolutionError{Reason: fmt.Sprintf("page did not load: %v", err)}
		}
		if snap.state != stateChallenge {
			break
		}
	}

	switch snap.state {
	case stateChallenge:
		return domain.ResolutionError{Reason: "anti-bot challenge not cleared"}
	case stateNoResults:
		return domain.NotFound{Reason: fmt.Sprintf("no search results for %q", term)}
	case stateProduct:
		return w.fromProductPage(snap)
	case stateResults:
		best, ok := cheapestInStock(snap.listings)
		if !ok {
			return domain.NotFound{Reason: "no listing in stock"}
		}
		return resolved(best)
	default:
		return domain.ResolutionError{Reason: "unexpected page layout"}
	}
}

func (w *WortenResolver) fromProductPage(snap snapshot) domain.Outcome {
	pageURL, err := url.Parse(snap.page.URL)
	if err != nil {
		return domain.ResolutionError{Reason: fmt.Sprintf("product url %q: %v", snap.page.URL, err)}
	}
	l, ok := productPageListing(snap.doc, pageURL)
	if !ok {
		return domain.ResolutionError{Reason: "unexpected product page layout"}
	}
	if !l.InStock {
		return domain.NotFound{Reason: "no listing in stock"}
	}
	return resolved(l)
}

// await polls the browser until the page settles into a recognisable state
// or the render timeout runs out. It returns the last state seen.
func (w *WortenResolver) await(ctx context.Context, b ports.Browser) (snapshot, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.opts.RenderTimeout)
	defer cancel()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var last snapshot
	for {
		page, err := b.Snapshot(waitCtx)
		switch {
		case err == nil:
			last, err = w.classify(page)
			if err != nil {
				return snapshot{}, err
			}
			if last.state != stateLoading && last.state != stateChallenge {
				return last, nil
			}
		case waitCtx.Err() == nil:
			return snapshot{}, err
		}

		select {
		case <-ctx.Done():
			return snapshot{}, ctx.Err()
		case <-waitCtx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}

func (w *WortenResolver) classify(page ports.Page) (snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return snapshot{}, fmt.Errorf("parse document: %w", err)
	}

	snap := snapshot{state: stateLoading, page: page, doc: doc}
	switch {
	case session.IsChallenge(page):
		snap.state = stateChallenge
	case isProductURL(page.URL):
		snap.state = stateProduct
	case hasNoResultsMarker(doc):
		snap.state = stateNoResults
	default:
		snap.listings = searchListings(doc, w.base)
		if len(snap.listings) > 0 {
			snap.state = stateResults
		}
	}
	return snap, nil
}

func (w *WortenResolver) searchURL(term string) string {
	u := *w.base
	u.Path = strings.TrimRight(u.Path, "/") + "/search"
	u.RawQuery = url.Values{"query": []string{term}}.Encode()
	return u.String()
}

func resolved(l listing) domain.Resolved {
	return domain.Resolved{
		Name:   l.Name,
		URL:    l.URL,
		Price:  l.Price,
		Seller: l.Seller,
	}
}
