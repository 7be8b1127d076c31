package parser

import (
	"context"
	"fmt"
	"log/slog"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/resolver"
	"CatalogScanner/internal/session"
)

// SiteResolver resolves products against the site chosen in config,
// dispatching to the registered strategy for it.
type SiteResolver struct {
	registry *resolver.Registry
	site     string
	logger   *slog.Logger
}

var _ resolver.Resolver = (*SiteResolver)(nil)

// NewSiteResolver fails fast when the configured site has no strategy.
func NewSiteResolver(reg *resolver.Registry, site string, log *slog.Logger) (*SiteResolver, error) {
	if reg == nil {
		return nil, fmt.Errorf("resolver registry is not configured")
	}
	if _, err := reg.Lookup(site); err != nil {
		return nil, fmt.Errorf("site %s: %w", site, err)
	}
	return &SiteResolver{registry: reg, site: site, logger: log}, nil
}

// Name reports the configured site.
func (s *SiteResolver) Name() string {
	return s.site
}

// Resolve delegates to the site strategy.
func (s *SiteResolver) Resolve(ctx context.Context, sess *session.Session, q resolver.Query) domain.Outcome {
	strategy, err := s.registry.Lookup(s.site)
	if err != nil {
		return domain.ResolutionError{Reason: err.Error()}
	}

	s.debug("resolve product", "site", s.site, "id", q.OriginalID, "name", q.Name)
	outcome := strategy.Resolve(ctx, sess, q)
	s.debug("product resolved", "site", s.site, "id", q.OriginalID, "outcome", outcome.Kind())
	return outcome
}

func (s *SiteResolver) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
