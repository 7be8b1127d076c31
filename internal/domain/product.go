package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog row: identity fields from the input sheet plus
// marketplace enrichment written by scrape commits.
type Product struct {
	OriginalID   string
	EAN          string
	OriginalName string

	ResolvedName *string
	ResolvedURL  *string
	LowestPrice  decimal.NullDecimal
	SellerName   *string
	IsAvailable  bool
	LastScraped  *time.Time
	ScrapeError  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProduct builds a row with only the identity fields populated.
func NewProduct(originalID, ean, originalName string) Product {
	return Product{
		OriginalID:   strings.TrimSpace(originalID),
		EAN:          strings.TrimSpace(ean),
		OriginalName: strings.TrimSpace(originalName),
	}
}

// HasEnrichment reports whether any scrape-owned field is populated.
func (p Product) HasEnrichment() bool {
	return p.ResolvedName != nil ||
		p.ResolvedURL != nil ||
		p.LowestPrice.Valid ||
		p.SellerName != nil ||
		p.IsAvailable ||
		p.LastScraped != nil ||
		p.ScrapeError != nil
}

// Validate checks the identity requirements and the enrichment invariants.
func (p Product) Validate() error {
	if strings.TrimSpace(p.OriginalID) == "" {
		return &ValidationError{Field: "original_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.OriginalName) == "" {
		return &ValidationError{Field: "original_name", Reason: "must not be empty"}
	}
	if p.LowestPrice.Valid && p.LowestPrice.Decimal.IsNegative() {
		return &ValidationError{Field: "lowest_price", Reason: "must not be negative"}
	}

	if p.ScrapeError != nil {
		if p.IsAvailable {
			return &ValidationError{Field: "scrape_error", Reason: "a row with an error cannot be available"}
		}
		if p.ResolvedURL != nil || p.LowestPrice.Valid || p.SellerName != nil {
			return &ValidationError{Field: "scrape_error", Reason: "a row with an error cannot carry price, seller or url"}
		}
	}

	if p.IsAvailable && (p.ResolvedURL == nil || !p.LowestPrice.Valid || p.SellerName == nil) {
		return &ValidationError{Field: "is_available", Reason: "an available row needs price, seller and url"}
	}

	return nil
}

// ProductPatch carries a partial update. Nil fields are left alone; the
// Clear* flags null out the matching enrichment column.
type ProductPatch struct {
	OriginalID   *string
	EAN          *string
	OriginalName *string

	ResolvedName *string
	ResolvedURL  *string
	LowestPrice  *decimal.Decimal
	SellerName   *string
	IsAvailable  *bool
	ScrapeError  *string

	ClearResolvedName bool
	ClearResolvedURL  bool
	ClearLowestPrice  bool
	ClearSellerName   bool
	ClearScrapeError  bool
	ClearLastScraped  bool
}

// Apply returns a copy of p with the patch applied. The result is not validated.
func (patch ProductPatch) Apply(p Product) Product {
	if patch.OriginalID != nil {
		p.OriginalID = strings.TrimSpace(*patch.OriginalID)
	}
	if patch.EAN != nil {
		p.EAN = strings.TrimSpace(*patch.EAN)
	}
	if patch.OriginalName != nil {
		p.OriginalName = strings.TrimSpace(*patch.OriginalName)
	}

	switch {
	case patch.ClearResolvedName:
		p.ResolvedName = nil
	case patch.ResolvedName != nil:
		p.ResolvedName = stringRef(*patch.ResolvedName)
	}
	switch {
	case patch.ClearResolvedURL:
		p.ResolvedURL = nil
	case patch.ResolvedURL != nil:
		p.ResolvedURL = stringRef(*patch.ResolvedURL)
	}
	switch {
	case patch.ClearLowestPrice:
		p.LowestPrice = decimal.NullDecimal{}
	case patch.LowestPrice != nil:
		p.LowestPrice = decimal.NewNullDecimal(*patch.LowestPrice)
	}
	switch {
	case patch.ClearSellerName:
		p.SellerName = nil
	case patch.SellerName != nil:
		p.SellerName = stringRef(*patch.SellerName)
	}
	switch {
	case patch.ClearScrapeError:
		p.ScrapeError = nil
	case patch.ScrapeError != nil:
		p.ScrapeError = stringRef(*patch.ScrapeError)
	}
	if patch.IsAvailable != nil {
		p.IsAvailable = *patch.IsAvailable
	}
	if patch.ClearLastScraped {
		p.LastScraped = nil
	}

	return p
}

// Empty reports whether the patch changes nothing.
func (patch ProductPatch) Empty() bool {
	return patch == ProductPatch{}
}

func stringRef(s string) *string {
	return &s
}
