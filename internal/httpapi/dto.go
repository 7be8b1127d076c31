package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/usecase"
)

// Product is the wire form of a catalog row.
type Product struct {
	OriginalID   string              `json:"original_id"`
	EAN          string              `json:"ean"`
	OriginalName string              `json:"original_name"`
	ResolvedName *string             `json:"resolved_name"`
	ResolvedURL  *string             `json:"resolved_url"`
	LowestPrice  decimal.NullDecimal `json:"lowest_price"`
	SellerName   *string             `json:"seller_name"`
	IsAvailable  bool                `json:"is_available"`
	LastScraped  *time.Time          `json:"last_scraped"`
	ScrapeError  *string             `json:"scrape_error"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func productFromDomain(p domain.Product) Product {
	return Product{
		OriginalID:   p.OriginalID,
		EAN:          p.EAN,
		OriginalName: p.OriginalName,
		ResolvedName: p.ResolvedName,
		ResolvedURL:  p.ResolvedURL,
		LowestPrice:  p.LowestPrice,
		SellerName:   p.SellerName,
		IsAvailable:  p.IsAvailable,
		LastScraped:  p.LastScraped,
		ScrapeError:  p.ScrapeError,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

type listResponse struct {
	Total    int       `json:"total"`
	Products []Product `json:"products"`
}

type createRequest struct {
	OriginalID   string `json:"original_id"`
	EAN          string `json:"ean"`
	OriginalName string `json:"original_name"`
}

type scrapeRequest struct {
	ProductIDs []string `json:"product_ids"`
	Limit      int      `json:"limit"`
	DelayMS    *int     `json:"delay_ms"`
}

func (r scrapeRequest) selection() usecase.Selection {
	return usecase.Selection{Limit: r.Limit, IDs: r.ProductIDs}
}

// delay maps an absent delay_ms to the scraper default.
func (r scrapeRequest) delay() time.Duration {
	if r.DelayMS == nil {
		return usecase.ConfiguredDelay
	}
	return time.Duration(*r.DelayMS) * time.Millisecond
}

type outcomeResponse struct {
	Outcome string  `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Product Product `json:"product"`
}

func outcomeFromDomain(o domain.Outcome, p domain.Product) outcomeResponse {
	resp := outcomeResponse{Product: productFromDomain(p)}
	if o == nil {
		return resp
	}
	resp.Outcome = o.Kind()
	switch v := o.(type) {
	case domain.NotFound:
		resp.Reason = v.Reason
	case domain.ResolutionError:
		resp.Reason = v.Reason
	}
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
}

// patchFields lists the columns a client may touch. A JSON null on an
// enrichment column clears it; last_scraped accepts nothing but null.
var patchFields = map[string]bool{
	"original_id": true, "ean": true, "original_name": true,
	"resolved_name": true, "resolved_url": true, "lowest_price": true,
	"seller_name": true, "is_available": true, "scrape_error": true,
	"last_scraped": true,
}

// decodePatch turns a JSON object into a ProductPatch. full demands the
// identity name so PUT cannot leave a row without one.
func decodePatch(body []byte, full bool) (domain.ProductPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.ProductPatch{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	var patch domain.ProductPatch
	for key, value := range raw {
		if !patchFields[key] {
			return domain.ProductPatch{}, fmt.Errorf("unknown field %q", key)
		}
		isNull := string(value) == "null"

		var err error
		switch key {
		case "original_id":
			err = decodeString(value, &patch.OriginalID)
		case "ean":
			err = decodeString(value, &patch.EAN)
		case "original_name":
			err = decodeString(value, &patch.OriginalName)
		case "resolved_name":
			patch.ClearResolvedName = isNull
			err = decodeString(value, &patch.ResolvedName)
		case "resolved_url":
			patch.ClearResolvedURL = isNull
			err = decodeString(value, &patch.ResolvedURL)
		case "seller_name":
			patch.ClearSellerName = isNull
			err = decodeString(value, &patch.SellerName)
		case "scrape_error":
			patch.ClearScrapeError = isNull
			err = decodeString(value, &patch.ScrapeError)
		case "lowest_price":
			patch.ClearLowestPrice = isNull
			if !isNull {
				var price decimal.Decimal
				err = json.Unmarshal(value, &price)
				patch.LowestPrice = &price
			}
		case "last_scraped":
			if !isNull {
				err = fmt.Errorf("can only be cleared with null")
			}
			patch.ClearLastScraped = isNull
		case "is_available":
			if !isNull {
				var v bool
				err = json.Unmarshal(value, &v)
				patch.IsAvailable = &v
			}
		}
		if err != nil {
			return domain.ProductPatch{}, fmt.Errorf("field %s: %w", key, err)
		}
	}

	if full && patch.OriginalName == nil {
		return domain.ProductPatch{}, fmt.Errorf("field original_name is required")
	}
	return patch, nil
}

func decodeString(value json.RawMessage, dst **string) error {
	if string(value) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return err
	}
	*dst = &s
	return nil
}
