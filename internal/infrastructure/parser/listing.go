package parser

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

const defaultSeller = "Worten"

// listing is one offer found on a search or product page.
type listing struct {
	Name    string
	URL     string
	Price   decimal.Decimal
	Seller  string
	InStock bool
}

var (
	cardSelector        = `article.product-card, .product-card, [data-testid="product-card"], article[itemtype*="Product"]`
	cardNameSelector    = `[data-testid="product-name"], .product-card__name, [itemprop="name"], h3, h2`
	cardPriceSelector   = `[data-testid="product-price"], .product-card__price, .price__numbers, .product-price, [itemprop="price"]`
	cardSellerSelector  = `[data-testid="seller-name"], .product-card__seller, .seller-name, .seller`
	pagePriceSelector   = `[data-testid="product-price"], .product-price-info .price__numbers, .price__numbers, [itemprop="price"]`
	pageSellerSelector  = `[data-testid="seller-name"], .product-seller, .seller-name, .seller-info a`
	noResultsMarkers    = []string{"sem resultados", "nenhum resultado", "não encontrámos resultados"}
	outOfStockMarkers   = []string{"esgotado", "indisponível", "sem stock"}
	nextDataContainers  = []string{"searchData", "initialData", "data"}
	nextDataListKeys    = []string{"products", "items", "results"}
	productPathFragment = []string{"/produtos/", "/p/"}
)

// isProductURL reports whether a search redirected straight to a product.
func isProductURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, fragment := range productPathFragment {
		if strings.Contains(u.Path, fragment) {
			return true
		}
	}
	return false
}

func hasNoResultsMarker(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("body").Text())
	for _, marker := range noResultsMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func looksOutOfStock(text string) bool {
	text = strings.ToLower(text)
	for _, marker := range outOfStockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// searchListings collects offers from the embedded page data and from the
// rendered product cards, in page order, without repeating a URL.
func searchListings(doc *goquery.Document, base *url.URL) []listing {
	var listings []listing
	seen := map[string]struct{}{}
	add := func(l listing) {
		if l.URL != "" {
			if _, ok := seen[l.URL]; ok {
				return
			}
			seen[l.URL] = struct{}{}
		}
		listings = append(listings, l)
	}

	if data, ok := nextData(doc); ok {
		for _, item := range nextDataItems(data) {
			if l, ok := listingFromJSON(item, base); ok {
				add(l)
			}
		}
	}

	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		if card.ParentsFiltered(cardSelector).Length() > 0 {
			return
		}
		if l, ok := listingFromCard(card, base); ok {
			add(l)
		}
	})

	return listings
}

// productPageListing reads the single offer of a product detail page.
func productPageListing(doc *goquery.Document, page *url.URL) (listing, bool) {
	if data, ok := nextData(doc); ok {
		props := pageProps(data)
		for _, candidate := range []any{props["product"], dig(props, "data", "product"), dig(props, "initialData", "product")} {
			item, ok := candidate.(map[string]any)
			if !ok {
				continue
			}
			if l, ok := listingFromJSON(item, page); ok {
				if l.URL == "" {
					l.URL = page.String()
				}
				return l, true
			}
		}
	}

	name := collapse(doc.Find("h1").First().Text())
	price, ok := ParsePrice(selectionPrice(doc.Find(pagePriceSelector).First()))
	if name == "" || !ok {
		return listing{}, false
	}

	return listing{
		Name:    name,
		URL:     page.String(),
		Price:   price,
		Seller:  normalizeSeller(doc.Find(pageSellerSelector).First().Text()),
		InStock: !looksOutOfStock(doc.Find("main").Text()),
	}, true
}

func listingFromCard(card *goquery.Selection, base *url.URL) (listing, bool) {
	name := collapse(card.Find(cardNameSelector).First().Text())
	href, _ := card.Find("a[href]").First().Attr("href")
	if href == "" {
		href, _ = card.Attr("href")
	}
	price, ok := ParsePrice(selectionPrice(card.Find(cardPriceSelector).First()))
	if name == "" || href == "" || !ok {
		return listing{}, false
	}

	inStock := !looksOutOfStock(card.Text()) && !card.HasClass("product-card--unavailable")
	return listing{
		Name:    name,
		URL:     absolute(base, href),
		Price:   price,
		Seller:  normalizeSeller(card.Find(cardSellerSelector).First().Text()),
		InStock: inStock,
	}, true
}

func selectionPrice(sel *goquery.Selection) string {
	if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return content
	}
	return sel.Text()
}

func nextData(doc *goquery.Document) (map[string]any, bool) {
	raw := strings.TrimSpace(doc.Find(`script#__NEXT_DATA__`).First().Text())
	if raw == "" {
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false
	}
	return data, true
}

func pageProps(data map[string]any) map[string]any {
	if props, ok := dig(data, "props", "pageProps").(map[string]any); ok {
		return props
	}
	return data
}

func nextDataItems(data map[string]any) []map[string]any {
	props := pageProps(data)
	for _, container := range nextDataContainers {
		section, ok := props[container].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range nextDataListKeys {
			raw, ok := section[key].([]any)
			if !ok {
				continue
			}
			items := make([]map[string]any, 0, len(raw))
			for _, entry := range raw {
				if item, ok := entry.(map[string]any); ok {
					items = append(items, item)
				}
			}
			return items
		}
	}
	return nil
}

func listingFromJSON(item map[string]any, base *url.URL) (listing, bool) {
	name := collapse(firstString(item, "name", "title"))
	href := firstString(item, "url", "link", "href", "slug")
	price, ok := jsonPrice(item)
	if name == "" || href == "" || !ok {
		return listing{}, false
	}

	seller := firstString(item, "seller", "sellerName", "vendor")
	if seller == "" {
		if nested, ok := item["seller"].(map[string]any); ok {
			seller = firstString(nested, "name")
		}
	}

	return listing{
		Name:    name,
		URL:     absolute(base, href),
		Price:   price,
		Seller:  normalizeSeller(seller),
		InStock: jsonInStock(item),
	}, true
}

func jsonPrice(item map[string]any) (decimal.Decimal, bool) {
	for _, key := range []string{"price", "currentPrice", "finalPrice", "salePrice"} {
		switch v := item[key].(type) {
		case float64:
			d := decimal.NewFromFloat(v)
			if d.IsPositive() {
				return d, true
			}
		case string:
			if d, ok := ParsePrice(v); ok {
				return d, true
			}
		case map[string]any:
			if d, ok := jsonPrice(map[string]any{"price": firstValue(v, "value", "current", "amount", "final")}); ok {
				return d, true
			}
		}
	}
	return decimal.Decimal{}, false
}

func jsonInStock(item map[string]any) bool {
	for _, key := range []string{"inStock", "available", "isAvailable"} {
		if v, ok := item[key].(bool); ok {
			return v
		}
	}
	if availability := strings.ToLower(firstString(item, "availability", "stockStatus")); availability != "" {
		availability = strings.NewReplacer("_", "", "-", "", " ", "").Replace(availability)
		return strings.Contains(availability, "instock") && !strings.Contains(availability, "outofstock")
	}
	return true
}

func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func dig(m map[string]any, path ...string) any {
	var current any = m
	for _, key := range path {
		next, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = next[key]
	}
	return current
}

func normalizeSeller(raw string) string {
	seller := collapse(raw)
	if len(seller) >= len("vendido por ") && strings.EqualFold(seller[:len("vendido por ")], "vendido por ") {
		seller = strings.TrimSpace(seller[len("vendido por "):])
	}
	if seller == "" {
		return defaultSeller
	}
	return seller
}

func absolute(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	if !ref.IsAbs() && !strings.HasPrefix(ref.Path, "/") && ref.Host == "" {
		// bare slugs from page data are site-rooted
		ref.Path = "/" + ref.Path
	}
	return base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cheapestInStock picks the lowest-priced offer that can be bought. Ties
// keep the earlier listing.
func cheapestInStock(listings []listing) (listing, bool) {
	var (
		best  listing
		found bool
	)
	for _, l := range listings {
		if !l.InStock {
			continue
		}
		if !found || l.Price.LessThan(best.Price) {
			best = l
			found = true
		}
	}
	return best, found
}
