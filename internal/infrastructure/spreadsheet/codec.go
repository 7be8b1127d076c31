package spreadsheet

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// MirrorColumns is the header row of the mirror, one column per Product field.
var MirrorColumns = []string{
	"ID",
	"EAN",
	"Original Name",
	"Resolved Name",
	"Resolved URL",
	"Lowest Price",
	"Seller",
	"Available",
	"Last Scraped",
	"Scrape Error",
}

const (
	timestampLayout = "2006-01-02 15:04:05"
	availableYes    = "yes"
	availableNo     = "no"
)

// input header aliases, lower-cased
var (
	inputIDHeaders   = []string{"id", "original_id"}
	inputEANHeaders  = []string{"ean", "barcode"}
	inputNameHeaders = []string{"name", "original name", "original_name", "nome"}
)

// ForPath picks a codec from the file extension.
func ForPath(path string) (ports.SpreadsheetCodec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return XLSXCodec{}, nil
	case ".csv":
		return CSVCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported spreadsheet format %q", filepath.Ext(path))
	}
}

func mirrorRecord(p domain.Product) []string {
	price := ""
	if p.LowestPrice.Valid {
		price = p.LowestPrice.Decimal.StringFixed(2)
	}

	available := availableNo
	if p.IsAvailable {
		available = availableYes
	}

	scraped := ""
	if p.LastScraped != nil {
		scraped = p.LastScraped.UTC().Format(timestampLayout)
	}

	return []string{
		p.OriginalID,
		p.EAN,
		p.OriginalName,
		deref(p.ResolvedName),
		deref(p.ResolvedURL),
		price,
		deref(p.SellerName),
		available,
		scraped,
		deref(p.ScrapeError),
	}
}

func productFromRecord(line int, record []string) (domain.Product, error) {
	cell := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	p := domain.NewProduct(cell(0), cell(1), cell(2))
	p.ResolvedName = ref(cell(3))
	p.ResolvedURL = ref(cell(4))
	p.SellerName = ref(cell(6))
	p.ScrapeError = ref(cell(9))

	if raw := cell(5); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Product{}, fmt.Errorf("line %d: price %q: %w", line, raw, err)
		}
		p.LowestPrice = decimal.NewNullDecimal(price)
	}

	switch strings.ToLower(cell(7)) {
	case availableYes:
		p.IsAvailable = true
	case availableNo, "":
	default:
		return domain.Product{}, fmt.Errorf("line %d: availability %q", line, cell(7))
	}

	if raw := cell(8); raw != "" {
		ts, err := time.ParseInLocation(timestampLayout, raw, time.UTC)
		if err != nil {
			return domain.Product{}, fmt.Errorf("line %d: last scraped %q: %w", line, raw, err)
		}
		p.LastScraped = &ts
	}

	return p, nil
}

func decodeMirrorRecords(records [][]string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(records))
	if len(records) == 0 {
		return products, nil
	}

	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		p, err := productFromRecord(i+2, record)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func decodeInputRecords(records [][]string) ([]ports.InputRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("input spreadsheet is empty")
	}

	header := records[0]
	idCol := findColumn(header, inputIDHeaders)
	if idCol < 0 {
		return nil, fmt.Errorf("input spreadsheet has no ID column")
	}
	eanCol := findColumn(header, inputEANHeaders)
	nameCol := findColumn(header, inputNameHeaders)

	rows := make([]ports.InputRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		rows = append(rows, ports.InputRow{
			Line:       i + 2,
			OriginalID: at(record, idCol),
			EAN:        at(record, eanCol),
			Name:       at(record, nameCol),
		})
	}
	return rows, nil
}

func findColumn(header []string, aliases []string) int {
	for i, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		for _, alias := range aliases {
			if normalized == alias {
				return i
			}
		}
	}
	return -1
}

func at(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
