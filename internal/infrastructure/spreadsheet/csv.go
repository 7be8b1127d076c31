package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// CSVCodec writes UTF-8 with a byte order mark so spreadsheet tools pick
// the right encoding, and accepts input with or without one.
type CSVCodec struct{}

var _ ports.SpreadsheetCodec = CSVCodec{}

func (CSVCodec) EncodeMirror(w io.Writer, products []domain.Product) error {
	encoder := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	writer := csv.NewWriter(encoder)

	if err := writer.Write(MirrorColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range products {
		if err := writer.Write(mirrorRecord(p)); err != nil {
			return fmt.Errorf("write product %s: %w", p.OriginalID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close csv encoder: %w", err)
	}
	return nil
}

func (CSVCodec) DecodeMirror(r io.Reader) ([]domain.Product, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return decodeMirrorRecords(records)
}

func (CSVCodec) DecodeInput(r io.Reader) ([]ports.InputRow, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return decodeInputRecords(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	decoder := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoder)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv read error: %w", err)
	}
	return records, nil
}
