package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

const (
	mirrorSheet  = "Products"
	docTimestamp = "2000-01-01T00:00:00Z"
)

// XLSXCodec reads and writes Excel workbooks. The mirror lives on a single
// sheet; input files are read from their first sheet.
type XLSXCodec struct{}

var _ ports.SpreadsheetCodec = XLSXCodec{}

func (XLSXCodec) EncodeMirror(w io.Writer, products []domain.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), mirrorSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	// fixed properties keep regenerated workbooks free of volatile data
	if err := f.SetDocProps(&excelize.DocProperties{
		Creator:        "CatalogScanner",
		LastModifiedBy: "CatalogScanner",
		Title:          "Product catalog",
		Created:        docTimestamp,
		Modified:       docTimestamp,
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	if err := writeRow(f, 1, MirrorColumns); err != nil {
		return err
	}
	for i, p := range products {
		if err := writeRow(f, i+2, mirrorRecord(p)); err != nil {
			return fmt.Errorf("product %s: %w", p.OriginalID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(mirrorSheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func (XLSXCodec) DecodeMirror(r io.Reader) ([]domain.Product, error) {
	records, err := readFirstSheet(r)
	if err != nil {
		return nil, err
	}
	return decodeMirrorRecords(records)
}

func (XLSXCodec) DecodeInput(r io.Reader) ([]ports.InputRow, error) {
	records, err := readFirstSheet(r)
	if err != nil {
		return nil, err
	}
	return decodeInputRecords(records)
}

func readFirstSheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}
