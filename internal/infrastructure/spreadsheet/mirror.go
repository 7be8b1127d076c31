package spreadsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// Mirror is the output spreadsheet on disk, encoded by the codec that
// matches its extension.
type Mirror struct {
	path  string
	codec ports.SpreadsheetCodec
}

var _ ports.MirrorFile = (*Mirror)(nil)

// NewMirror picks the codec from the path extension.
func NewMirror(path string) (*Mirror, error) {
	codec, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return &Mirror{path: path, codec: codec}, nil
}

func (m *Mirror) Location() string {
	return m.path
}

// Write replaces the whole file atomically.
func (m *Mirror) Write(products []domain.Product) error {
	return WriteFileAtomic(m.path, func(w io.Writer) error {
		return m.codec.EncodeMirror(w, products)
	})
}

func (m *Mirror) Read() ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrMirrorMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read mirror %s: %w", m.path, err)
	}
	return data, nil
}

func (m *Mirror) Load() ([]domain.Product, error) {
	data, err := m.Read()
	if err != nil {
		return nil, err
	}
	products, err := m.codec.DecodeMirror(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mirror %s: %w", m.path, err)
	}
	return products, nil
}

// InputFile is the spreadsheet the catalog is seeded from.
type InputFile struct {
	path  string
	codec ports.SpreadsheetCodec
}

var _ ports.InputSource = (*InputFile)(nil)

// NewInputFile picks the codec from the path extension.
func NewInputFile(path string) (*InputFile, error) {
	codec, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return &InputFile{path: path, codec: codec}, nil
}

func (f *InputFile) Location() string {
	return f.path
}

// Rows reads the whole sheet. A missing file is reported with fs.ErrNotExist
// in the chain.
func (f *InputFile) Rows(_ context.Context) ([]ports.InputRow, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", f.path, err)
	}
	defer file.Close()

	rows, err := f.codec.DecodeInput(file)
	if err != nil {
		return nil, fmt.Errorf("decode input %s: %w", f.path, err)
	}
	return rows, nil
}
