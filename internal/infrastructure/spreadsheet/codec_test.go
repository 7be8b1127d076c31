package spreadsheet

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CatalogScanner/internal/domain"
)

func sampleProducts() []domain.Product {
	scraped := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	name := "Auriculares Sony WH-1000XM5"
	link := "https://www.worten.pt/produtos/auriculares-sony-wh-1000xm5-123"
	seller := "Worten"
	missing := "no search results"

	found := domain.NewProduct("A-1", "4548736132580", "Sony WH1000XM5 preto")
	found.ResolvedName = &name
	found.ResolvedURL = &link
	found.SellerName = &seller
	found.LowestPrice = decimal.NewNullDecimal(decimal.RequireFromString("349.9"))
	found.IsAvailable = true
	found.LastScraped = &scraped

	gone := domain.NewProduct("A-2", "", "Torradeira, \"retro\" 2 fatias")
	gone.ScrapeError = &missing
	gone.LastScraped = &scraped

	fresh := domain.NewProduct("A-3", "5601234567890", "Máquina de café Delta Q")

	return []domain.Product{found, gone, fresh}
}

func TestForPath(t *testing.T) {
	t.Parallel()

	codec, err := ForPath("out/products.XLSX")
	require.NoError(t, err)
	assert.IsType(t, XLSXCodec{}, codec)

	codec, err = ForPath("products.csv")
	require.NoError(t, err)
	assert.IsType(t, CSVCodec{}, codec)

	_, err = ForPath("products.ods")
	assert.Error(t, err)
}

func TestCSVEncodeMirror(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, CSVCodec{}.EncodeMirror(&buf, sampleProducts()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "mirror should start with a BOM")

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(out, "\ufeff"), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(MirrorColumns, ","), lines[0])
	assert.Equal(t,
		"A-1,4548736132580,Sony WH1000XM5 preto,Auriculares Sony WH-1000XM5,"+
			"https://www.worten.pt/produtos/auriculares-sony-wh-1000xm5-123,349.90,Worten,yes,2024-03-09 14:05:07,",
		lines[1])
	assert.Equal(t, `A-2,,"Torradeira, ""retro"" 2 fatias",,,,,no,2024-03-09 14:05:07,no search results`, lines[2])
	assert.Equal(t, "A-3,5601234567890,Máquina de café Delta Q,,,,,no,,", lines[3])
}

func TestCSVEncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	var first, second bytes.Buffer
	require.NoError(t, CSVCodec{}.EncodeMirror(&first, sampleProducts()))
	require.NoError(t, CSVCodec{}.EncodeMirror(&second, sampleProducts()))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, CSVCodec{}.EncodeMirror(&buf, sampleProducts()))

	decoded, err := CSVCodec{}.DecodeMirror(&buf)
	require.NoError(t, err)
	assertSameProducts(t, sampleProducts(), decoded)
}

func TestCSVEmptyMirrorHasHeaderOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, CSVCodec{}.EncodeMirror(&buf, nil))

	decoded, err := CSVCodec{}.DecodeMirror(&buf)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestCSVDecodeMirrorRejectsBadCells(t *testing.T) {
	t.Parallel()

	header := strings.Join(MirrorColumns, ",") + "\n"
	cases := map[string]string{
		"price":        "A-1,,Name,,,abc,,no,,\n",
		"availability": "A-1,,Name,,,,,maybe,,\n",
		"timestamp":    "A-1,,Name,,,,,no,yesterday,\n",
	}
	for name, row := range cases {
		row := row
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := CSVCodec{}.DecodeMirror(strings.NewReader(header + row))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestCSVDecodeInput(t *testing.T) {
	t.Parallel()

	input := "\ufeffEAN,ID,Name,Notes\n" +
		"4548736132580, A-1 ,Sony WH1000XM5,ignored\n" +
		",,,\n" +
		",A-2,Torradeira\n" +
		"123,,Sem id\n"
	rows, err := CSVCodec{}.DecodeInput(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "A-1", rows[0].OriginalID)
	assert.Equal(t, "4548736132580", rows[0].EAN)
	assert.Equal(t, "Sony WH1000XM5", rows[0].Name)

	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "A-2", rows[1].OriginalID)
	assert.Empty(t, rows[1].EAN)

	assert.Equal(t, 5, rows[2].Line)
	assert.Empty(t, rows[2].OriginalID)
}

func TestDecodeInputRequiresIDColumn(t *testing.T) {
	t.Parallel()

	_, err := CSVCodec{}.DecodeInput(strings.NewReader("EAN,Name\n1,x\n"))
	require.Error(t, err)

	_, err = CSVCodec{}.DecodeInput(strings.NewReader(""))
	require.Error(t, err)
}

func TestXLSXRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, XLSXCodec{}.EncodeMirror(&buf, sampleProducts()))

	decoded, err := XLSXCodec{}.DecodeMirror(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assertSameProducts(t, sampleProducts(), decoded)
}

func TestXLSXDecodeInput(t *testing.T) {
	t.Parallel()

	// a mirror workbook doubles as an input file: ID, EAN and Original Name
	var buf bytes.Buffer
	require.NoError(t, XLSXCodec{}.EncodeMirror(&buf, sampleProducts()))

	rows, err := XLSXCodec{}.DecodeInput(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A-2", rows[1].OriginalID)
	assert.Equal(t, "Torradeira, \"retro\" 2 fatias", rows[1].Name)
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "products.csv")

	write := func(products []domain.Product) error {
		return WriteFileAtomic(path, func(w io.Writer) error {
			return CSVCodec{}.EncodeMirror(w, products)
		})
	}

	require.NoError(t, write(sampleProducts()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, write(sampleProducts()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomicKeepsOldContentOnFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("render failed")
	})
	require.Error(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(content))
}

func assertSameProducts(t *testing.T, want, got []domain.Product) {
	t.Helper()

	opts := cmp.Comparer(func(a, b decimal.NullDecimal) bool {
		if a.Valid != b.Valid {
			return false
		}
		return !a.Valid || a.Decimal.Equal(b.Decimal)
	})
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}
}
