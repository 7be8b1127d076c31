package commands

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"CatalogScanner/internal/usecase"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderImport(w io.Writer, r usecase.ImportReport) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Imported", "Skipped", "Malformed"})
	t.AppendRow(table.Row{r.Imported, r.Skipped, r.Malformed})
	t.Render()
}

func renderScrape(w io.Writer, r usecase.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Selected", "Found", "Not found", "Errors", "Interrupted"})
	t.AppendRow(table.Row{r.Selected, r.Found, r.NotFound, r.Errored, r.Interrupted})
	t.Render()

	if len(r.Failures) == 0 {
		return
	}
	f := newTable(w)
	f.AppendHeader(table.Row{"Product", "Reason"})
	for _, failure := range r.Failures {
		f.AppendRow(table.Row{failure.OriginalID, failure.Reason})
	}
	f.Render()
}

func renderDiff(w io.Writer, d usecase.MirrorDiff) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Check", "Products"})
	t.AppendRow(table.Row{"missing in mirror", strings.Join(d.MissingInMirror, ", ")})
	t.AppendRow(table.Row{"extra in mirror", strings.Join(d.ExtraInMirror, ", ")})
	t.AppendRow(table.Row{"changed", strings.Join(d.Changed, ", ")})
	t.Render()
}
