// Package templates holds the HTML fragments returned to HTMX requests.
//
// The fragments are plain templ components so handlers render them the same
// way they would render generated .templ output.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

// ErrorAlert renders a dismissible error box with the error code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Code: %s</p>`, templ.EscapeString(code))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Preview renders the result table with column letters and a download link.
// A result without a table shows its reason instead.
func Preview(result *core.ConversionResult, downloadURL string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<section class="preview" id="result-%s">`, templ.EscapeString(result.ID))
		fmt.Fprintf(&b, `<p class="preview-summary">%d rows, %d cells`, result.RowCount, result.CellCount)
		if result.Cached {
			b.WriteString(` (cached)`)
		}
		b.WriteString(`</p>`)

		if result.Preview == nil {
			fmt.Fprintf(&b, `<p class="preview-empty">%s</p>`, templ.EscapeString(result.PreviewReason))
		} else {
			writeTable(&b, result.Preview)
			if result.Preview.Truncated {
				b.WriteString(`<p class="preview-truncated">Preview truncated. The spreadsheet contains every row.</p>`)
			}
		}

		fmt.Fprintf(&b, `<a class="download" href="%s" download="%s">Download spreadsheet</a>`,
			templ.EscapeString(downloadURL), templ.EscapeString(core.SpreadsheetFilename))
		b.WriteString(`</section>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeTable(b *strings.Builder, t *core.PreviewTable) {
	b.WriteString(`<table class="preview-table"><thead><tr><th></th>`)
	for _, c := range t.Columns {
		fmt.Fprintf(b, `<th>%s</th>`, templ.EscapeString(c))
	}
	b.WriteString(`</tr></thead><tbody>`)
	for i, row := range t.Rows {
		fmt.Fprintf(b, `<tr><th>%d</th>`, i+1)
		for _, v := range row {
			fmt.Fprintf(b, `<td>%s</td>`, templ.EscapeString(v))
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
}

// History renders recent conversions as a table.
func History(records []core.ConversionRecord) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		if len(records) == 0 {
			b.WriteString(`<p class="history-empty">No conversions yet.</p>`)
			_, err := io.WriteString(w, b.String())
			return err
		}

		b.WriteString(`<table class="history-table"><thead><tr>` +
			`<th>When</th><th>Page</th><th>Status</th><th>Rows</th><th>Cells</th><th>Model</th><th>Duration</th>` +
			`</tr></thead><tbody>`)
		for _, r := range records {
			status := r.Status
			if r.ErrorCode != "" {
				status += " (" + r.ErrorCode + ")"
			}
			fmt.Fprintf(&b, `<tr class="status-%s"><td>%s</td><td>%d</td><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%dms</td></tr>`,
				templ.EscapeString(r.Status),
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.PageIndex+1,
				templ.EscapeString(status),
				r.RowCount,
				r.CellCount,
				templ.EscapeString(r.Model),
				r.DurationMs,
			)
		}
		b.WriteString(`</tbody></table>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}
