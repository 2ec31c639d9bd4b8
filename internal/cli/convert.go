package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

type convertResult struct {
	Input         string             `json:"input"`
	Output        string             `json:"output"`
	Kind          core.ContentKind   `json:"kind"`
	Page          int                `json:"page"`
	PageCount     int                `json:"page_count"`
	RowCount      int                `json:"row_count"`
	CellCount     int                `json:"cell_count"`
	DurationMs    int64              `json:"duration_ms"`
	Preview       *core.PreviewTable `json:"preview,omitempty"`
	PreviewReason string             `json:"preview_reason,omitempty"`
}

func newConvertCmd() *cobra.Command {
	var (
		page      int
		out       string
		force     bool
		noHistory bool
		af        analyzerFlags
	)

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert one page of an image or PDF into a spreadsheet",
		Long: `Convert reads a PNG, JPEG, WebP or PDF file, detects the table on the
selected page and writes it as a single-sheet .xlsx workbook.

The model key is read from --key, then ANALYZER_API_KEY. Without a key the
hosted providers fall back to a sample layout.`,
		Example: `  legato convert invoice.pdf --page 2 --out invoice.xlsx
  legato convert scan.png --provider openai --model gpt-4o --key "$OPENAI_API_KEY"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return &core.ValidationError{Kind: core.ErrInvalidPageIndex, Reason: "--page is 1-based"}
			}
			if out == "" {
				out = core.SpreadsheetFilename
			}
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			af.apply(cfg)

			ctx := cmd.Context()
			ls, err := newLocalService(ctx, cfg, !noHistory)
			if err != nil {
				return err
			}
			defer ls.close()

			summary, err := ls.upload(ctx, args[0])
			if err != nil {
				return err
			}

			res, err := ls.svc.Convert(ctx, core.ConvertRequest{
				UploadID:   summary.Upload.ID,
				PageIndex:  page - 1,
				Credential: af.key,
			})
			if err != nil {
				return err
			}

			if err := writeWorkbook(out, res.SpreadsheetBytes); err != nil {
				return err
			}

			result := convertResult{
				Input:         args[0],
				Output:        out,
				Kind:          summary.Content.Kind,
				Page:          page,
				PageCount:     summary.Content.PageCount,
				RowCount:      res.RowCount,
				CellCount:     res.CellCount,
				DurationMs:    res.Duration.Milliseconds(),
				Preview:       res.Preview,
				PreviewReason: res.PreviewReason,
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printConvertTable(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page to convert (1-based; images have one page)")
	cmd.Flags().StringVar(&out, "out", "", "Output path (default: "+core.SpreadsheetFilename+")")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing output file")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the conversion even when DATABASE_URL is set")
	addAnalyzerFlags(cmd, &af)
	return cmd
}

func addAnalyzerFlags(cmd *cobra.Command, af *analyzerFlags) {
	cmd.Flags().StringVar(&af.provider, "provider", "", "Analyzer provider (mock, openai, anthropic, mistral, ollama, googleai)")
	cmd.Flags().StringVar(&af.model, "model", "", "Model name passed to the provider")
	cmd.Flags().StringVar(&af.baseURL, "base-url", "", "Provider endpoint override")
	cmd.Flags().StringVar(&af.key, "key", "", "Model key for this run")
}

// writeWorkbook writes data next to its final path and renames it into
// place, so a failed write never leaves a truncated workbook behind.
func writeWorkbook(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".legato-*.xlsx")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func printConvertTable(w io.Writer, r convertResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Input:\t%s (page %d of %d)\n", r.Input, r.Page, r.PageCount)
	fmt.Fprintf(tw, "Output:\t%s\n", r.Output)
	fmt.Fprintf(tw, "Cells:\t%d in %d rows\n", r.CellCount, r.RowCount)
	fmt.Fprintf(tw, "Duration:\t%dms\n", r.DurationMs)
	_ = tw.Flush()

	fmt.Fprintln(w)
	if r.Preview == nil {
		fmt.Fprintf(w, "(%s)\n", r.PreviewReason)
		return
	}
	printPreview(w, r.Preview)
}

// printPreview renders the preview grid with column letters and row numbers.
// Line breaks inside cells are flattened so the grid stays aligned.
func printPreview(w io.Writer, p *core.PreviewTable) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.Debug)
	fmt.Fprintf(tw, "\t%s\t\n", strings.Join(p.Columns, "\t"))
	for i, row := range p.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strings.ReplaceAll(v, "\n", " ")
		}
		fmt.Fprintf(tw, "%d\t%s\t\n", i+1, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	if p.Truncated {
		fmt.Fprintln(w, "(preview truncated; the workbook has every row)")
	}
}
