package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

type infoResult struct {
	Input     string           `json:"input"`
	Kind      core.ContentKind `json:"kind"`
	Format    string           `json:"format"`
	PageCount int              `json:"page_count"`
	Width     int              `json:"width,omitempty"`
	Height    int              `json:"height,omitempty"`
	SizeBytes int64            `json:"size_bytes"`
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Validate a file and show what would be converted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ls, err := newLocalService(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer ls.close()

			summary, err := ls.upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result := infoResult{
				Input:     args[0],
				Kind:      summary.Content.Kind,
				Format:    summary.Content.Format,
				PageCount: summary.Content.PageCount,
				Width:     summary.Content.Width,
				Height:    summary.Content.Height,
				SizeBytes: summary.Upload.SizeBytes,
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "File:\t%s\n", result.Input)
			fmt.Fprintf(tw, "Kind:\t%s (%s)\n", result.Kind, result.Format)
			fmt.Fprintf(tw, "Pages:\t%d\n", result.PageCount)
			if result.Width > 0 {
				fmt.Fprintf(tw, "Size:\t%dx%d px\n", result.Width, result.Height)
			}
			fmt.Fprintf(tw, "Bytes:\t%d\n", result.SizeBytes)
			return tw.Flush()
		},
	}
}
