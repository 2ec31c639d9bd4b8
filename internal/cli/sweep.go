package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/config"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/history"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
)

type sweepResult struct {
	Root           string           `json:"root"`
	TTL            string           `json:"ttl"`
	Report         core.SweepReport `json:"report"`
	HistoryPurged  int64            `json:"history_purged"`
	HistoryEnabled bool             `json:"history_enabled"`
}

func newSweepCmd() *cobra.Command {
	var historyDays int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired uploads from the upload root",
		Long: `Sweep runs one retention pass over UPLOAD_ROOT, removing entries that
have not been touched for UPLOAD_TTL. With --history-days it also deletes
conversion history older than that many days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Upload.Root == "" {
				cfg.Upload.Root = core.DefaultUploadRoot()
			}

			sweeper := core.NewRetentionSweeper(cfg.Upload.Root, cfg.Upload.TTL)
			result := sweepResult{
				Root:   cfg.Upload.Root,
				TTL:    sweeper.TTL().String(),
				Report: sweeper.Sweep(),
			}

			if historyDays > 0 {
				if !cfg.Database.Enabled() {
					return fmt.Errorf("--history-days needs DATABASE_URL")
				}
				pool, err := history.Connect(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer pool.Close()

				cutoff := time.Now().AddDate(0, 0, -historyDays)
				n, err := history.NewRecorder(pool).Purge(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				logging.FromContext(cmd.Context()).Info("history purged", "before", cutoff, "rows", n)
				result.HistoryEnabled, result.HistoryPurged = true, n
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}
			r := result.Report
			fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned %d, removed %d, failed %d (ttl %s)\n",
				result.Root, r.Scanned, r.Removed, r.Failed, result.TTL)
			if result.HistoryEnabled {
				fmt.Fprintf(cmd.OutOrStdout(), "history: purged %d records older than %d days\n", result.HistoryPurged, historyDays)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&historyDays, "history-days", 0, "Also delete conversion history older than this many days")
	return cmd
}
