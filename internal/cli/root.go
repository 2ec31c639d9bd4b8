// Package cli implements the legato command: local conversion of a table
// image or PDF page into a spreadsheet without running the HTTP server.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(rootCmd, err)
		return 1
	}
	return 0
}

// printError reports err with its user-facing code when it has one.
func printError(cmd *cobra.Command, err error) {
	msg := core.MapError(err)
	if getOutputFormat(cmd) == "json" {
		_ = printJSON(cmd.OutOrStdout(), struct {
			Error string `json:"error"`
			core.UserMessage
		}{err.Error(), msg})
		return
	}
	if core.IsUserFacing(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", core.FormatUserError(err))
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
}

func newRootCmd() *cobra.Command {
	var (
		envFile  string
		output   string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:           "legato",
		Short:         "Convert table images and PDF pages into spreadsheets",
		Long:          "legato runs the upload, validation, layout analysis and spreadsheet rendering pipeline locally.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			} else {
				_ = godotenv.Load()
			}

			if !cmd.Flags().Changed("output") {
				output = defaultOutput(cmd.OutOrStdout())
			}
			if err := validateOutputFormat(output); err != nil {
				return err
			}

			// stdout is reserved for command output
			logging.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
			cmd.SetContext(logging.NewContext(cmd.Context(), slog.Default().With("command", cmd.Name())))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: .env if present)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newConvertCmd(),
		newInfoCmd(),
		newSweepCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// defaultOutput picks table for terminals and json for pipes.
func defaultOutput(w io.Writer) string {
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return "json"
	}
	return "table"
}

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "legato version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
