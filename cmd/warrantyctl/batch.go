package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/ingest"
)

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Extract every supported document under a directory",
	Long: `Walk DIR and run text or field extraction on each PDF or image found.
One JSON line is printed per file, followed by a summary on stderr.

Examples:
  warrantyctl batch ./invoices --mode fields
  warrantyctl batch ./scans --ext pdf,png --skip-hidden=false`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().String("mode", "text", "Extraction to run (text, fields)")
	batchCmd.Flags().StringSlice("ext", nil, "Extensions to include (default: all supported)")
	batchCmd.Flags().Bool("skip-hidden", true, "Skip hidden files and directories")
}

func runBatch(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	skipHidden, _ := cmd.Flags().GetBool("skip-hidden")

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "text" && mode != "fields" {
		return fmt.Errorf("mode must be text or fields, got %q", mode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	enc := json.NewEncoder(cmd.OutOrStdout())
	handler := func(ctx context.Context, path string, doc document.RawDocument) (any, error) {
		var (
			out any
			err error
		)
		if mode == "fields" {
			out, err = a.Processor.ExtractFields(ctx, doc)
		} else {
			out, err = a.Processor.ExtractText(ctx, doc)
		}
		if err != nil {
			_ = enc.Encode(ingest.FileResult{Path: path, Kind: string(doc.Kind), Err: err.Error()})
			return nil, err
		}
		_ = enc.Encode(ingest.FileResult{Path: path, Kind: string(doc.Kind), Result: out})
		return out, nil
	}

	_, stats, err := ingest.WalkDirectory(ctx, args[0], ingest.Options{
		IncludeExts: exts,
		SkipHidden:  skipHidden,
		MaxBytes:    a.Config.MaxUploadBytes(),
	}, handler)
	fmt.Fprintf(cmd.ErrOrStderr(), "scanned=%d matched=%d succeeded=%d failed=%d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed)
	return err
}
