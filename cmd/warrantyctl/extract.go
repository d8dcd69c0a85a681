package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract"
)

var textCmd = &cobra.Command{
	Use:   "text FILE",
	Short: "Print the recognized text and confidence of a document",
	Long: `Rasterize the first page of FILE (PDF or image) and print its text as JSON.

Examples:
  warrantyctl text invoice.pdf
  OCR_READING_ORDER=geometric warrantyctl text receipt.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runText,
}

var fieldsCmd = &cobra.Command{
	Use:   "fields FILE",
	Short: "Print the six invoice fields extracted from a document",
	Long: `Ask the structured field model for product name, order id, invoice number,
total amount, purchase date and retailer, and print them as JSON.

The model is loaded on first use; the first run may take several minutes.
All six fields are always extracted; --only limits what is printed.

Examples:
  warrantyctl fields invoice.pdf
  warrantyctl fields --only total,order_id invoice.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runFields,
}

var onlyFields []string

func init() {
	fieldsCmd.Flags().StringSliceVar(&onlyFields, "only", nil, "print only these fields (names or synonyms such as total, merchant)")
	rootCmd.AddCommand(textCmd)
	rootCmd.AddCommand(fieldsCmd)
}

func readDocument(path string) (document.RawDocument, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsAllowedExt(ext) {
		return document.RawDocument{}, common.InvalidInputError(fmt.Sprintf("unsupported file extension %q", ext))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return document.RawDocument{}, err
	}
	return document.RawDocument{Bytes: data, Kind: constants.KindFromExt(ext)}, nil
}

func runText(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Processor.ExtractText(ctx, doc)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runFields(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	only, err := parseOnly(onlyFields)
	if err != nil {
		return err
	}
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Processor.ExtractFields(ctx, doc)
	if err != nil {
		return err
	}
	for field, reason := range res.Failures() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", field, reason)
	}
	if len(only) > 0 {
		return printJSON(cmd, selectFields(res, only))
	}
	return printJSON(cmd, res)
}

// parseOnly resolves --only values to field names.
func parseOnly(names []string) ([]constants.FieldName, error) {
	out := make([]constants.FieldName, 0, len(names))
	for _, n := range names {
		f, ok := constants.ParseField(n)
		if !ok {
			return nil, common.InvalidInputError(fmt.Sprintf("unknown field %q (want one of %s)", n, strings.Join(constants.AsStringSlice(), ", ")))
		}
		out = append(out, f)
	}
	return out, nil
}

func selectFields(res extract.FieldsResult, only []constants.FieldName) map[string]string {
	out := make(map[string]string, len(only))
	for _, f := range only {
		out[string(f)] = res.Get(f)
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
