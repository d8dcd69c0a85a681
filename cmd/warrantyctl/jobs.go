package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/export"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/repository"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the extraction job ledger",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent extraction jobs as JSON",
	RunE:  runJobsList,
}

var jobsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export extraction jobs to an XLSX workbook",
	Long: `Write ledger jobs to a spreadsheet, one row per job with the six fields
spread over columns.

Examples:
  warrantyctl jobs export --out jobs.xlsx
  warrantyctl jobs export --status FAILED --since 2025-01-01 --out failed.xlsx`,
	RunE: runJobsExport,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsExportCmd)

	for _, c := range []*cobra.Command{jobsListCmd, jobsExportCmd} {
		c.Flags().String("status", "", "Filter by status (RUNNING, TEXT_OK, FIELDS_OK, FAILED)")
		c.Flags().String("kind", "", "Filter by kind (TEXT, FIELDS)")
		c.Flags().String("since", "", "Only jobs started on or after this date (YYYY-MM-DD)")
	}
	jobsListCmd.Flags().Int("limit", 50, "Maximum number of jobs")
	jobsExportCmd.Flags().Int("limit", 0, "Maximum number of jobs (0 = all)")
	jobsExportCmd.Flags().StringP("out", "o", "jobs.xlsx", "Output file")
}

func listFilter(cmd *cobra.Command) (repository.ListFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	kind, _ := cmd.Flags().GetString("kind")
	since, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")

	f := repository.ListFilter{
		Status: constants.JobStatus(strings.ToUpper(strings.TrimSpace(status))),
		Kind:   constants.JobKind(strings.ToUpper(strings.TrimSpace(kind))),
		Limit:  limit,
	}
	if since = strings.TrimSpace(since); since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return f, fmt.Errorf("since must be YYYY-MM-DD: %w", err)
		}
		f.Since = &t
	}
	return f, nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	filter, err := listFilter(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	if !a.Store.Enabled() {
		return fmt.Errorf("ledger disabled: set DB_URL")
	}

	jobs, err := a.Store.Jobs.List(ctx, filter)
	if err != nil {
		return err
	}
	return printJSON(cmd, jobs)
}

func runJobsExport(cmd *cobra.Command, _ []string) error {
	filter, err := listFilter(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	if !a.Store.Enabled() {
		return fmt.Errorf("ledger disabled: set DB_URL")
	}

	data, err := export.NewService(a.Store.Jobs, nil).ExportJobsXLSX(ctx, filter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
	return nil
}
