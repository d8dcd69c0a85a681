package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/entity"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/repository"
)

// SheetName is the worksheet holding the exported jobs.
const SheetName = "Jobs"

// Service is a tiny façade over the job ledger that produces XLSX bytes for exports.
type Service struct {
	jobs   repository.ExtractJobRepository
	logger *slog.Logger
}

func NewService(jobs repository.ExtractJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// Headers lists the exported columns in order.
func Headers() []string {
	h := []string{"Started At", "Kind", "Format", "Status", "Confidence", "Needs Review"}
	for _, f := range constants.AllFields() {
		h = append(h, f.Title())
	}
	return append(h, "Model", "Error", "Job ID")
}

// ExportJobsXLSX returns an XLSX workbook (as bytes) for the jobs matching filter.
func (s *Service) ExportJobsXLSX(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	for i, h := range Headers() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, job := range jobs {
		if err := writeRow(f, i+2, job); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20) // started
	_ = f.SetColWidth(SheetName, "B", "F", 12)
	_ = f.SetColWidth(SheetName, "G", "L", 22) // fields
	_ = f.SetColWidth(SheetName, "M", "M", 40) // model
	_ = f.SetColWidth(SheetName, "N", "N", 48) // error
	_ = f.SetColWidth(SheetName, "O", "O", 38)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, job *entity.ExtractJob) error {
	var fields map[string]string
	if len(job.ExtractedJSON) > 0 {
		if err := json.Unmarshal(job.ExtractedJSON, &fields); err != nil {
			return fmt.Errorf("job %s: decode fields: %w", job.ID, err)
		}
	}

	values := []any{
		job.StartedAt.UTC().Format(time.RFC3339),
		job.Kind,
		job.Format,
		job.Status,
		"",
		job.NeedsReview,
	}
	if job.Confidence != nil {
		values[4] = *job.Confidence
	}
	for _, fname := range constants.AllFields() {
		values = append(values, fields[string(fname)])
	}
	values = append(values, deref(job.ModelName), truncate(deref(job.ErrorMessage), 140), job.ID.String())

	cell, _ := excelize.CoordinatesToCellName(1, row)
	return f.SetSheetRow(SheetName, cell, &values)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
