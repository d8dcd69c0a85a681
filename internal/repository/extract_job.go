package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/entity"
)

// TextOutcome is what a finished text extraction records.
type TextOutcome struct {
	Text        string
	Confidence  float64
	Method      string
	NeedsReview bool
	ModelParams map[string]any
}

// FieldsOutcome is what a finished field extraction records.
type FieldsOutcome struct {
	Fields      map[string]string
	FieldErrors map[string]string
	ModelName   string
	NeedsReview bool
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status constants.JobStatus
	Kind   constants.JobKind
	Since  *time.Time
	Limit  int
}

type ExtractJobRepository interface {
	Start(ctx context.Context, kind constants.JobKind, format constants.DocumentKind, contentHash string) (*entity.ExtractJob, error)
	FinishText(ctx context.Context, jobID uuid.UUID, out TextOutcome) error
	FinishFields(ctx context.Context, jobID uuid.UUID, out FieldsOutcome) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.ExtractJob, error)
}

type sqlJobRepo struct {
	db      *sql.DB
	dialect dialect
	log     *slog.Logger
	now     func() time.Time
}

// NewSQLiteExtractJobRepository wraps an embedded ledger opened with OpenSQLite.
func NewSQLiteExtractJobRepository(db *sql.DB, log *slog.Logger) ExtractJobRepository {
	return newSQLJobRepo(db, dialectSQLite, log)
}

func newSQLJobRepo(db *sql.DB, d dialect, log *slog.Logger) *sqlJobRepo {
	if log == nil {
		log = slog.Default()
	}
	return &sqlJobRepo{db: db, dialect: d, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *sqlJobRepo) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlJobRepo) Start(ctx context.Context, kind constants.JobKind, format constants.DocumentKind, contentHash string) (*entity.ExtractJob, error) {
	v := common.NewValidator().
		Field("kind", string(kind), common.OneOf(string(constants.JobKindText), string(constants.JobKindFields))).
		Field("format", string(format), common.OneOf(constants.FileTypes...)).
		Field("content_hash", contentHash, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	job := &entity.ExtractJob{
		ID:          uuid.New(),
		Kind:        string(kind),
		Format:      string(format),
		ContentHash: contentHash,
		StartedAt:   r.now(),
		Status:      string(constants.JobStatusRunning),
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO extract_job (id, kind, format, content_hash, started_at, status, needs_review)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID.String(), job.Kind, job.Format, job.ContentHash, job.StartedAt, job.Status, false)
	if err != nil {
		r.log.Error("extract_job start failed", "kind", kind, "err", err)
		return nil, dbError("start extract job", err)
	}
	r.log.Debug("extract_job started", "job_id", job.ID, "kind", kind, "format", format)
	return job, nil
}

func (r *sqlJobRepo) FinishText(ctx context.Context, jobID uuid.UUID, out TextOutcome) error {
	params, err := marshalNullable(out.ModelParams)
	if err != nil {
		return err
	}
	err = r.finish(ctx, jobID, constants.JobStatusTextOK,
		`ocr_text = ?, confidence = ?, model_name = ?, model_params = ?, needs_review = ?`,
		out.Text, out.Confidence, out.Method, params, out.NeedsReview)
	if err != nil {
		r.log.Error("extract_job finish(TEXT_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (TEXT_OK)", "job_id", jobID, "method", out.Method, "needs_review", out.NeedsReview)
	return nil
}

func (r *sqlJobRepo) FinishFields(ctx context.Context, jobID uuid.UUID, out FieldsOutcome) error {
	fields, err := marshalNullable(out.Fields)
	if err != nil {
		return err
	}
	var fieldErrs any
	if len(out.FieldErrors) > 0 {
		if fieldErrs, err = marshalNullable(out.FieldErrors); err != nil {
			return err
		}
	}
	err = r.finish(ctx, jobID, constants.JobStatusFieldsOK,
		`extracted_json = ?, field_errors = ?, model_name = ?, needs_review = ?`,
		fields, fieldErrs, out.ModelName, out.NeedsReview)
	if err != nil {
		r.log.Error("extract_job finish(FIELDS_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (FIELDS_OK)", "job_id", jobID, "model", out.ModelName, "needs_review", out.NeedsReview)
	return nil
}

func (r *sqlJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	err := r.finish(ctx, jobID, constants.JobStatusFailed, `error_message = ?`, message)
	if err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *sqlJobRepo) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, set string, args ...any) error {
	q := `UPDATE extract_job SET ` + set + `, status = ?, finished_at = ? WHERE id = ?`
	args = append(args, string(status), r.now(), jobID.String())
	res, err := r.db.ExecContext(ctx, r.rebind(q), args...)
	if err != nil {
		return dbError("finish extract job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("extract job %s", jobID), common.ErrNotFound)
	}
	return nil
}

const jobColumns = `id, kind, format, content_hash, started_at, finished_at, status, error_message,
	confidence, needs_review, ocr_text, extracted_json, field_errors, model_name, model_params`

func (r *sqlJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+jobColumns+` FROM extract_job WHERE id = ?`), jobID.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("extract job %s", jobID), common.ErrNotFound)
	}
	if err != nil {
		return nil, dbError("get extract job", err)
	}
	return job, nil
}

func (r *sqlJobRepo) List(ctx context.Context, filter ListFilter) ([]*entity.ExtractJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	q := `SELECT ` + jobColumns + ` FROM extract_job`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, dbError("list extract jobs", err)
	}
	defer rows.Close()

	var jobs []*entity.ExtractJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, dbError("scan extract job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list extract jobs", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*entity.ExtractJob, error) {
	var (
		job                                 entity.ExtractJob
		id                                  string
		finishedAt                          sql.NullTime
		errMsg, ocrText, modelName          sql.NullString
		extracted, fieldErrors, modelParams sql.NullString
		confidence                          sql.NullFloat64
	)
	err := s.Scan(&id, &job.Kind, &job.Format, &job.ContentHash, &job.StartedAt, &finishedAt, &job.Status,
		&errMsg, &confidence, &job.NeedsReview, &ocrText, &extracted, &fieldErrors, &modelName, &modelParams)
	if err != nil {
		return nil, err
	}
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	job.ErrorMessage = nullableString(errMsg)
	job.OCRText = nullableString(ocrText)
	job.ModelName = nullableString(modelName)
	if confidence.Valid {
		c := confidence.Float64
		job.Confidence = &c
	}
	if extracted.Valid {
		job.ExtractedJSON = json.RawMessage(extracted.String)
	}
	if fieldErrors.Valid {
		job.FieldErrors = json.RawMessage(fieldErrors.String)
	}
	if modelParams.Valid {
		job.ModelParams = json.RawMessage(modelParams.String)
	}
	return &job, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// marshalNullable encodes v as a JSON string, or nil when v is empty.
func marshalNullable[M ~map[string]V, V any](v M) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return string(b), nil
}

func dbError(message string, err error) error {
	return common.NewAppError("DATABASE_ERROR", message, errors.Join(common.ErrDatabase, err))
}

// NoopExtractJobRepository discards writes when no ledger is configured.
type NoopExtractJobRepository struct{}

func (NoopExtractJobRepository) Start(_ context.Context, kind constants.JobKind, format constants.DocumentKind, contentHash string) (*entity.ExtractJob, error) {
	return &entity.ExtractJob{
		ID:          uuid.New(),
		Kind:        string(kind),
		Format:      string(format),
		ContentHash: contentHash,
		StartedAt:   time.Now().UTC(),
		Status:      string(constants.JobStatusRunning),
	}, nil
}

func (NoopExtractJobRepository) FinishText(context.Context, uuid.UUID, TextOutcome) error     { return nil }
func (NoopExtractJobRepository) FinishFields(context.Context, uuid.UUID, FieldsOutcome) error { return nil }
func (NoopExtractJobRepository) FinishFailure(context.Context, uuid.UUID, string) error       { return nil }

func (NoopExtractJobRepository) Get(_ context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("extract job %s", jobID), common.ErrNotFound)
}

func (NoopExtractJobRepository) List(context.Context, ListFilter) ([]*entity.ExtractJob, error) {
	return nil, nil
}
