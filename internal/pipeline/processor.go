package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/async"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/entity"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/ocr"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/repository"
)

type PageRasterizer interface {
	Rasterize(ctx context.Context, doc document.RawDocument) (*document.Page, error)
}

type TextRecognizer interface {
	Recognize(ctx context.Context, page *document.Page) (ocr.TextResult, error)
	BackendName() string
}

type FieldExtractor interface {
	ExtractAllFields(ctx context.Context, page *document.Page) (extract.FieldsResult, error)
}

// Config holds thresholds for ledger review flags and cache scoping.
type Config struct {
	LowConfidence float64 // default 0.60
	ModelName     string
}

// Processor runs one upload through rasterization and either text
// recognition or field extraction, on the shared inference pool, and records
// the outcome in the job ledger.
type Processor struct {
	logger     *slog.Logger
	cfg        Config
	rasterizer PageRasterizer
	text       TextRecognizer
	fields     FieldExtractor
	pool       *async.Pool
	jobs       repository.ExtractJobRepository
	textCache  *Cache[ocr.TextResult]
	fieldCache *Cache[extract.FieldsResult]
}

type Option func(*Processor)

// WithJobs records every request in the ledger.
func WithJobs(jobs repository.ExtractJobRepository) Option {
	return func(p *Processor) { p.jobs = jobs }
}

// WithCache enables the content-hash result cache.
func WithCache(ttl time.Duration) Option {
	return func(p *Processor) {
		p.textCache = NewCache[ocr.TextResult]("text", ttl, nil, p.logger)
		p.fieldCache = NewCache("fields", ttl, func(r extract.FieldsResult) bool {
			return len(r.Failures()) == 0
		}, p.logger)
	}
}

func NewProcessor(logger *slog.Logger, cfg Config, rasterizer PageRasterizer, text TextRecognizer, fields FieldExtractor, pool *async.Pool, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = 0.60
	}
	p := &Processor{
		logger:     logger,
		cfg:        cfg,
		rasterizer: rasterizer,
		text:       text,
		fields:     fields,
		pool:       pool,
		jobs:       repository.NoopExtractJobRepository{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractText rasterizes doc and recognizes its text.
func (p *Processor) ExtractText(ctx context.Context, doc document.RawDocument) (ocr.TextResult, error) {
	log := common.LoggerFromContext(ctx, p.logger)
	hash := ContentHash(doc.Bytes)
	job := p.startJob(ctx, constants.JobKindText, doc.Kind, hash)

	key := cacheKey("text", hash, string(doc.Kind), p.text.BackendName())
	res, shared, err := p.textCache.Do(ctx, key, func(ctx context.Context) (ocr.TextResult, error) {
		return async.Submit(ctx, p.pool, func(ctx context.Context) (ocr.TextResult, error) {
			page, err := p.rasterizer.Rasterize(ctx, doc)
			if err != nil {
				return ocr.TextResult{}, err
			}
			return p.text.Recognize(ctx, page)
		})
	})
	if err != nil {
		log.Error("processor.text.failed", "kind", doc.Kind, "err", err)
		p.failJob(ctx, job, err)
		return ocr.TextResult{}, err
	}
	res = res.Rounded()
	metrics.RecordOCRConfidence(res.Confidence)

	needsReview := res.Text == "" || res.Confidence < p.cfg.LowConfidence
	if needsReview {
		log.Warn("processor.text.low_confidence", "confidence", res.Confidence, "chars", len(res.Text))
	}
	if job != nil {
		_ = p.jobs.FinishText(context.WithoutCancel(ctx), job.ID, repository.TextOutcome{
			Text:        res.Text,
			Confidence:  res.Confidence,
			Method:      p.text.BackendName(),
			NeedsReview: needsReview,
			ModelParams: map[string]any{"lines": res.Lines, "cached": shared},
		})
	}
	log.Info("processor.text.ok", "kind", doc.Kind, "confidence", res.Confidence, "cached", shared)
	return res, nil
}

// ExtractFields rasterizes doc and asks the field model for every field.
func (p *Processor) ExtractFields(ctx context.Context, doc document.RawDocument) (extract.FieldsResult, error) {
	log := common.LoggerFromContext(ctx, p.logger)
	hash := ContentHash(doc.Bytes)
	job := p.startJob(ctx, constants.JobKindFields, doc.Kind, hash)

	key := cacheKey("fields", hash, string(doc.Kind), p.cfg.ModelName)
	res, shared, err := p.fieldCache.Do(ctx, key, func(ctx context.Context) (extract.FieldsResult, error) {
		return async.Submit(ctx, p.pool, func(ctx context.Context) (extract.FieldsResult, error) {
			page, err := p.rasterizer.Rasterize(ctx, doc)
			if err != nil {
				return extract.FieldsResult{}, err
			}
			return p.fields.ExtractAllFields(ctx, page)
		})
	})
	if err != nil {
		log.Error("processor.fields.failed", "kind", doc.Kind, "err", err)
		p.failJob(ctx, job, err)
		return extract.FieldsResult{}, err
	}
	if _, err := res.Validate(); err != nil {
		log.Error("processor.fields.schema", "err", err)
	}

	empty := res.Empty()
	if job != nil {
		_ = p.jobs.FinishFields(context.WithoutCancel(ctx), job.ID, repository.FieldsOutcome{
			Fields:      res.Map(),
			FieldErrors: res.Failures(),
			ModelName:   p.cfg.ModelName,
			NeedsReview: len(empty) > 0,
		})
	}
	log.Info("processor.fields.ok", "kind", doc.Kind, "empty", empty, "cached", shared)
	return res, nil
}

// Close stops cache expiry loops.
func (p *Processor) Close() {
	p.textCache.Stop()
	p.fieldCache.Stop()
}

// startJob opens a ledger row. Ledger failures never fail the request.
func (p *Processor) startJob(ctx context.Context, kind constants.JobKind, format constants.DocumentKind, hash string) *entity.ExtractJob {
	job, err := p.jobs.Start(context.WithoutCancel(ctx), kind, format, hash)
	if err != nil {
		common.LoggerFromContext(ctx, p.logger).Warn("processor.ledger.start_failed", "kind", kind, "err", err)
		return nil
	}
	return job
}

func (p *Processor) failJob(ctx context.Context, job *entity.ExtractJob, cause error) {
	if job == nil {
		return
	}
	_ = p.jobs.FinishFailure(context.WithoutCancel(ctx), job.ID, cause.Error())
}
