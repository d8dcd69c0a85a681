package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/donut"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
)

// ModelProvider hands out the shared model handle, loading it on first use.
type ModelProvider interface {
	Get(ctx context.Context) (*donut.Handle, error)
}

type Config struct {
	FieldTimeout time.Duration // per-field generation bound; default 60s
}

// FieldExtractor asks the model one question per field, sequentially.
type FieldExtractor struct {
	models ModelProvider
	cfg    Config
	logger *slog.Logger
}

func NewFieldExtractor(models ModelProvider, cfg Config, logger *slog.Logger) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FieldTimeout <= 0 {
		cfg.FieldTimeout = 60 * time.Second
	}
	return &FieldExtractor{models: models, cfg: cfg, logger: logger}
}

// ExtractAllFields returns one outcome per field. Only a model load failure
// aborts the call; any other problem fails just the field it happened on.
func (x *FieldExtractor) ExtractAllFields(ctx context.Context, page *document.Page) (FieldsResult, error) {
	start := time.Now()
	log := common.LoggerFromContext(ctx, x.logger)

	h, err := x.models.Get(ctx)
	if err != nil {
		log.Error("extract.model_unavailable", "error", err)
		return FieldsResult{}, err
	}

	px, prepErr := h.Processor.Prepare(page.Image)
	if prepErr != nil {
		log.Error("extract.prepare_failed", "error", prepErr)
	}

	fields := constants.AllFields()
	res := FieldsResult{Outcomes: make([]Outcome, 0, len(fields))}
	for _, field := range fields {
		var o Outcome
		if prepErr != nil {
			o = Outcome{Field: field, Err: common.FieldGenerationError("page preparation failed", prepErr)}
		} else {
			o = x.extractField(ctx, h, px, field)
		}
		res.Outcomes = append(res.Outcomes, o)

		switch {
		case !o.OK():
			metrics.RecordFieldOutcome(string(field), "failed")
			log.Warn("extract.field.failed", "field", field, "error", o.Err)
		case o.Value == "":
			metrics.RecordFieldOutcome(string(field), "empty")
		default:
			metrics.RecordFieldOutcome(string(field), "ok")
		}
	}

	log.Info("extract.fields.done",
		"model", h.ModelID,
		"fields", len(res.Outcomes),
		"failed", len(res.Failures()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

type genResult struct {
	ids []int
	err error
}

func (x *FieldExtractor) extractField(ctx context.Context, h *donut.Handle, px donut.PixelInput, field constants.FieldName) (o Outcome) {
	o.Field = field
	defer func() {
		if r := recover(); r != nil {
			o.Value = ""
			o.Err = common.FieldGenerationError("field generation panicked", fmt.Errorf("%v", r))
		}
	}()

	question := donut.Question(field)
	seed, err := h.Processor.EncodeSeed(question)
	if err != nil {
		o.Err = common.FieldGenerationError("decoder seed", err)
		return o
	}

	fctx, cancel := context.WithTimeout(ctx, x.cfg.FieldTimeout)
	defer cancel()

	ch := make(chan genResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- genResult{err: fmt.Errorf("generate panicked: %v", r)}
			}
		}()
		ids, err := h.Model.Generate(fctx, h.GenerateParams(px, seed))
		ch <- genResult{ids: ids, err: err}
	}()

	var out genResult
	select {
	case out = <-ch:
	case <-fctx.Done():
		out.err = fctx.Err()
	}
	if out.err != nil {
		o.Err = common.FieldGenerationError(fmt.Sprintf("generation for %s failed", field), out.err)
		return o
	}

	o.Value = h.Processor.DecodeAnswer(out.ids)
	return o
}
