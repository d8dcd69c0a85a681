package document

import (
	"context"
	"log/slog"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

// RenderDPI is the fixed PDF render resolution.
const RenderDPI = 300

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
}

// Rasterizer turns an uploaded document into exactly one page image.
// It keeps no state between calls.
type Rasterizer struct {
	cfg        Config
	runner     Runner
	countPages pageCounter
	logger     *slog.Logger
}

func NewRasterizer(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	return &Rasterizer{cfg: cfg, runner: runner, countPages: api.PageCount, logger: logger}
}

// Rasterize decodes doc into a single page. For PDFs only page 1 is rendered;
// the rest of the document is ignored. Either a full page or an error is returned.
func (r *Rasterizer) Rasterize(ctx context.Context, doc RawDocument) (*Page, error) {
	start := time.Now()
	if len(doc.Bytes) == 0 {
		return nil, common.DecodeError("empty document", nil)
	}
	log := common.LoggerFromContext(ctx, r.logger)

	switch doc.Kind {
	case constants.PDF:
		single, pages, err := r.firstPage(doc.Bytes)
		if err != nil {
			log.Warn("rasterize.pdf.invalid", "bytes", len(doc.Bytes), "error", err)
			return nil, err
		}
		png, err := r.renderPDF(ctx, single, RenderDPI)
		if err != nil {
			log.Warn("rasterize.pdf.render_failed", "pages", pages, "error", err)
			return nil, err
		}
		img, format, err := decodeRaw(png)
		if err != nil {
			return nil, common.ConversionError("rendered PDF page is unreadable", err)
		}
		log.Info("rasterize.pdf.ok",
			"pages", pages,
			"dpi", RenderDPI,
			"width", img.Bounds().Dx(),
			"height", img.Bounds().Dy(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return &Page{Image: img, SourceKind: constants.PDF, DPI: RenderDPI, Format: format}, nil
	default:
		img, format, err := decodeImage(doc.Bytes)
		if err != nil {
			log.Warn("rasterize.image.invalid", "bytes", len(doc.Bytes), "error", err)
			return nil, err
		}
		log.Debug("rasterize.image.ok", "format", format, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		return &Page{Image: img, SourceKind: constants.IMAGE, Format: format}, nil
	}
}
