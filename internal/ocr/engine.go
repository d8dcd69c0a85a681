package ocr

import (
	"context"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

// Line is one recognized text line with its detection box.
type Line struct {
	Text       string
	Confidence float64 // 0..1
	Box        image.Rectangle
}

// TextResult is the page transcript: lines joined by "\n" and their mean confidence.
type TextResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Lines      int     `json:"-"`
}

// Rounded returns a copy with confidence rounded to 4 decimals for responses.
func (r TextResult) Rounded() TextResult {
	r.Confidence = math.Round(r.Confidence*1e4) / 1e4
	return r
}

// Backend detects and recognizes text lines on a page, in its own detection order.
type Backend interface {
	Name() string
	DetectLines(ctx context.Context, page *document.Page) ([]Line, error)
}

// Reading order strategies.
const (
	OrderDetection = "detection"
	OrderGeometric = "geometric"
)

type Config struct {
	ReadingOrder string // "detection" (default) | "geometric"
}

// Engine turns backend lines into a TextResult. It holds no per-request state.
type Engine struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

func NewEngine(backend Backend, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadingOrder == "" {
		cfg.ReadingOrder = OrderDetection
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger}
}

// BackendName reports the recognition backend in use.
func (e *Engine) BackendName() string { return e.backend.Name() }

// Recognize runs the backend once. Zero lines yields ("", 0) without error.
// Backend failures are returned as recognition errors and are not retried.
func (e *Engine) Recognize(ctx context.Context, page *document.Page) (TextResult, error) {
	start := time.Now()
	log := common.LoggerFromContext(ctx, e.logger)

	lines, err := e.backend.DetectLines(ctx, page)
	if err != nil {
		log.Error("ocr.recognize.failed", "backend", e.backend.Name(), "error", err)
		if ctx.Err() != nil {
			return TextResult{}, ctx.Err()
		}
		return TextResult{}, common.RecognitionError("text recognition failed", err)
	}
	if e.cfg.ReadingOrder == OrderGeometric {
		lines = SortGeometric(lines)
	}

	res := Assemble(lines)
	log.Info("ocr.recognize.ok",
		"backend", e.backend.Name(),
		"lines", res.Lines,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Assemble joins line texts with "\n" and averages their confidences.
func Assemble(lines []Line) TextResult {
	if len(lines) == 0 {
		return TextResult{}
	}
	texts := make([]string, len(lines))
	var sum float64
	for i, ln := range lines {
		texts[i] = ln.Text
		sum += clamp01(ln.Confidence)
	}
	return TextResult{
		Text:       strings.Join(texts, "\n"),
		Confidence: sum / float64(len(lines)),
		Lines:      len(lines),
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
