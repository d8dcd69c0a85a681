//go:build gosseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

// GosseractBackend runs libtesseract in-process. Each call owns its client.
type GosseractBackend struct {
	cfg    TesseractConfig
	logger *slog.Logger
}

func NewGosseractBackend(cfg TesseractConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &GosseractBackend{cfg: cfg, logger: logger}, nil
}

func (g *GosseractBackend) Name() string { return "gosseract" }

func (g *GosseractBackend) DetectLines(ctx context.Context, page *document.Page) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if g.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return nil, err
		}
	}
	if err := client.SetLanguage(g.cfg.Lang); err != nil {
		return nil, err
	}
	if g.cfg.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return nil, err
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("gosseract lines: %w", err)
	}
	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := NormalizeLine(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{Text: text, Confidence: clamp01(b.Confidence / 100.0), Box: b.Box})
	}
	return lines, nil
}
