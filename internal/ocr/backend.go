package ocr

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

// NewBackend selects a recognition backend by name.
func NewBackend(name string, cfg TesseractConfig, runner document.Runner, logger *slog.Logger) (Backend, error) {
	switch name {
	case "", "tesseract":
		return NewTesseractBackend(cfg, runner, logger), nil
	case "gosseract":
		return NewGosseractBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ocr backend %q", name)
	}
}
