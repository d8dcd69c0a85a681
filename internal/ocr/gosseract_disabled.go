//go:build !gosseract

package ocr

import (
	"errors"
	"log/slog"
)

func NewGosseractBackend(TesseractConfig, *slog.Logger) (Backend, error) {
	return nil, errors.New("gosseract backend not compiled in: rebuild with -tags gosseract")
}
