package ocr

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

type TesseractConfig struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// TesseractBackend shells out to the tesseract CLI in TSV mode.
type TesseractBackend struct {
	cfg    TesseractConfig
	runner document.Runner
	logger *slog.Logger
}

func NewTesseractBackend(cfg TesseractConfig, runner document.Runner, logger *slog.Logger) *TesseractBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = document.ExecRunner{}
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &TesseractBackend{cfg: cfg, runner: runner, logger: logger}
}

func (b *TesseractBackend) Name() string { return "tesseract" }

func (b *TesseractBackend) DetectLines(ctx context.Context, page *document.Page) ([]Line, error) {
	tmpDir, err := os.MkdirTemp("", "wv-ocr-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			b.logger.Warn("ocr.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "page.png")
	f, err := os.Create(in)
	if err != nil {
		return nil, err
	}
	if err := png.Encode(f, page.Image); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode page: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := []string{in, "stdout", "-l", b.cfg.Lang}
	if page.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(page.DPI))
	}
	if b.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(b.cfg.PSM))
	}
	if b.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(b.cfg.OEM))
	}
	if b.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", b.cfg.TessdataDir)
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := b.runner.Run(ctx, b.cfg.Tesseract, b.logger, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract TSV: %w: %s", err, document.Truncate(string(errb), 512))
	}
	return ParseTSV(string(out)), nil
}
