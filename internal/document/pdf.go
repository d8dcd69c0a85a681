package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// pageCounter reports the page count of a PDF.
type pageCounter func(rs io.ReadSeeker, conf *model.Configuration) (int, error)

// firstPage validates the PDF and returns a single-page document holding only page 1.
func (r *Rasterizer) firstPage(data []byte) ([]byte, int, error) {
	conf := pdfConfig()
	pages, err := r.countPages(bytes.NewReader(data), conf)
	if err != nil {
		return nil, 0, common.DecodeError("invalid PDF data", err)
	}
	if pages < 1 {
		return nil, 0, common.ConversionError("PDF has no pages", nil)
	}
	if pages == 1 {
		return data, pages, nil
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{"1"}, conf); err != nil {
		return nil, pages, common.ConversionError("could not isolate first PDF page", err)
	}
	return out.Bytes(), pages, nil
}

// renderPDF renders page 1 at dpi through pdftoppm and returns the PNG bytes.
func (r *Rasterizer) renderPDF(ctx context.Context, data []byte, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "wv-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("rasterize.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -f 1 -l 1 -singlefile -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, r.logger,
		"-r", strconv.Itoa(dpi), "-f", "1", "-l", "1", "-singlefile", "-png", in, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, common.ConversionError("PDF page could not be rendered", fmt.Errorf("%w: %s", err, Truncate(string(errb), 512)))
	}

	png, err := os.ReadFile(prefix + ".png")
	if err != nil || len(png) == 0 {
		return nil, common.ConversionError("PDF renderer produced no image", err)
	}
	return png, nil
}
