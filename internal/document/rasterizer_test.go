package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

// minimalPDF builds a valid PDF with n empty letter-size pages.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakePdftoppm writes a PNG at "<prefix>.png" and records what it was asked to render.
type fakePdftoppm struct {
	png       []byte
	err       error
	skipWrite bool

	calls     int
	args      []string
	inputPage int
}

func (f *fakePdftoppm) Run(_ context.Context, _ string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.args = args
	if f.err != nil {
		return nil, []byte("Syntax Error"), f.err
	}
	in, prefix := args[len(args)-2], args[len(args)-1]
	if data, err := os.ReadFile(in); err == nil {
		f.inputPage, _ = api.PageCount(bytes.NewReader(data), pdfConfig())
	}
	if !f.skipWrite {
		if err := os.WriteFile(prefix+".png", f.png, 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestRasterize_ImagePassThrough(t *testing.T) {
	r := NewRasterizer(Config{}, &fakePdftoppm{}, nil)

	page, err := r.Rasterize(context.Background(), RawDocument{Bytes: pngBytes(t, 40, 20), Kind: constants.IMAGE})
	require.NoError(t, err)
	assert.Equal(t, 40, page.Width())
	assert.Equal(t, 20, page.Height())
	assert.Equal(t, constants.IMAGE, page.SourceKind)
	assert.Equal(t, "png", page.Format)
	assert.Zero(t, page.DPI)
}

func TestRasterize_GarbageImageIsDecodeError(t *testing.T) {
	r := NewRasterizer(Config{}, &fakePdftoppm{}, nil)

	page, err := r.Rasterize(context.Background(), RawDocument{Bytes: []byte("definitely not an image"), Kind: constants.IMAGE})
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.True(t, common.IsClientError(err))
}

func TestRasterize_EmptyDocument(t *testing.T) {
	r := NewRasterizer(Config{}, &fakePdftoppm{}, nil)
	_, err := r.Rasterize(context.Background(), RawDocument{Kind: constants.PDF})
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestRasterize_InvalidPDFIsDecodeError(t *testing.T) {
	runner := &fakePdftoppm{}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Rasterize(context.Background(), RawDocument{Bytes: []byte("%PDF-1.4 garbage"), Kind: constants.PDF})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Zero(t, runner.calls, "renderer must not run for undecodable PDFs")
}

func TestRasterize_PDFRendersFirstPageOnly(t *testing.T) {
	runner := &fakePdftoppm{png: pngBytes(t, 2550, 3300)}
	r := NewRasterizer(Config{Pdftoppm: "pdftoppm"}, runner, nil)

	page, err := r.Rasterize(context.Background(), RawDocument{Bytes: minimalPDF(2), Kind: constants.PDF})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, runner.inputPage, "only page 1 is handed to the renderer")
	assert.Equal(t, []string{"-r", "300", "-f", "1", "-l", "1", "-singlefile", "-png"}, runner.args[:8])
	assert.Equal(t, constants.PDF, page.SourceKind)
	assert.Equal(t, 300, page.DPI)
	assert.Equal(t, 2550, page.Width())
}

func TestRasterize_RendererFailureIsConversionError(t *testing.T) {
	runner := &fakePdftoppm{err: errors.New("exit status 1")}
	r := NewRasterizer(Config{}, runner, nil)

	page, err := r.Rasterize(context.Background(), RawDocument{Bytes: minimalPDF(1), Kind: constants.PDF})
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, common.ErrConversion)
}

func TestRasterize_NoRenderedOutputIsConversionError(t *testing.T) {
	runner := &fakePdftoppm{skipWrite: true}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Rasterize(context.Background(), RawDocument{Bytes: minimalPDF(1), Kind: constants.PDF})
	assert.ErrorIs(t, err, common.ErrConversion)
}

func TestRasterize_UnreadableRenderIsConversionError(t *testing.T) {
	runner := &fakePdftoppm{png: []byte("not png")}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Rasterize(context.Background(), RawDocument{Bytes: minimalPDF(1), Kind: constants.PDF})
	assert.ErrorIs(t, err, common.ErrConversion)
	assert.NotErrorIs(t, err, common.ErrDecode)
}

func TestRasterize_ZeroPagePDFIsConversionError(t *testing.T) {
	runner := &fakePdftoppm{png: pngBytes(t, 10, 10)}
	r := NewRasterizer(Config{}, runner, nil)
	r.countPages = func(io.ReadSeeker, *model.Configuration) (int, error) { return 0, nil }

	page, err := r.Rasterize(context.Background(), RawDocument{Bytes: minimalPDF(1), Kind: constants.PDF})
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, common.ErrConversion)
	assert.True(t, common.IsClientError(err))
	assert.Zero(t, runner.calls, "nothing to render")
}
