package donut

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

// PixelInput is a page resized and padded to the encoder's input canvas.
// Normalization with Mean/Std is applied by the model runtime.
type PixelInput struct {
	PNG    []byte
	Width  int
	Height int
	Mean   []float64
	Std    []float64
}

// Processor pairs the tokenizer with image preprocessing. Safe for concurrent use.
type Processor struct {
	tok     Tokenizer
	Special SpecialTokens
	Pre     PreprocessorConfig
}

func NewProcessor(tok Tokenizer, special SpecialTokens, pre PreprocessorConfig) *Processor {
	return &Processor{tok: tok, Special: special, Pre: pre}
}

// EncodeSeed tokenizes the decoder seed for question without special tokens.
func (p *Processor) EncodeSeed(question string) ([]int, error) {
	ids := p.tok.Encode(DecoderSeed(question))
	if len(ids) > 0 && p.Special.BOS >= 0 && ids[0] == p.Special.BOS {
		ids = ids[1:]
	}
	if n := len(ids); n > 0 && ids[n-1] == p.Special.EOS {
		ids = ids[:n-1]
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty decoder seed for %q", question)
	}
	return ids, nil
}

// DecodeAnswer decodes a generated sequence into the bare answer string.
func (p *Processor) DecodeAnswer(ids []int) string {
	return CleanAnswer(p.tok.Decode(ids), p.Special.EOSText, p.Special.PadText)
}

// Prepare fits img into the encoder canvas: optional long-axis alignment,
// aspect-preserving downscale, then centered white padding.
func (p *Processor) Prepare(img image.Image) (PixelInput, error) {
	cw, ch := p.Pre.Size.Width, p.Pre.Size.Height
	src := toRGBA(img)

	if p.Pre.DoAlignLongAxis {
		b := src.Bounds()
		if (cw > ch) != (b.Dx() > b.Dy()) && b.Dx() != b.Dy() {
			src = rotate90(src)
		}
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), cw, ch, p.Pre.DoThumbnail)
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), src, b, draw.Src, nil)

	out := image.Image(resized)
	if p.Pre.DoPad && (w != cw || h != ch) {
		canvas := image.NewRGBA(image.Rect(0, 0, max(cw, w), max(ch, h)))
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		off := image.Pt((canvas.Bounds().Dx()-w)/2, (canvas.Bounds().Dy()-h)/2)
		draw.Draw(canvas, resized.Bounds().Add(off), resized, image.Point{}, draw.Src)
		out = canvas
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return PixelInput{}, fmt.Errorf("encode pixel input: %w", err)
	}
	ob := out.Bounds()
	return PixelInput{
		PNG:    buf.Bytes(),
		Width:  ob.Dx(),
		Height: ob.Dy(),
		Mean:   p.Pre.ImageMean,
		Std:    p.Pre.ImageStd,
	}, nil
}

// fitWithin scales (w,h) so the shorter side matches the canvas' shorter side,
// then, when thumbnail is set, shrinks further until both sides fit.
func fitWithin(w, h, cw, ch int, thumbnail bool) (int, int) {
	short := min(cw, ch)
	fw, fh := float64(w), float64(h)
	scale := float64(short) / min(fw, fh)
	fw, fh = fw*scale, fh*scale
	if thumbnail {
		if s := min(float64(cw)/fw, float64(ch)/fh); s < 1 {
			fw, fh = fw*s, fh*s
		}
	}
	return max(1, int(fw+0.5)), max(1, int(fh+0.5))
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// rotate90 rotates clockwise by 90 degrees.
func rotate90(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}
	return out
}
