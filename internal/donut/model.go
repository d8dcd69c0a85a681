package donut

import (
	"context"
)

// GenerateRequest is one greedy generation pass over a prepared page.
type GenerateRequest struct {
	Image           PixelInput
	DecoderInputIDs []int
	MaxLength       int
	EOSTokenID      int
	PadTokenID      int
	BadWordsIDs     [][]int
	NumBeams        int
	DoSample        bool
}

// Model runs vision-encoder/text-decoder generation and returns the full
// output token sequence, seed included.
type Model interface {
	Generate(ctx context.Context, req GenerateRequest) ([]int, error)
}

// Handle is the loaded model bundle shared by every request once ready.
// It is never mutated after construction.
type Handle struct {
	ModelID   string
	Device    Device
	Processor *Processor
	Model     Model
	MaxLength int
}

// GenerateParams builds the greedy generation request for a seed: no sampling,
// a single beam, capped at the decoder's maximum positions, stopping at EOS and
// never emitting the unknown token.
func (h *Handle) GenerateParams(img PixelInput, seed []int) GenerateRequest {
	sp := h.Processor.Special
	return GenerateRequest{
		Image:           img,
		DecoderInputIDs: seed,
		MaxLength:       h.MaxLength,
		EOSTokenID:      sp.EOS,
		PadTokenID:      sp.Pad,
		BadWordsIDs:     [][]int{{sp.Unk}},
		NumBeams:        1,
		DoSample:        false,
	}
}
