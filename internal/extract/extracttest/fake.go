// Package extracttest provides an in-memory model handle for tests of code
// that drives field extraction.
package extracttest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/go-huggingface/tokenizers/api"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/donut"
)

// Tokenizer splits text on spaces and tag boundaries and assigns ids in
// first-seen order. Ids 0..3 are <s>, <pad>, </s>, <unk>.
type Tokenizer struct {
	mu      sync.Mutex
	vocab   map[string]int
	inverse []string
}

func NewTokenizer() *Tokenizer {
	t := &Tokenizer{vocab: map[string]int{}}
	for _, s := range []string{"<s>", "<pad>", "</s>", "<unk>"} {
		t.id(s)
	}
	return t
}

func (t *Tokenizer) id(s string) int {
	if id, ok := t.vocab[s]; ok {
		return id
	}
	t.vocab[s] = len(t.inverse)
	t.inverse = append(t.inverse, s)
	return t.vocab[s]
}

func (t *Tokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []int
	for _, piece := range strings.Fields(strings.NewReplacer("<", " <", ">", "> ").Replace(text)) {
		ids = append(ids, t.id(piece))
	}
	return ids
}

func (t *Tokenizer) Decode(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(t.inverse) {
			parts = append(parts, t.inverse[id])
		}
	}
	return strings.Join(parts, " ")
}

func (t *Tokenizer) SpecialTokenID(tok api.SpecialToken) (int, error) {
	switch tok {
	case api.TokBeginningOfSentence:
		return 0, nil
	case api.TokPad:
		return 1, nil
	case api.TokEndOfSentence:
		return 2, nil
	case api.TokUnknown:
		return 3, nil
	}
	return 0, errors.New("unknown special token")
}

// Model answers each field's question from a fixed table.
type Model struct {
	tok      *Tokenizer
	Answers  map[constants.FieldName]string
	Failures map[constants.FieldName]error
	// Block makes Generate wait for ctx to end on these fields.
	Block map[constants.FieldName]bool
	// Panic makes Generate panic on these fields.
	Panic map[constants.FieldName]bool
	calls atomic.Int64
}

// Calls counts Generate invocations.
func (m *Model) Calls() int64 { return m.calls.Load() }

func (m *Model) Generate(ctx context.Context, req donut.GenerateRequest) ([]int, error) {
	m.calls.Add(1)
	seed := m.tok.Decode(req.DecoderInputIDs)
	field, ok := m.fieldFor(seed)
	if !ok {
		return append(append([]int{}, req.DecoderInputIDs...), req.EOSTokenID), nil
	}
	if m.Panic[field] {
		panic("fake model exploded on " + string(field))
	}
	if m.Block[field] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := m.Failures[field]; err != nil {
		return nil, err
	}
	out := append([]int{}, req.DecoderInputIDs...)
	out = append(out, m.tok.Encode(m.Answers[field])...)
	out = append(out, m.tok.Encode(donut.AnswerEnd)...)
	return append(out, req.EOSTokenID), nil
}

func (m *Model) fieldFor(seed string) (constants.FieldName, bool) {
	for _, f := range constants.AllFields() {
		if strings.Contains(strings.Join(strings.Fields(seed), " "), strings.Join(strings.Fields(donut.Question(f)), " ")) {
			return f, true
		}
	}
	return "", false
}

// NewHandle builds a ready handle around m with a small encoder canvas.
func NewHandle(m *Model) *donut.Handle {
	tok := NewTokenizer()
	m.tok = tok
	pre := donut.DefaultPreprocessor()
	pre.Size = donut.ImageSize{Width: 32, Height: 48}
	special := donut.SpecialTokens{BOS: 0, Pad: 1, EOS: 2, Unk: 3, EOSText: "</s>", PadText: "<pad>"}
	return &donut.Handle{
		ModelID:   "test/donut",
		Device:    donut.Device{Type: "cpu"},
		Processor: donut.NewProcessor(tok, special, pre),
		Model:     m,
		MaxLength: donut.DefaultMaxLength,
	}
}

// Provider hands out a fixed handle or error.
type Provider struct {
	Handle *donut.Handle
	Err    error
	gets   atomic.Int64
}

func (p *Provider) Get(context.Context) (*donut.Handle, error) {
	p.gets.Add(1)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Handle, nil
}

// Gets counts Get invocations.
func (p *Provider) Gets() int64 { return p.gets.Load() }
