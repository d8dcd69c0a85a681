package donut

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// Tokenizer is the part of a HuggingFace tokenizer the processor uses.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	SpecialTokenID(token api.SpecialToken) (int, error)
}

// SpecialTokens holds the ids and surface strings of the control tokens.
type SpecialTokens struct {
	BOS, EOS, Pad, Unk int
	EOSText, PadText   string
}

// loadTokenizer reads tokenizer.json (and tokenizer_config.json when present) from dir.
func loadTokenizer(dir string) (Tokenizer, *api.Config, error) {
	var config *api.Config
	configPath := filepath.Join(dir, "tokenizer_config.json")
	if _, err := os.Stat(configPath); err == nil {
		content, err := normalizeTokenizerConfig(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("normalizing tokenizer config: %w", err)
		}
		config, err = api.ParseConfigContent(content)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing tokenizer config: %w", err)
		}
		config.ConfigFile = configPath
	}

	tok, err := hftokenizer.NewFromFile(config, filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading tokenizer.json: %w", err)
	}
	return tok, config, nil
}

// normalizeTokenizerConfig flattens AddedToken objects ({"content": "<s>", ...})
// into plain strings so the config parser accepts them.
func normalizeTokenizerConfig(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	for _, key := range []string{"bos_token", "eos_token", "unk_token", "sep_token", "pad_token", "cls_token", "mask_token"} {
		if obj, ok := raw[key].(map[string]any); ok {
			if s, ok := obj["content"].(string); ok {
				raw[key] = s
			}
		}
	}
	delete(raw, "added_tokens_decoder")
	return json.Marshal(raw)
}

// resolveSpecialTokens looks up control token ids, falling back to encoding
// the surface string when the tokenizer cannot name the token.
func resolveSpecialTokens(tok Tokenizer, config *api.Config) (SpecialTokens, error) {
	sp := SpecialTokens{EOSText: "</s>", PadText: "<pad>"}
	unkText, bosText := "<unk>", "<s>"
	if config != nil {
		if config.EosToken != "" {
			sp.EOSText = config.EosToken
		}
		if config.PadToken != "" {
			sp.PadText = config.PadToken
		}
		if config.UnkToken != "" {
			unkText = config.UnkToken
		}
		if config.BosToken != "" {
			bosText = config.BosToken
		}
	}

	lookup := func(kind api.SpecialToken, text string) (int, error) {
		if id, err := tok.SpecialTokenID(kind); err == nil {
			return id, nil
		}
		ids := tok.Encode(text)
		if len(ids) != 1 {
			return 0, fmt.Errorf("special token %q is not a single token", text)
		}
		return ids[0], nil
	}

	var err error
	if sp.EOS, err = lookup(api.TokEndOfSentence, sp.EOSText); err != nil {
		return sp, err
	}
	if sp.Pad, err = lookup(api.TokPad, sp.PadText); err != nil {
		return sp, err
	}
	if sp.Unk, err = lookup(api.TokUnknown, unkText); err != nil {
		return sp, err
	}
	if sp.BOS, err = lookup(api.TokBeginningOfSentence, bosText); err != nil {
		sp.BOS = -1
	}
	return sp, nil
}
