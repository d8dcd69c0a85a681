package donut

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecar_LoadAndGenerate(t *testing.T) {
	var gotGen generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models/load":
			var req loadRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "naver-clova-ix/donut-base-finetuned-docvqa", req.ModelID)
			_ = json.NewEncoder(w).Encode(loadResponse{Status: "ready", Device: "cpu"})
		case "/v1/models/generate":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotGen))
			_ = json.NewEncoder(w).Encode(generateResponse{Sequences: [][]int{{5, 6, 7, 2}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewSidecarClient(SidecarConfig{BaseURL: srv.URL + "/"}, nil)
	dev, err := c.Load(context.Background(), "naver-clova-ix/donut-base-finetuned-docvqa", Device{Type: "cuda"})
	require.NoError(t, err)
	assert.Equal(t, "cpu", dev.Type, "runtime placement wins")

	h := &Handle{
		Processor: NewProcessor(newFakeTokenizer(false), testSpecial(), DefaultPreprocessor()),
		Model:     c.BoundModel("naver-clova-ix/donut-base-finetuned-docvqa"),
		MaxLength: 128,
	}
	seq, err := h.Model.Generate(context.Background(), h.GenerateParams(PixelInput{PNG: []byte{1, 2}}, []int{5, 6}))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7, 2}, seq)

	assert.Equal(t, 1, gotGen.NumBeams)
	assert.False(t, gotGen.DoSample)
	assert.Equal(t, 128, gotGen.MaxLength)
	assert.Equal(t, 2, gotGen.EOSTokenID)
	assert.Equal(t, 1, gotGen.PadTokenID)
	assert.Equal(t, [][]int{{3}}, gotGen.BadWordsIDs)
	assert.Equal(t, []int{5, 6}, gotGen.DecoderInputIDs)
	assert.Equal(t, []byte{1, 2}, gotGen.ImagePNG)
}

func TestSidecar_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models/load" {
			_ = json.NewEncoder(w).Encode(loadResponse{Status: "error", Error: "CUDA out of memory"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewSidecarClient(SidecarConfig{BaseURL: srv.URL}, nil)
	_, err := c.Load(context.Background(), "m", Device{Type: "cuda"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")

	_, err = c.BoundModel("m").Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestArtifacts_ParseConfigs(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	prePath := filepath.Join(dir, "preprocessor_config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"decoder":{"max_position_embeddings":768}}`), 0o600))
	require.NoError(t, os.WriteFile(prePath, []byte(`{"size":[1920,2560],"image_mean":[0.5,0.5,0.5],"image_std":[0.5,0.5,0.5],"do_align_long_axis":false,"do_thumbnail":true,"do_pad":true}`), 0o600))

	n, err := readMaxLength(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 768, n)

	pre, err := readPreprocessor(prePath)
	require.NoError(t, err)
	assert.Equal(t, ImageSize{Width: 1920, Height: 2560}, pre.Size)

	require.NoError(t, os.WriteFile(prePath, []byte(`{"size":{"height":2560,"width":1920}}`), 0o600))
	pre, err = readPreprocessor(prePath)
	require.NoError(t, err)
	assert.Equal(t, ImageSize{Width: 1920, Height: 2560}, pre.Size)
}

func TestNormalizeTokenizerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"eos_token":{"__type":"AddedToken","content":"</s>"},"pad_token":"<pad>","added_tokens_decoder":{"0":{}}}`), 0o600))

	out, err := normalizeTokenizerConfig(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Equal(t, "</s>", raw["eos_token"])
	assert.NotContains(t, raw, "added_tokens_decoder")
}

type countingRuntime struct{ loads int }

func (r *countingRuntime) Load(context.Context, string, Device) (Device, error) {
	r.loads++
	return Device{Type: "cpu"}, nil
}

func (r *countingRuntime) BoundModel(string) Model { return nil }

func TestArtifactLoader_MissingArtifact(t *testing.T) {
	rt := &countingRuntime{}
	l := NewArtifactLoader(LoaderConfig{ModelID: "m"}, DirFetcher{Dir: t.TempDir()}, rt, nil)

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Zero(t, rt.loads)
}
