package donut

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/go-huggingface/hub"
)

// Loader constructs a ready Handle. It is called at most once per successful load.
type Loader interface {
	Load(ctx context.Context) (*Handle, error)
}

// ArtifactFetcher resolves a repository file name to a local path.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// HubFetcher downloads checkpoint files from the HuggingFace hub into its cache.
type HubFetcher struct {
	RepoID   string
	Token    string
	CacheDir string
}

func (f HubFetcher) Fetch(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo := hub.New(f.RepoID)
	if f.Token != "" {
		repo = repo.WithAuth(f.Token)
	}
	if f.CacheDir != "" {
		repo = repo.WithCacheDir(f.CacheDir)
	}
	path, err := repo.DownloadFile(name)
	if err != nil {
		return "", fmt.Errorf("download %s/%s: %w", f.RepoID, name, err)
	}
	return path, nil
}

// DirFetcher reads checkpoint files from a local directory.
type DirFetcher struct{ Dir string }

func (f DirFetcher) Fetch(_ context.Context, name string) (string, error) {
	path := filepath.Join(f.Dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// ModelRuntime places weights on a device and exposes generation.
type ModelRuntime interface {
	Load(ctx context.Context, modelID string, device Device) (Device, error)
	BoundModel(modelID string) Model
}

type LoaderConfig struct {
	ModelID    string
	DeviceMode string // "auto" | "cpu" | "cuda"
}

// ArtifactLoader fetches tokenizer and preprocessing artifacts, detects the
// device and asks the runtime to place the model there.
type ArtifactLoader struct {
	cfg     LoaderConfig
	fetcher ArtifactFetcher
	runtime ModelRuntime
	detect  func() Device
	logger  *slog.Logger
}

func NewArtifactLoader(cfg LoaderConfig, fetcher ArtifactFetcher, runtime ModelRuntime, logger *slog.Logger) *ArtifactLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactLoader{cfg: cfg, fetcher: fetcher, runtime: runtime, detect: DetectDevice, logger: logger}
}

var requiredArtifacts = []string{"config.json", "preprocessor_config.json", "tokenizer.json"}

func (l *ArtifactLoader) Load(ctx context.Context) (*Handle, error) {
	start := time.Now()

	paths := make(map[string]string, len(requiredArtifacts)+1)
	for _, name := range requiredArtifacts {
		p, err := l.fetcher.Fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		paths[name] = p
	}
	// optional; special token names fall back to defaults without it
	if p, err := l.fetcher.Fetch(ctx, "tokenizer_config.json"); err == nil {
		paths["tokenizer_config.json"] = p
	}

	maxLen, err := readMaxLength(paths["config.json"])
	if err != nil {
		return nil, err
	}
	pre, err := readPreprocessor(paths["preprocessor_config.json"])
	if err != nil {
		return nil, err
	}

	tokDir, err := stageTokenizer(paths)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tokDir) }()
	tok, tokCfg, err := loadTokenizer(tokDir)
	if err != nil {
		return nil, err
	}
	special, err := resolveSpecialTokens(tok, tokCfg)
	if err != nil {
		return nil, fmt.Errorf("special tokens: %w", err)
	}

	device := ResolveDevice(l.cfg.DeviceMode, l.detect)
	placed, err := l.runtime.Load(ctx, l.cfg.ModelID, device)
	if err != nil {
		return nil, err
	}

	l.logger.Info("donut.load.artifacts_ok",
		"model", l.cfg.ModelID,
		"device", placed.String(),
		"max_length", maxLen,
		"canvas", fmt.Sprintf("%dx%d", pre.Size.Width, pre.Size.Height),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Handle{
		ModelID:   l.cfg.ModelID,
		Device:    placed,
		Processor: NewProcessor(tok, special, pre),
		Model:     l.runtime.BoundModel(l.cfg.ModelID),
		MaxLength: maxLen,
	}, nil
}

// stageTokenizer copies the tokenizer files side by side into a temp dir.
func stageTokenizer(paths map[string]string) (string, error) {
	dir, err := os.MkdirTemp("", "wv-tok-*")
	if err != nil {
		return "", err
	}
	for _, name := range []string{"tokenizer.json", "tokenizer_config.json"} {
		src, ok := paths[name]
		if !ok {
			continue
		}
		b, err := os.ReadFile(src)
		if err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o600); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}
