package donut

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultMaxLength is used when config.json does not state decoder positions.
const DefaultMaxLength = 128

// modelConfig is the subset of config.json the service needs.
type modelConfig struct {
	Decoder struct {
		MaxPositionEmbeddings int `json:"max_position_embeddings"`
	} `json:"decoder"`
}

// PreprocessorConfig mirrors preprocessor_config.json of a Donut checkpoint.
type PreprocessorConfig struct {
	Size            ImageSize `json:"size"`
	ImageMean       []float64 `json:"image_mean"`
	ImageStd        []float64 `json:"image_std"`
	DoAlignLongAxis bool      `json:"do_align_long_axis"`
	DoThumbnail     bool      `json:"do_thumbnail"`
	DoPad           bool      `json:"do_pad"`
}

// ImageSize accepts both {"height":h,"width":w} and the older [w, h] form.
type ImageSize struct {
	Height int
	Width  int
}

func (s *ImageSize) UnmarshalJSON(b []byte) error {
	var obj struct {
		Height int `json:"height"`
		Width  int `json:"width"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.Height > 0 && obj.Width > 0 {
		s.Height, s.Width = obj.Height, obj.Width
		return nil
	}
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("unsupported image size %s", string(b))
	}
	s.Width, s.Height = pair[0], pair[1]
	return nil
}

// DefaultPreprocessor matches donut-base-finetuned-docvqa.
func DefaultPreprocessor() PreprocessorConfig {
	return PreprocessorConfig{
		Size:            ImageSize{Height: 2560, Width: 1920},
		ImageMean:       []float64{0.5, 0.5, 0.5},
		ImageStd:        []float64{0.5, 0.5, 0.5},
		DoAlignLongAxis: false,
		DoThumbnail:     true,
		DoPad:           true,
	}
}

func readMaxLength(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var cfg modelConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Decoder.MaxPositionEmbeddings <= 0 {
		return DefaultMaxLength, nil
	}
	return cfg.Decoder.MaxPositionEmbeddings, nil
}

func readPreprocessor(path string) (PreprocessorConfig, error) {
	cfg := DefaultPreprocessor()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Size.Width <= 0 || cfg.Size.Height <= 0 {
		return cfg, fmt.Errorf("preprocessor size missing in %s", path)
	}
	return cfg, nil
}
