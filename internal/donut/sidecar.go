package donut

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SidecarConfig points at the inference runtime that hosts the Donut weights.
type SidecarConfig struct {
	BaseURL string
	Timeout time.Duration // per HTTP call; default 2m
}

// SidecarClient drives a model runtime over HTTP:
//
//	POST /v1/models/load     {"model_id","device"}           -> {"status","device"}
//	POST /v1/models/generate {"model_id","image_png",...}    -> {"sequences":[[...]]}
type SidecarClient struct {
	cfg    SidecarConfig
	http   *http.Client
	logger *slog.Logger
}

func NewSidecarClient(cfg SidecarConfig, logger *slog.Logger) *SidecarClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SidecarClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type loadRequest struct {
	ModelID string `json:"model_id"`
	Device  string `json:"device"`
}

type loadResponse struct {
	Status string `json:"status"`
	Device string `json:"device"`
	Error  string `json:"error,omitempty"`
}

// Load asks the runtime to place modelID on device and returns the device it reports.
func (c *SidecarClient) Load(ctx context.Context, modelID string, device Device) (Device, error) {
	raw, _, err := sendJSON(ctx, c.http, c.cfg.BaseURL+"/v1/models/load",
		loadRequest{ModelID: modelID, Device: device.Type}, c.logger)
	if err != nil {
		return device, fmt.Errorf("sidecar load: %w", err)
	}
	var resp loadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return device, fmt.Errorf("sidecar load: decode: %w", err)
	}
	if resp.Status != "ready" {
		return device, fmt.Errorf("sidecar load: status %q: %s", resp.Status, resp.Error)
	}
	if resp.Device != "" && resp.Device != device.Type {
		c.logger.Warn("donut.sidecar.device_mismatch", "requested", device.Type, "placed", resp.Device)
		device.Type = resp.Device
	}
	return device, nil
}

// BoundModel returns a Model bound to modelID.
func (c *SidecarClient) BoundModel(modelID string) Model {
	return &sidecarModel{client: c, modelID: modelID}
}

type generateRequest struct {
	ModelID         string    `json:"model_id"`
	ImagePNG        []byte    `json:"image_png"`
	ImageMean       []float64 `json:"image_mean"`
	ImageStd        []float64 `json:"image_std"`
	DecoderInputIDs []int     `json:"decoder_input_ids"`
	MaxLength       int       `json:"max_length"`
	EOSTokenID      int       `json:"eos_token_id"`
	PadTokenID      int       `json:"pad_token_id"`
	BadWordsIDs     [][]int   `json:"bad_words_ids"`
	NumBeams        int       `json:"num_beams"`
	DoSample        bool      `json:"do_sample"`
	EarlyStopping   bool      `json:"early_stopping"`
}

type generateResponse struct {
	Sequences [][]int `json:"sequences"`
}

type sidecarModel struct {
	client  *SidecarClient
	modelID string
}

func (m *sidecarModel) Generate(ctx context.Context, req GenerateRequest) ([]int, error) {
	body := generateRequest{
		ModelID:         m.modelID,
		ImagePNG:        req.Image.PNG,
		ImageMean:       req.Image.Mean,
		ImageStd:        req.Image.Std,
		DecoderInputIDs: req.DecoderInputIDs,
		MaxLength:       req.MaxLength,
		EOSTokenID:      req.EOSTokenID,
		PadTokenID:      req.PadTokenID,
		BadWordsIDs:     req.BadWordsIDs,
		NumBeams:        req.NumBeams,
		DoSample:        req.DoSample,
		EarlyStopping:   true,
	}
	raw, _, err := sendJSON(ctx, m.client.http, m.client.cfg.BaseURL+"/v1/models/generate", body, m.client.logger)
	if err != nil {
		return nil, err
	}
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	if len(resp.Sequences) == 0 {
		return nil, errors.New("generate returned no sequences")
	}
	return resp.Sequences[0], nil
}
