package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/donut"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/ocr"
)

const (
	ServiceName = "WarrantyVault AI Microservice"
	Version     = "1.0.0"
)

// Extractor is the pipeline the handlers drive.
type Extractor interface {
	ExtractText(ctx context.Context, doc document.RawDocument) (ocr.TextResult, error)
	ExtractFields(ctx context.Context, doc document.RawDocument) (extract.FieldsResult, error)
}

// ModelStatus reports the structured field model without loading it.
type ModelStatus interface {
	ModelID() string
	Status() donut.Status
}

// Pinger checks a dependency for readiness.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

type Config struct {
	MaxUploadBytes int64
	OCRLabel       string // shown in the root payload, e.g. "Tesseract"
}

// Server is the HTTP front of the extraction service.
type Server struct {
	cfg       Config
	extractor Extractor
	models    ModelStatus
	ledger    Pinger
	logger    *slog.Logger
}

func New(cfg Config, extractor Extractor, models ModelStatus, ledger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.OCRLabel == "" {
		cfg.OCRLabel = "Tesseract"
	}
	return &Server{cfg: cfg, extractor: extractor, models: models, ledger: ledger, logger: logger}
}

// Handler returns the routed handler with request-id, logging and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /extract-text", s.handleExtractText)
	mux.HandleFunc("POST /ai-structured-extract", s.handleStructuredExtract)
	mux.HandleFunc("POST /structured-extract", s.handleStructuredExtract)

	// Health endpoints for orchestrators
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", metrics.Handler())

	return corsMiddleware(s.requestMiddleware(mux))
}
