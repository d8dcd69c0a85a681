package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
)

// multipart parsing keeps up to this much in memory before spilling to disk.
const formMemory = 8 << 20

type RootResponse struct {
	Status  string     `json:"status"`
	Service string     `json:"service"`
	Version string     `json:"version"`
	Models  RootModels `json:"models"`
}

type RootModels struct {
	OCR        string `json:"ocr"`
	Structured string `json:"structured"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Status string         `json:"status"`
	Model  any            `json:"model"`
	Ledger string         `json:"ledger"`
	Detail map[string]any `json:"detail,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleRoot describes the service. It never touches a model.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:  "running",
		Service: ServiceName,
		Version: Version,
		Models: RootModels{
			OCR:        s.cfg.OCRLabel,
			Structured: fmt.Sprintf("Donut (%s)", s.models.ModelID()),
		},
	})
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	doc, name, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log := common.LoggerFromContext(r.Context(), s.logger)
	log.Info("http.extract_text", "file", name, "kind", doc.Kind, "bytes", len(doc.Bytes))

	res, err := s.extractor.ExtractText(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStructuredExtract(w http.ResponseWriter, r *http.Request) {
	doc, name, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log := common.LoggerFromContext(r.Context(), s.logger)
	log.Info("http.structured_extract", "file", name, "kind", doc.Kind, "bytes", len(doc.Bytes))

	res, err := s.extractor.ExtractFields(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReadyz reports the model state. The lazily loaded model does not
// gate readiness; an unreachable ledger does.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Model: s.models.Status(), Ledger: "ok"}
	if s.ledger != nil {
		if err := s.ledger.Ping(r.Context(), 2*time.Second); err != nil {
			resp.Status = "not_ready"
			resp.Ledger = "unreachable"
			resp.Detail = map[string]any{"ledger_error": err.Error()}
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload pulls the multipart "file" part and routes it by declared content type.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (document.RawDocument, string, error) {
	// allow some slack for multipart framing
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return document.RawDocument{}, "", common.InvalidInputError(fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes))
		}
		return document.RawDocument{}, "", common.InvalidInputError("expected multipart/form-data with a file field")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return document.RawDocument{}, "", common.InvalidInputError("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return document.RawDocument{}, "", common.InvalidInputError("could not read uploaded file")
	}
	if err := common.ValidateUpload(data, s.cfg.MaxUploadBytes); err != nil {
		return document.RawDocument{}, "", err
	}

	kind := constants.KindFromContentType(hdr.Header.Get("Content-Type"))
	return document.RawDocument{Bytes: data, Kind: kind}, hdr.Filename, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	log := common.LoggerFromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Error("http.request.failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Warn("http.request.rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Detail: common.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
