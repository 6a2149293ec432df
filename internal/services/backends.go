package services

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/Lllllllleong/tenderflow/internal/ocr/gemini"
	"github.com/Lllllllleong/tenderflow/internal/ocr/tesseract"
	"github.com/Lllllllleong/tenderflow/internal/ocr/vertex"
)

// OCRConfig selects the OCR backend and carries every backend's settings.
type OCRConfig struct {
	Backend      string
	Languages    string
	Placeholder  bool
	ProjectID    string
	VertexRegion string
	VertexModel  string
	GeminiAPIKey string
	GeminiModel  string
}

func newBackendRegistry(cfg OCRConfig) *ocr.Registry {
	r := ocr.NewRegistry()
	r.Register(tesseract.Name, tesseract.Factory(cfg.Languages))
	r.Register(vertex.Name, vertex.Factory(vertex.Config{
		ProjectID: cfg.ProjectID,
		Region:    cfg.VertexRegion,
		Model:     cfg.VertexModel,
	}))
	r.Register(gemini.Name, gemini.Factory(cfg.GeminiAPIKey, cfg.GeminiModel))
	return r
}

// openBackend fails fast on a missing, unknown or unavailable backend. With no backend
// configured and placeholder mode enabled it returns a nil backend.
func openBackend(ctx context.Context, r *ocr.Registry, cfg OCRConfig) (ocr.Backend, error) {
	if cfg.Backend == "" && cfg.Placeholder {
		slog.Warn("No OCR backend configured, tenders will use placeholder bodies.")
		return nil, nil
	}
	b, err := r.Open(ctx, cfg.Backend)
	if err != nil {
		slog.Error("OCR backend could not be opened.", "backend", cfg.Backend, "registered", r.Names(), "error", err)
		return nil, err
	}
	slog.Info("OCR backend ready.", "backend", b.Name(), "languages", cfg.Languages)
	return b, nil
}
