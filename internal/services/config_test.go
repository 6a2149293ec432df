package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/tenderflow/internal/ocr"
)

func TestLoadBatchConfig(t *testing.T) {
	t.Setenv("REPOSITORY", "memory")
	t.Setenv("OCR_BACKEND", "")
	t.Setenv("OCR_FALLBACK", "placeholder")
	t.Setenv("OCR_WORD_LIMIT", "120")
	t.Setenv("OCR_TIMEOUT", "45s")

	cfg, err := loadBatchConfig()
	if err != nil {
		t.Fatalf("loadBatchConfig() error = %v", err)
	}
	if !cfg.OCR.Placeholder || !cfg.Pipeline.Placeholder {
		t.Fatalf("placeholder mode not enabled: %+v", cfg.OCR)
	}
	if cfg.Pipeline.WordLimit != 120 || cfg.Pipeline.ExtractTimeout != 45*time.Second {
		t.Fatalf("pipeline config = %+v", cfg.Pipeline)
	}
	if cfg.OCR.Languages != ocr.DefaultLanguages {
		t.Fatalf("languages = %q", cfg.OCR.Languages)
	}
}

func TestLoadBatchConfigPlaceholderOnlyWithoutBackend(t *testing.T) {
	t.Setenv("REPOSITORY", "memory")
	t.Setenv("OCR_BACKEND", "tesseract")
	t.Setenv("OCR_FALLBACK", "placeholder")
	cfg, err := loadBatchConfig()
	if err != nil {
		t.Fatalf("loadBatchConfig() error = %v", err)
	}
	if cfg.OCR.Placeholder {
		t.Fatalf("placeholder enabled while a backend is configured")
	}
}

func TestLoadBatchConfigErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown repository": {"REPOSITORY": "mongo"},
		"firestore project":  {"REPOSITORY": "firestore", "PROJECT_ID": ""},
		"postgres url":       {"REPOSITORY": "postgres", "DATABASE_URL": ""},
		"negative limit":     {"REPOSITORY": "memory", "OCR_WORD_LIMIT": "-1"},
		"bad fallback":       {"REPOSITORY": "memory", "OCR_FALLBACK": "lorem"},
		"bad timeout":        {"REPOSITORY": "memory", "OCR_TIMEOUT": "soon"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := loadBatchConfig(); err == nil {
				t.Fatalf("loadBatchConfig() expected error")
			}
		})
	}
}

func TestOpenBackend(t *testing.T) {
	r := ocr.NewRegistry()
	r.Register("canned", func(context.Context) (ocr.Backend, error) { return cannedBackend{}, nil })
	ctx := context.Background()

	if _, err := openBackend(ctx, r, OCRConfig{}); !errors.Is(err, ocr.ErrNoBackendConfigured) {
		t.Fatalf("openBackend(empty) error = %v", err)
	}
	if _, err := openBackend(ctx, r, OCRConfig{Backend: "abbyy"}); !errors.Is(err, ocr.ErrUnknownBackend) {
		t.Fatalf("openBackend(unknown) error = %v", err)
	}
	b, err := openBackend(ctx, r, OCRConfig{Placeholder: true})
	if err != nil || b != nil {
		t.Fatalf("openBackend(placeholder) = %v, %v", b, err)
	}
	b, err = openBackend(ctx, r, OCRConfig{Backend: "canned"})
	if err != nil || b.Name() != "canned" {
		t.Fatalf("openBackend(canned) = %v, %v", b, err)
	}
}

func TestBackendRegistryNames(t *testing.T) {
	got := newBackendRegistry(OCRConfig{}).Names()
	want := []string{"gemini", "tesseract", "vertex"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestVertexBackendUnavailableWithoutProject(t *testing.T) {
	_, err := openBackend(context.Background(), newBackendRegistry(OCRConfig{}), OCRConfig{Backend: "vertex"})
	if !errors.Is(err, ocr.ErrBackendUnavailable) {
		t.Fatalf("openBackend(vertex) error = %v", err)
	}
}
