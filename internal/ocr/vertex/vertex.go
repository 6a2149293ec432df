// Package vertex provides an OCR backend backed by Gemini on Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
)

const Name = "vertex"

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Config selects the Vertex AI project, region and model.
type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Backend sends each image inline to the OCR model.
type Backend struct {
	model  generator
	client *gcp.VertexClient
}

// New creates the Vertex client. Missing project settings make the backend unavailable.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Region, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: vertex: %v", ocr.ErrBackendUnavailable, err)
	}
	return &Backend{model: client.OCRModel, client: client}, nil
}

// Factory adapts New to the registry.
func Factory(cfg Config) ocr.Factory {
	return func(ctx context.Context) (ocr.Backend, error) {
		return New(ctx, cfg)
	}
}

func (b *Backend) Name() string { return Name }

// Close releases the underlying client.
func (b *Backend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func (b *Backend) Extract(ctx context.Context, path, languageHints string, wordLimit int) (string, error) {
	data, mime, err := ocr.ReadImage(path)
	if err != nil {
		return "", err
	}

	prompt := gcp.OCRUserPrompt + "\nExpected languages: " + strings.Join(ocr.SplitLanguages(languageHints), ", ")
	resp, err := b.model.GenerateContent(ctx, genai.Blob{MIMEType: mime, Data: data}, genai.Text(prompt))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: vertex: %v", ocr.ErrExtractionFailed, err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return ocr.LimitWords(ocr.CleanModelText(text, gcp.OCRNoTextSentinel), wordLimit), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: vertex: empty response", ocr.ErrExtractionFailed)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: vertex: response blocked by safety filter", ocr.ErrExtractionFailed)
	}
	if cand.Content == nil {
		return "", nil
	}
	var sb strings.Builder
	parts := 0
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			parts++
		}
	}
	if parts > 1 {
		slog.Warn("Model response contained several text parts; they have been concatenated.", "backend", Name, "parts", parts)
	}
	return sb.String(), nil
}
