// Package gemini provides an OCR backend backed by the Gemini API (API-key auth).
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-2.5-flash"
)

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Backend sends each image inline to a Gemini model.
type Backend struct {
	model  generator
	client *genai.Client
}

// New creates the Gemini client. An empty API key makes the backend unavailable.
func New(ctx context.Context, apiKey, model string) (*Backend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini: GEMINI_API_KEY is empty", ocr.ErrBackendUnavailable)
	}
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", ocr.ErrBackendUnavailable, err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(gcp.OCRSystemPrompt)},
	}
	return &Backend{model: m, client: client}, nil
}

// Factory adapts New to the registry.
func Factory(apiKey, model string) ocr.Factory {
	return func(ctx context.Context) (ocr.Backend, error) {
		return New(ctx, apiKey, model)
	}
}

func (b *Backend) Name() string { return Name }

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

	resp, err := b.model.GenerateContent(ctx, genai.Text(prompt), genai.Blob{MIMEType: mime, Data: data})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: gemini: %v", ocr.ErrExtractionFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini: empty response", ocr.ErrExtractionFailed)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: gemini: response blocked by safety filter", ocr.ErrExtractionFailed)
	}

	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return ocr.LimitWords(ocr.CleanModelText(sb.String(), gcp.OCRNoTextSentinel), wordLimit), nil
}
