// Package tesseract provides the local Tesseract OCR backend.
package tesseract

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

const Name = "tesseract"

// Backend runs Tesseract through gosseract. A fresh client is used per image.
type Backend struct {
	clientFactory func() *gosseract.Client
}

// New checks that the Tesseract library answers and that trained data exists for every
// requested language.
func New(languageHints string) (*Backend, error) {
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract: %v", ocr.ErrBackendUnavailable, err)
	}
	for _, lang := range ocr.SplitLanguages(languageHints) {
		if !slices.Contains(available, lang) {
			return nil, fmt.Errorf("%w: tesseract: no trained data for language %q", ocr.ErrBackendUnavailable, lang)
		}
	}
	return &Backend{clientFactory: gosseract.NewClient}, nil
}

// Factory adapts New to the registry.
func Factory(languageHints string) ocr.Factory {
	return func(context.Context) (ocr.Backend, error) {
		return New(languageHints)
	}
}

func (b *Backend) Name() string { return Name }

type result struct {
	text string
	err  error
}

// Extract recognizes text in the image at path. The Tesseract call itself cannot be
// interrupted, so a cancelled ctx returns early and the call finishes in the background.
func (b *Backend) Extract(ctx context.Context, path, languageHints string, wordLimit int) (string, error) {
	if err := ocr.CheckFile(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan result, 1)
	go func() {
		text, err := b.recognize(path, ocr.SplitLanguages(languageHints))
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return ocr.LimitWords(r.text, wordLimit), nil
	}
}

func (b *Backend) recognize(path string, langs []string) (string, error) {
	c := b.clientFactory()
	defer c.Close()

	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return "", fmt.Errorf("%w: set languages: %v", ocr.ErrExtractionFailed, err)
		}
	}
	if err := c.SetImage(path); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ocr.ErrExtractionFailed, err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("%w: recognize text: %v", ocr.ErrExtractionFailed, err)
	}
	return strings.TrimSpace(text), nil
}
