// Package ocr defines the text-recognition backend contract and the backend registry.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// DefaultLanguages is the language hint used when none is configured.
const DefaultLanguages = "amh+eng"

var (
	ErrNoBackendConfigured = errors.New("no OCR backend configured")
	ErrUnknownBackend      = errors.New("unknown OCR backend")
	ErrBackendUnavailable  = errors.New("OCR backend unavailable")
	ErrExtractionFailed    = errors.New("OCR extraction failed")
)

// Backend extracts text from one image file. A page without text returns "" and no error.
type Backend interface {
	Name() string
	Extract(ctx context.Context, path, languageHints string, wordLimit int) (string, error)
}

// Factory constructs a backend, verifying its runtime prerequisites.
// It returns an error wrapping ErrBackendUnavailable when they are not met.
type Factory func(ctx context.Context) (Backend, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open selects and constructs the named backend.
func (r *Registry) Open(ctx context.Context, name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrNoBackendConfigured
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	b, err := f(ctx)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, name, err)
	}
	return b, nil
}

// CheckFile verifies that path names a readable regular file.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrExtractionFailed, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return f.Close()
}

// SplitLanguages turns "amh+eng" into ["amh", "eng"].
func SplitLanguages(hints string) []string {
	if strings.TrimSpace(hints) == "" {
		hints = DefaultLanguages
	}
	var langs []string
	for _, l := range strings.Split(hints, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// LimitWords cuts text after the n-th word, keeping the original layout up to that point.
// n <= 0 means unlimited.
func LimitWords(text string, n int) string {
	if n <= 0 {
		return text
	}
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && words == n {
				return text[:i]
			}
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return text
}
