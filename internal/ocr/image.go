package ocr

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ReadImage loads an image file for backends that send bytes inline and reports its
// sniffed MIME type. Non-image content fails with ErrExtractionFailed.
func ReadImage(path string) ([]byte, string, error) {
	if err := CheckFile(path); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: unsupported content type %s", ErrExtractionFailed, mime)
	}
	return data, mime, nil
}

// CleanModelText strips fences and the no-text sentinel from a generative model reply.
func CleanModelText(raw, noTextSentinel string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if noTextSentinel != "" && s == noTextSentinel {
		return ""
	}
	return s
}
