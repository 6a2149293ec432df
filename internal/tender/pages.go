package tender

import "strings"

// PageSeparator joins per-image OCR text inside a tender body. Stored bodies depend on it,
// so it must not change.
const PageSeparator = "\n\n---END OF PAGE---\n\n"

// JoinPages concatenates page texts in order with PageSeparator.
func JoinPages(pages []string) string {
	return strings.Join(pages, PageSeparator)
}

// SplitPages recovers the page texts of a body produced by JoinPages.
func SplitPages(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, PageSeparator)
}
