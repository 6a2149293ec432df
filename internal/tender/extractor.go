// Package tender turns combined OCR text into a structured tender draft.
package tender

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Lllllllleong/tenderflow/internal/models"
)

const (
	MaxTitleRunes   = 255
	MaxSummaryRunes = 600
	ellipsis        = "..."

	// SummaryPlaceholder is used when OCR produced no usable text.
	SummaryPlaceholder = "Summary auto-generated from OCR content. Please refine during proofreading."
)

var (
	openingISO = regexp.MustCompile(`(?i)opening.*?(\d{4}-\d{2}-\d{2})`)
	openingDMY = regexp.MustCompile(`(?i)open date.*?(\d{2})[/-](\d{2})[/-](\d{4})`)
	closingISO = regexp.MustCompile(`(?i)closing.*?(\d{4}-\d{2}-\d{2})`)
	closingDMY = regexp.MustCompile(`(?i)close date.*?(\d{2})[/-](\d{2})[/-](\d{4})`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Options tune a single extraction.
type Options struct {
	// AnchorLabel is the human label of the group's anchor image, if any.
	AnchorLabel string
	// PreferLabel makes a non-empty AnchorLabel win over the first text line.
	PreferLabel bool
}

// Extractor derives title, dates and summary from OCR text. It never fails.
type Extractor struct {
	Now func() time.Time
}

// NewExtractor returns an Extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{Now: time.Now}
}

// Extract parses text into a draft. Body is the text unchanged.
func (e *Extractor) Extract(text string, opts Options) models.TenderDraft {
	return models.TenderDraft{
		Title:       e.title(text, opts),
		Body:        text,
		Summary:     Summarize(text),
		OpeningDate: findDate(text, openingISO, openingDMY),
		ClosingDate: findDate(text, closingISO, closingDMY),
	}
}

func (e *Extractor) title(text string, opts Options) string {
	label := strings.TrimSpace(opts.AnchorLabel)
	if opts.PreferLabel && label != "" {
		return truncateRunes(label, MaxTitleRunes)
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, MaxTitleRunes)
		}
	}
	if label != "" {
		return truncateRunes(label, MaxTitleRunes)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return "Tender " + now().Format("2006-01-02 15:04:05")
}

// Summarize collapses whitespace and caps the result at MaxSummaryRunes.
func Summarize(text string) string {
	s := strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if s == "" {
		return SummaryPlaceholder
	}
	if utf8.RuneCountInString(s) <= MaxSummaryRunes {
		return s
	}
	r := []rune(s)[:MaxSummaryRunes-len(ellipsis)]
	return strings.TrimRightFunc(string(r), unicode.IsSpace) + ellipsis
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}

// findDate tries the ISO pattern first, then the day-first pattern.
func findDate(text string, iso, dmy *regexp.Regexp) string {
	if m := iso.FindStringSubmatch(text); m != nil {
		if valid(m[1]) {
			return m[1]
		}
	}
	if m := dmy.FindStringSubmatch(text); m != nil {
		d := fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
		if valid(d) {
			return d
		}
	}
	return ""
}

func valid(isoDate string) bool {
	_, err := time.Parse("2006-01-02", isoDate)
	return err == nil
}
