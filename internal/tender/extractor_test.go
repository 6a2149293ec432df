package tender

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 9, 30, 15, 0, time.UTC)
}

func TestExtractRoadWorksNotice(t *testing.T) {
	e := &Extractor{Now: fixedClock}
	text := "Road Works Tender\nOpening: 2025-03-01\nClose date 15/03/2025"

	d := e.Extract(text, Options{})
	if d.Title != "Road Works Tender" {
		t.Fatalf("title = %q", d.Title)
	}
	if d.OpeningDate != "2025-03-01" {
		t.Fatalf("opening = %q", d.OpeningDate)
	}
	if d.ClosingDate != "2025-03-15" {
		t.Fatalf("closing = %q", d.ClosingDate)
	}
	if d.Body != text {
		t.Fatalf("body changed: %q", d.Body)
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := &Extractor{Now: fixedClock}
	d := e.Extract("", Options{})
	if d.Title != "Tender 2025-03-04 09:30:15" {
		t.Fatalf("title = %q", d.Title)
	}
	if d.Summary != SummaryPlaceholder {
		t.Fatalf("summary = %q", d.Summary)
	}
	if d.OpeningDate != "" || d.ClosingDate != "" {
		t.Fatalf("expected no dates, got %q %q", d.OpeningDate, d.ClosingDate)
	}
}

func TestExtractTitle(t *testing.T) {
	long := strings.Repeat("T", 300)
	tests := []struct {
		name string
		text string
		opts Options
		want string
	}{
		{"first non-empty line", "\n   \n  Supply of Desks  \nbody", Options{}, "Supply of Desks"},
		{"label preferred", "Supply of Desks", Options{AnchorLabel: "scan-001.jpg", PreferLabel: true}, "scan-001.jpg"},
		{"label ignored without preference", "Supply of Desks", Options{AnchorLabel: "scan-001.jpg"}, "Supply of Desks"},
		{"label fallback when no text", "  \n ", Options{AnchorLabel: "scan-001.jpg"}, "scan-001.jpg"},
		{"truncated", long, Options{}, strings.Repeat("T", 252) + "..."},
	}
	e := &Extractor{Now: fixedClock}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text, tt.opts).Title
			if got != tt.want {
				t.Fatalf("title = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > MaxTitleRunes {
				t.Fatalf("title has %d runes", n)
			}
		})
	}
}

func TestExtractDates(t *testing.T) {
	tests := []struct {
		name             string
		text             string
		opening, closing string
	}{
		{"iso both", "Bid opening on 2025-06-01\nClosing 2025-06-20", "2025-06-01", "2025-06-20"},
		{"day first with dashes", "Open date: 01-07-2025\nClose date: 30-07-2025", "2025-07-01", "2025-07-30"},
		{"case insensitive", "OPENING 2025-01-02 CLOSING 2025-01-09", "2025-01-02", "2025-01-09"},
		{"does not span lines", "Opening\n2025-06-01", "", ""},
		{"invalid calendar date", "Close date 31/02/2025", "", ""},
		{"none", "Supply of office furniture", "", ""},
	}
	e := &Extractor{Now: fixedClock}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Extract(tt.text, Options{})
			if d.OpeningDate != tt.opening || d.ClosingDate != tt.closing {
				t.Fatalf("dates = %q/%q, want %q/%q", d.OpeningDate, d.ClosingDate, tt.opening, tt.closing)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("x", 1000)
	got := Summarize(long)
	if n := utf8.RuneCountInString(got); n != MaxSummaryRunes {
		t.Fatalf("summary has %d runes, want %d", n, MaxSummaryRunes)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("summary missing ellipsis: %q", got[len(got)-10:])
	}

	short := strings.Repeat("y", 500)
	if got := Summarize(short); got != short {
		t.Fatalf("short summary changed")
	}

	if got := Summarize("  a\n\n b\t c  "); got != "a b c" {
		t.Fatalf("collapsed summary = %q", got)
	}

	amharic := strings.Repeat("ጨረታ", 400)
	got = Summarize(amharic)
	if n := utf8.RuneCountInString(got); n != MaxSummaryRunes {
		t.Fatalf("multibyte summary has %d runes", n)
	}
}
