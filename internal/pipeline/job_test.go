package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/Lllllllleong/tenderflow/internal/grouping"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/Lllllllleong/tenderflow/internal/repository"
	"github.com/Lllllllleong/tenderflow/internal/tender"
)

var testClock = func() time.Time { return time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, images ...models.Image) *repository.Memory {
	t.Helper()
	m := repository.NewMemory()
	for _, img := range images {
		if img.MIMEType == "" {
			img.MIMEType = "image/png"
		}
		if img.Location == "" {
			img.Location = "/scans/" + img.ID + ".png"
		}
		if err := m.CreateImage(context.Background(), img); err != nil {
			t.Fatalf("seed %s: %v", img.ID, err)
		}
	}
	return m
}

func newTestProcessor(t *testing.T, repo repository.Repository, backend ocr.Backend, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(repo, backend, passthroughFetcher{}, cfg, WithLogger(quietLogger()), WithClock(testClock))
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func assertProcessed(t *testing.T, repo repository.Repository, want bool, ids ...string) {
	t.Helper()
	images, err := repo.LoadImages(context.Background(), ids)
	if err != nil {
		t.Fatalf("LoadImages() error = %v", err)
	}
	for _, img := range images {
		if img.Processed != want {
			t.Fatalf("image %s processed = %v, want %v", img.ID, img.Processed, want)
		}
	}
}

func TestProcessCreatesTender(t *testing.T) {
	repo := seed(t,
		models.Image{ID: "a", Label: "front.png"},
		models.Image{ID: "b", SourceID: "addis-zemen", PublishDate: "2025-03-01"},
		models.Image{ID: "doc", MIMEType: "application/pdf", Location: "/scans/doc.pdf"},
	)
	backend := &fakeBackend{texts: map[string]string{
		"a.png": "Road Works Tender\nOpening: 2025-03-01",
		"b.png": "Close date 15/03/2025",
	}}
	p := newTestProcessor(t, repo, backend, Config{WordLimit: 50})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b", "doc"}})
	if out.State != StateDone || out.Err != nil {
		t.Fatalf("Process() = %+v", out)
	}
	if !reflect.DeepEqual(out.Skipped, []string{"doc"}) {
		t.Fatalf("Skipped = %v", out.Skipped)
	}

	tenders := repo.Tenders()
	if len(tenders) != 1 {
		t.Fatalf("created %d tenders", len(tenders))
	}
	got := tenders[0]
	if got.ID != out.TenderID || got.Title != "Road Works Tender" || out.Title != got.Title {
		t.Fatalf("tender = %+v, outcome = %+v", got, out)
	}
	if got.Body != tender.JoinPages([]string{"Road Works Tender\nOpening: 2025-03-01", "Close date 15/03/2025"}) {
		t.Fatalf("body = %q", got.Body)
	}
	if got.OpeningDate != "2025-03-01" || got.ClosingDate != "2025-03-15" {
		t.Fatalf("dates = %q %q", got.OpeningDate, got.ClosingDate)
	}
	if got.WorkflowState != models.StateNeedsReview || got.Published {
		t.Fatalf("state = %q published = %v", got.WorkflowState, got.Published)
	}
	if got.SourceID != "addis-zemen" || got.PublishDate != "2025-03-01" {
		t.Fatalf("provenance = %q %q", got.SourceID, got.PublishDate)
	}
	if !reflect.DeepEqual(got.ImageIDs, []string{"a", "b", "doc"}) {
		t.Fatalf("ImageIDs = %v", got.ImageIDs)
	}
	if !got.CreatedAt.Equal(testClock()) {
		t.Fatalf("CreatedAt = %s", got.CreatedAt)
	}
	assertProcessed(t, repo, true, "a", "b", "doc")
	if !reflect.DeepEqual(backend.calls, []string{"a.png", "b.png"}) {
		t.Fatalf("backend calls = %v", backend.calls)
	}
	if backend.limits[0] != 50 {
		t.Fatalf("word limit = %d", backend.limits[0])
	}
}

func TestProcessSwallowsPerImageFailures(t *testing.T) {
	repo := seed(t, models.Image{ID: "a"}, models.Image{ID: "b"}, models.Image{ID: "c"})
	backend := &fakeBackend{
		texts: map[string]string{"b.png": "Supply of Desks", "c.png": "   "},
		errs:  map[string]error{"a.png": ocr.ErrExtractionFailed},
	}
	p := newTestProcessor(t, repo, backend, Config{})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b", "c"}})
	if out.State != StateDone {
		t.Fatalf("Process() = %+v", out)
	}
	if !reflect.DeepEqual(out.FailedImages, []string{"a"}) {
		t.Fatalf("FailedImages = %v", out.FailedImages)
	}
	if body := repo.Tenders()[0].Body; body != "Supply of Desks" {
		t.Fatalf("body = %q", body)
	}
	assertProcessed(t, repo, true, "a", "b", "c")
}

func TestProcessFailsWhenNoImageYieldsText(t *testing.T) {
	repo := seed(t, models.Image{ID: "a"}, models.Image{ID: "b"})
	backend := &fakeBackend{
		texts: map[string]string{"b.png": ""},
		errs:  map[string]error{"a.png": ocr.ErrBackendUnavailable},
	}
	p := newTestProcessor(t, repo, backend, Config{})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b"}})
	if out.State != StateFailed || !errors.Is(out.Err, ErrNoTextExtracted) {
		t.Fatalf("Process() = %+v", out)
	}
	if n := len(repo.Tenders()); n != 0 {
		t.Fatalf("created %d tenders", n)
	}
	assertProcessed(t, repo, false, "a", "b")
}

func TestProcessGroupEmpty(t *testing.T) {
	repo := seed(t)
	p := newTestProcessor(t, repo, &fakeBackend{}, Config{})

	for _, g := range []grouping.Group{{}, {ImageIDs: []string{"gone"}}} {
		out := p.Process(context.Background(), g)
		if out.State != StateFailed || !errors.Is(out.Err, ErrGroupEmpty) {
			t.Fatalf("Process(%v) = %+v", g.ImageIDs, out)
		}
	}
}

func TestProcessBackendTimeoutFailsJob(t *testing.T) {
	repo := seed(t, models.Image{ID: "a"}, models.Image{ID: "b"})
	backend := &fakeBackend{
		texts: map[string]string{"a.png": "slow", "b.png": "fast"},
		delay: map[string]time.Duration{"a.png": time.Second},
	}
	p := newTestProcessor(t, repo, backend, Config{ExtractTimeout: 20 * time.Millisecond})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b"}})
	if out.State != StateFailed || !errors.Is(out.Err, ErrBackendTimeout) {
		t.Fatalf("Process() = %+v", out)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("backend called %d times after timeout", len(backend.calls))
	}
	assertProcessed(t, repo, false, "a", "b")
}

func TestProcessCreateFailureLeavesImagesUnprocessed(t *testing.T) {
	repo := &flakyRepo{Memory: seed(t, models.Image{ID: "a"}), failCreate: true}
	p := newTestProcessor(t, repo, &fakeBackend{texts: map[string]string{"a.png": "Tender"}}, Config{})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a"}})
	if out.State != StateFailed || !errors.Is(out.Err, repository.ErrRepository) {
		t.Fatalf("Process() = %+v", out)
	}
	assertProcessed(t, repo, false, "a")
}

func TestProcessLoadFailure(t *testing.T) {
	repo := &flakyRepo{Memory: seed(t, models.Image{ID: "a"}), failLoad: true}
	p := newTestProcessor(t, repo, &fakeBackend{}, Config{})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a"}})
	if out.State != StateFailed || !errors.Is(out.Err, repository.ErrRepository) {
		t.Fatalf("Process() = %+v", out)
	}
}

func TestProcessReportsUnmarkedImages(t *testing.T) {
	repo := &flakyRepo{
		Memory:   seed(t, models.Image{ID: "a"}, models.Image{ID: "b"}),
		failMark: map[string]bool{"b": true},
	}
	p := newTestProcessor(t, repo, &fakeBackend{texts: map[string]string{"a.png": "Tender", "b.png": "Page 2"}}, Config{})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b"}})
	if out.State != StateDone {
		t.Fatalf("Process() = %+v", out)
	}
	if !reflect.DeepEqual(out.Unmarked, []string{"b"}) {
		t.Fatalf("Unmarked = %v", out.Unmarked)
	}
	assertProcessed(t, repo, true, "a")
	assertProcessed(t, repo, false, "b")
}

func TestProcessIgnoresCallerCancellation(t *testing.T) {
	repo := seed(t, models.Image{ID: "a"})
	p := newTestProcessor(t, repo, &fakeBackend{texts: map[string]string{"a.png": "Tender"}}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if out := p.Process(ctx, grouping.Group{ImageIDs: []string{"a"}}); out.State != StateDone {
		t.Fatalf("Process() = %+v", out)
	}
}

func TestProcessPlaceholderMode(t *testing.T) {
	repo := seed(t, models.Image{ID: "a", Label: "notice-front.jpg"}, models.Image{ID: "b"})
	p := newTestProcessor(t, repo, nil, Config{Placeholder: true})

	out := p.Process(context.Background(), grouping.Group{ImageIDs: []string{"a", "b"}})
	if out.State != StateDone {
		t.Fatalf("Process() = %+v", out)
	}
	got := repo.Tenders()[0]
	if got.Title != "notice-front.jpg" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Body != "Source images:\n- notice-front.jpg\n- b" {
		t.Fatalf("body = %q", got.Body)
	}
}

func TestNewProcessorRequiresBackend(t *testing.T) {
	if _, err := NewProcessor(repository.NewMemory(), nil, nil, Config{}); !errors.Is(err, ocr.ErrNoBackendConfigured) {
		t.Fatalf("NewProcessor() error = %v", err)
	}
}
