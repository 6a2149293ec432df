// Package pipeline runs image groups through OCR and turns them into tenders.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/tenderflow/internal/content"
	"github.com/Lllllllleong/tenderflow/internal/grouping"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/Lllllllleong/tenderflow/internal/repository"
	"github.com/Lllllllleong/tenderflow/internal/tender"
)

// State is a pipeline job's position in its lifecycle.
type State string

const (
	StatePending    State = "PENDING"
	StateLoading    State = "LOADING"
	StateExtracting State = "EXTRACTING"
	StateDrafting   State = "DRAFTING"
	StateWriting    State = "WRITING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

var (
	ErrGroupEmpty      = errors.New("no images found for group")
	ErrNoTextExtracted = errors.New("no text extracted from any image in group")
	ErrBackendTimeout  = errors.New("OCR backend timed out")
)

// Config tunes every job run by a Processor.
type Config struct {
	Languages        string
	WordLimit        int
	FetchTimeout     time.Duration
	ExtractTimeout   time.Duration
	WriteTimeout     time.Duration
	PreferLabelTitle bool
	// Placeholder builds bodies from image labels instead of OCR text.
	Placeholder bool
}

func (c *Config) setDefaults() {
	if c.Languages == "" {
		c.Languages = ocr.DefaultLanguages
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = time.Minute
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 2 * time.Minute
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// Outcome is the terminal result of one job.
type Outcome struct {
	State    State
	TenderID string
	Title    string
	Err      error
	// Skipped lists group members that are not raster images.
	Skipped []string
	// FailedImages lists images whose extraction failed and was skipped.
	FailedImages []string
	// Unmarked lists images that could not be flagged processed after the tender was created.
	Unmarked []string
}

// Processor owns the collaborators shared by all jobs.
type Processor struct {
	repo      repository.Repository
	backend   ocr.Backend
	fetcher   content.Fetcher
	extractor *tender.Extractor
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Processor.
type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithClock fixes the time used for created-at stamps and synthesized titles.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor requires a backend unless placeholder mode is enabled.
func NewProcessor(repo repository.Repository, backend ocr.Backend, fetcher content.Fetcher, cfg Config, opts ...Option) (*Processor, error) {
	if repo == nil {
		return nil, errors.New("pipeline: repository is required")
	}
	if backend == nil && !cfg.Placeholder {
		return nil, ocr.ErrNoBackendConfigured
	}
	if fetcher == nil {
		fetcher = &content.Resolver{}
	}
	cfg.setDefaults()
	p := &Processor{
		repo:    repo,
		backend: backend,
		fetcher: fetcher,
		config:  cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = &tender.Extractor{Now: p.now}
	return p, nil
}

// Job is the state machine for one group.
type Job struct {
	group  grouping.Group
	state  State
	logger *slog.Logger
}

func (j *Job) State() State { return j.state }

func (j *Job) transition(to State) {
	j.logger.Info("Job state changed.", "from", j.state, "to", to)
	j.state = to
}

func (j *Job) fail(out Outcome, err error) Outcome {
	j.logger.Error("Job failed.", "state", j.state, "error", err)
	j.state = StateFailed
	out.State = StateFailed
	out.Err = err
	return out
}

// Process runs one group to Done or Failed. The job ignores cancellation of ctx once
// started; every external call is bounded by its own timeout instead.
func (p *Processor) Process(ctx context.Context, g grouping.Group) Outcome {
	ctx = context.WithoutCancel(ctx)
	job := &Job{
		group:  g,
		state:  StatePending,
		logger: p.logger.With("anchorImageId", g.Anchor(), "groupSize", len(g.ImageIDs)),
	}
	var out Outcome

	job.transition(StateLoading)
	images, err := p.load(ctx, g)
	if err != nil {
		return job.fail(out, err)
	}

	job.transition(StateExtracting)
	var pages []string
	if p.config.Placeholder {
		pages = []string{placeholderBody(images)}
	} else {
		pages, err = p.extractAll(ctx, job, images, &out)
		if err != nil {
			return job.fail(out, err)
		}
	}

	job.transition(StateDrafting)
	draft := p.extractor.Extract(tender.JoinPages(pages), tender.Options{
		AnchorLabel: anchorLabel(g, images),
		PreferLabel: p.config.PreferLabelTitle || p.config.Placeholder,
	})
	draft.SourceID, draft.PublishDate = inheritedProvenance(images)

	job.transition(StateWriting)
	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
	tenderID, err := p.repo.CreateTender(writeCtx, models.NewTender(draft, ids, p.now()))
	cancel()
	if err != nil {
		return job.fail(out, fmt.Errorf("create tender: %w", err))
	}
	out.TenderID = tenderID
	out.Title = draft.Title

	for _, id := range ids {
		markCtx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
		err := p.repo.SetImageProcessed(markCtx, id, true)
		cancel()
		if err != nil {
			job.logger.Warn("Failed to mark image processed.", "imageId", id, "tenderId", tenderID, "error", err)
			out.Unmarked = append(out.Unmarked, id)
		}
	}

	job.transition(StateDone)
	out.State = StateDone
	job.logger.Info("Tender created.", "tenderId", tenderID, "title", draft.Title, "pages", len(pages))
	return out
}

func (p *Processor) load(ctx context.Context, g grouping.Group) ([]models.Image, error) {
	if len(g.ImageIDs) == 0 {
		return nil, ErrGroupEmpty
	}
	loadCtx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
	defer cancel()
	images, err := p.repo.LoadImages(loadCtx, g.ImageIDs)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGroupEmpty, strings.Join(g.ImageIDs, ", "))
	}
	return images, nil
}

// extractAll returns the non-empty page texts in group order. Per-image failures are
// recorded on out and skipped; only a backend timeout aborts the job.
func (p *Processor) extractAll(ctx context.Context, job *Job, images []models.Image, out *Outcome) ([]string, error) {
	dir, err := os.MkdirTemp("", "tender-job-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var pages []string
	for _, img := range images {
		logCtx := job.logger.With("imageId", img.ID)
		if !img.IsImage() {
			logCtx.Info("Skipping non-image media.", "mimeType", img.MIMEType)
			out.Skipped = append(out.Skipped, img.ID)
			continue
		}
		text, err := p.extractOne(ctx, dir, img)
		if errors.Is(err, ErrBackendTimeout) {
			return nil, err
		}
		if err != nil {
			logCtx.Warn("Image extraction failed, skipping.", "backend", p.backend.Name(), "error", err)
			out.FailedImages = append(out.FailedImages, img.ID)
			continue
		}
		if strings.TrimSpace(text) == "" {
			logCtx.Info("No text found on image.")
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return nil, ErrNoTextExtracted
	}
	return pages, nil
}

func (p *Processor) extractOne(ctx context.Context, dir string, img models.Image) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	path, err := p.fetcher.Fetch(fetchCtx, img.Location, dir)
	cancel()
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", img.Location, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.ExtractTimeout)
	defer cancel()
	text, err := p.backend.Extract(callCtx, path, p.config.Languages, p.config.WordLimit)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s on image %s", ErrBackendTimeout, p.config.ExtractTimeout, img.ID)
	}
	return text, err
}

func anchorLabel(g grouping.Group, images []models.Image) string {
	for _, img := range images {
		if img.ID == g.Anchor() {
			return img.Label
		}
	}
	return ""
}

// inheritedProvenance takes the source and publish date from the first image that has each.
func inheritedProvenance(images []models.Image) (sourceID, publishDate string) {
	for _, img := range images {
		if sourceID == "" {
			sourceID = img.SourceID
		}
		if publishDate == "" {
			publishDate = img.PublishDate
		}
	}
	return sourceID, publishDate
}

func placeholderBody(images []models.Image) string {
	var sb strings.Builder
	sb.WriteString("Source images:")
	for _, img := range images {
		name := img.Label
		if name == "" {
			name = img.ID
		}
		sb.WriteString("\n- ")
		sb.WriteString(name)
	}
	return sb.String()
}
