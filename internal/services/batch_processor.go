package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tenderflow/internal/content"
	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/Lllllllleong/tenderflow/internal/grouping"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/Lllllllleong/tenderflow/internal/pipeline"
	"github.com/Lllllllleong/tenderflow/internal/repository"
	"github.com/google/uuid"
)

// ErrInvalidRequest marks a batch request the caller must fix.
var ErrInvalidRequest = errors.New("invalid batch request")

const noGroupsSummary = "No image groups selected."

// BatchConfig holds all configuration for the tender batch service.
type BatchConfig struct {
	Store            StoreConfig
	OCR              OCRConfig
	Pipeline         pipeline.Config
	Minio            content.MinioConfig
	WorkflowID       string
	WorkflowLocation string
}

// loadBatchConfig loads and validates the environment for this service.
func loadBatchConfig() (*BatchConfig, error) {
	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}
	wordLimit, err := gcp.GetEnvInt("OCR_WORD_LIMIT", 0)
	if err != nil {
		return nil, err
	}
	if wordLimit < 0 {
		return nil, fmt.Errorf("OCR_WORD_LIMIT must not be negative")
	}
	fetchTimeout, err := gcp.GetEnvDuration("FETCH_TIMEOUT", time.Minute)
	if err != nil {
		return nil, err
	}
	ocrTimeout, err := gcp.GetEnvDuration("OCR_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := gcp.GetEnvDuration("WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	preferLabel, err := gcp.GetEnvBool("PREFER_LABEL_TITLE", false)
	if err != nil {
		return nil, err
	}
	useSSL, err := gcp.GetEnvBool("MINIO_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	fallback := gcp.GetEnv("OCR_FALLBACK", "")
	if fallback != "" && fallback != "placeholder" {
		return nil, fmt.Errorf("unknown OCR_FALLBACK %q (want placeholder or empty)", fallback)
	}
	backend := gcp.GetEnv("OCR_BACKEND", "")
	languages := gcp.GetEnv("OCR_LANGUAGES", ocr.DefaultLanguages)
	placeholder := backend == "" && fallback == "placeholder"

	return &BatchConfig{
		Store: store,
		OCR: OCRConfig{
			Backend:      backend,
			Languages:    languages,
			Placeholder:  placeholder,
			ProjectID:    store.ProjectID,
			VertexRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
			VertexModel:  gcp.GetEnv("VERTEX_OCR_MODEL", "gemini-1.5-pro"),
			GeminiAPIKey: gcp.GetEnv("GEMINI_API_KEY", ""),
			GeminiModel:  gcp.GetEnv("GEMINI_MODEL", ""),
		},
		Pipeline: pipeline.Config{
			Languages:        languages,
			WordLimit:        wordLimit,
			FetchTimeout:     fetchTimeout,
			ExtractTimeout:   ocrTimeout,
			WriteTimeout:     writeTimeout,
			PreferLabelTitle: preferLabel,
			Placeholder:      placeholder,
		},
		Minio: content.MinioConfig{
			Endpoint:  gcp.GetEnv("MINIO_ENDPOINT", ""),
			AccessKey: gcp.GetEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: gcp.GetEnv("MINIO_SECRET_KEY", ""),
			UseSSL:    useSSL,
		},
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// BatchProcessorFunction holds the dependencies for running tender batches.
type BatchProcessorFunction struct {
	store       repository.Store
	coordinator *pipeline.Coordinator
	notifier    Notifier
	newID       func() string
}

// NewBatchProcessor wires the repository, OCR backend and content resolver from the environment.
func NewBatchProcessor(ctx context.Context) (*BatchProcessorFunction, error) {
	config, err := loadBatchConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	backend, err := openBackend(ctx, newBackendRegistry(config.OCR), config.OCR)
	if err != nil {
		return nil, fmt.Errorf("failed to open OCR backend: %w", err)
	}

	store, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	minioClient, err := content.NewMinioClient(config.Minio)
	if err != nil {
		return nil, err
	}
	resolver := &content.Resolver{GCS: storageClient, S3: minioClient}

	processor, err := pipeline.NewProcessor(store, backend, resolver, config.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	var notifier Notifier
	if config.WorkflowID != "" {
		notifier, err = NewWorkflowNotifier(ctx, config.Store.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Tender batch logic initialized.", "repository", config.Store.Kind, "ocrBackend", config.OCR.Backend,
		"placeholder", config.OCR.Placeholder, "workflowId", config.WorkflowID)
	return newBatchProcessor(store, processor, notifier), nil
}

func newBatchProcessor(store repository.Store, processor pipeline.GroupProcessor, notifier Notifier) *BatchProcessorFunction {
	return &BatchProcessorFunction{
		store:       store,
		coordinator: pipeline.NewCoordinator(processor, slog.Default()),
		notifier:    notifier,
		newID:       uuid.NewString,
	}
}

// Process groups the arrangement and runs every group through the pipeline.
func (f *BatchProcessorFunction) Process(ctx context.Context, req *models.BatchRequest) (*models.BatchResponse, error) {
	batchID := req.BatchID
	if batchID == "" {
		batchID = f.newID()
	}
	logCtx := slog.With("batchId", batchID)
	logCtx.Info("Received tender batch.", "imageCount", len(req.Images))

	entries := make([]grouping.Entry, len(req.Images))
	ids := make([]string, len(req.Images))
	for i, e := range req.Images {
		entries[i] = grouping.Entry{ImageID: e.ImageID, ParentID: e.ParentID, Weight: e.Weight, Selected: e.Selected}
		ids[i] = e.ImageID
	}
	if err := grouping.Validate(entries); err != nil {
		logCtx.Warn("Rejected arrangement.", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	kept, skipped, err := f.dropProcessed(ctx, entries, ids)
	if err != nil {
		logCtx.Error("Failed to check processed images", "error", err)
		return nil, err
	}
	if len(skipped) > 0 {
		logCtx.Warn("Dropped already processed images from the arrangement.", "imageIds", skipped)
	}

	groups := grouping.Build(kept)
	if len(groups) == 0 {
		logCtx.Info(noGroupsSummary)
		return &models.BatchResponse{
			BatchID:   batchID,
			Messages:  []models.GroupMessage{},
			TenderIDs: []string{},
			Skipped:   skipped,
			Summary:   noGroupsSummary,
		}, nil
	}

	result := f.coordinator.Run(ctx, batchID, groups)
	if f.notifier != nil && len(result.TenderIDs) > 0 {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := f.notifier.Notify(notifyCtx, batchID, result.TenderIDs); err != nil {
			logCtx.Error("Failed to notify review workflow.", "error", err)
		}
		cancel()
	}

	resp := result.Response()
	resp.Skipped = skipped
	return resp, nil
}

// dropProcessed removes entries whose image is already processed so they cannot
// feed a second tender.
func (f *BatchProcessorFunction) dropProcessed(ctx context.Context, entries []grouping.Entry, ids []string) ([]grouping.Entry, []string, error) {
	if len(ids) == 0 {
		return entries, nil, nil
	}
	images, err := f.store.LoadImages(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load arrangement images: %w", err)
	}
	processed := make(map[string]bool, len(images))
	for _, img := range images {
		processed[img.ID] = img.Processed
	}
	var kept []grouping.Entry
	var skipped []string
	for _, e := range entries {
		if processed[e.ImageID] {
			skipped = append(skipped, e.ImageID)
			continue
		}
		kept = append(kept, e)
	}
	return kept, skipped, nil
}

// Candidates lists unprocessed images an operator can arrange.
func (f *BatchProcessorFunction) Candidates(ctx context.Context, filter repository.ImageFilter) (*models.CandidatesResponse, error) {
	images, err := f.store.ListUnprocessedImages(ctx, filter)
	if err != nil {
		slog.Error("Failed to list candidate images", "error", err, "sourceId", filter.SourceID, "publishDate", filter.PublishDate)
		return nil, err
	}
	if images == nil {
		images = []models.Image{}
	}
	return &models.CandidatesResponse{Images: images}, nil
}
