package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/tenderflow/internal/gcp"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/repository"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// Object metadata keys set by the upload client.
const (
	metaSourceID    = "sourceId"
	metaPublishDate = "publishDate"
	metaLabel       = "label"
	metaParentID    = "parentId"
)

// RegistrarConfig holds configuration for the image registrar service.
type RegistrarConfig struct {
	Store       StoreConfig
	PagesBucket string
}

// ImageRegistrarFunction registers uploaded scans as unprocessed images.
type ImageRegistrarFunction struct {
	storageClient *storage.Client
	store         repository.Store
	config        RegistrarConfig
	now           func() time.Time
}

func NewImageRegistrar(ctx context.Context) (*ImageRegistrarFunction, error) {
	store, err := loadStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config := RegistrarConfig{
		Store:       store,
		PagesBucket: gcp.GetEnv("PAGES_BUCKET", ""),
	}
	if config.PagesBucket == "" {
		return nil, fmt.Errorf("PAGES_BUCKET environment variable must be set")
	}

	repo, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	slog.Info("Image registrar logic initialized.", "repository", store.Kind, "pagesBucket", config.PagesBucket)
	return &ImageRegistrarFunction{
		storageClient: storageClient,
		store:         repo,
		config:        config,
		now:           time.Now,
	}, nil
}

// Process registers the finalized object. PDFs are exploded into one image per embedded page image.
func (f *ImageRegistrarFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Ignoring folder placeholder object.")
		return nil
	}
	contentType := objectContentType(e)
	if contentType == "application/pdf" {
		return f.registerPDF(ctx, logCtx, e)
	}

	img := f.imageFromEvent(logCtx, e, contentType)
	return f.register(ctx, logCtx, img)
}

func (f *ImageRegistrarFunction) register(ctx context.Context, logCtx *slog.Logger, img models.Image) error {
	err := f.store.CreateImage(ctx, img)
	if errors.Is(err, repository.ErrAlreadyExists) {
		logCtx.Info("Image already registered. Skipping.", "imageId", img.ID)
		return nil
	}
	if err != nil {
		logCtx.Error("Failed to register image", "imageId", img.ID, "error", err)
		return err
	}
	logCtx.Info("Registered image.", "imageId", img.ID, "mimeType", img.MIMEType, "sourceId", img.SourceID, "publishDate", img.PublishDate)
	return nil
}

func (f *ImageRegistrarFunction) imageFromEvent(logCtx *slog.Logger, e models.GCSEvent, contentType string) models.Image {
	location := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	label := e.Metadata[metaLabel]
	if label == "" {
		label = path.Base(e.Name)
	}
	return models.Image{
		ID:          imageID(location),
		Label:       label,
		Location:    location,
		MIMEType:    contentType,
		CapturedAt:  f.capturedAt(e),
		Processed:   false,
		SourceID:    e.Metadata[metaSourceID],
		PublishDate: publishDate(logCtx, e.Metadata[metaPublishDate]),
		ParentID:    e.Metadata[metaParentID],
	}
}

func (f *ImageRegistrarFunction) registerPDF(ctx context.Context, logCtx *slog.Logger, e models.GCSEvent) error {
	tempDir, err := os.MkdirTemp("", "image-registrar-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, sourcePdfPath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	pages, err := extractPageImages(sourcePdfPath, filepath.Join(tempDir, "pages"))
	if err != nil {
		logCtx.Error("Failed to extract page images", "error", err)
		return err
	}
	if len(pages) == 0 {
		logCtx.Warn("PDF contains no embedded images. Nothing to register.")
		return nil
	}
	logCtx.Info("Extracted page images.", "imageCount", len(pages))

	parent := f.imageFromEvent(logCtx, e, "application/pdf")
	prefix := "pages/" + parent.ID
	images := make([]models.Image, len(pages))
	for i, p := range pages {
		location := fmt.Sprintf("gs://%s/%s/%s", f.config.PagesBucket, prefix, filepath.Base(p))
		img := parent
		img.ID = imageID(location)
		img.Location = location
		img.MIMEType = mimeByExt(p)
		img.Label = fmt.Sprintf("%s p.%d", parent.Label, i+1)
		if i > 0 {
			img.ParentID = images[0].ID
		}
		images[i] = img
	}

	if err := f.uploadPages(ctx, logCtx, pages, images, prefix); err != nil {
		return err
	}
	for _, img := range images {
		if err := f.register(ctx, logCtx, img); err != nil {
			return err
		}
	}
	return nil
}

func (f *ImageRegistrarFunction) uploadPages(ctx context.Context, logCtx *slog.Logger, pages []string, images []models.Image, prefix string) error {
	logCtx.Info("Starting concurrent upload of page images.", "imageCount", len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	bucket := f.storageClient.Bucket(f.config.PagesBucket)

	for i := range pages {
		localPath := pages[i]
		img := images[i]
		object := prefix + "/" + filepath.Base(localPath)
		metadata := map[string]string{
			metaLabel:       img.Label,
			metaSourceID:    img.SourceID,
			metaPublishDate: img.PublishDate,
			metaParentID:    img.ParentID,
		}
		eg.Go(func() error {
			if err := uploadWithRetry(gctx, bucket, object, localPath, img.MIMEType, metadata); err != nil {
				return fmt.Errorf("page image %d: %w", i+1, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more page images failed to upload", "error", err)
		return err
	}
	logCtx.Info("All page images uploaded successfully.")
	return nil
}

func uploadWithRetry(ctx context.Context, bucket *storage.BucketHandle, object, localPath, contentType string, metadata map[string]string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		err := gcp.UploadFileAtomically(writeCtx, bucket, object, localPath, contentType, metadata)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.", "gcsObject", object, "attempt", i+1, "maxRetries", maxRetries,
			"backoff", backoff.String(), "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}

var pageNumber = regexp.MustCompile(`_(\d+)_`)

// extractPageImages writes every embedded image of the PDF into outDir and returns
// their paths in page order.
func extractPageImages(pdfPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractImagesFile(pdfPath, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted images: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(mimeByExt(entry.Name()), "image/") {
			paths = append(paths, filepath.Join(outDir, entry.Name()))
		}
	}
	sortByPage(paths)
	return paths, nil
}

// sortByPage orders pdfcpu output names ("source_12_Im0.png") numerically by page.
func sortByPage(paths []string) {
	page := func(p string) int {
		m := pageNumber.FindStringSubmatch(filepath.Base(p))
		if m == nil {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := page(paths[i]), page(paths[j])
		if pi != pj {
			return pi < pj
		}
		return paths[i] < paths[j]
	})
}

func objectContentType(e models.GCSEvent) string {
	if ct, _, err := mime.ParseMediaType(e.ContentType); err == nil && ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mimeByExt(e.Name); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func mimeByExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	}
	ct, _, _ := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(name)))
	return ct
}

func (f *ImageRegistrarFunction) capturedAt(e models.GCSEvent) time.Time {
	if t, err := time.Parse(time.RFC3339, e.TimeCreated); err == nil {
		return t
	}
	return f.now()
}

func publishDate(logCtx *slog.Logger, raw string) string {
	if raw == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		logCtx.Warn("Ignoring malformed publish date.", "publishDate", raw)
		return ""
	}
	return raw
}

// imageID derives a stable id from the content location so redelivered events are no-ops.
func imageID(location string) string {
	sum := sha256.Sum256([]byte(location))
	return hex.EncodeToString(sum[:8])
}
