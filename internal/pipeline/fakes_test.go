package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/Lllllllleong/tenderflow/internal/ocr"
	"github.com/Lllllllleong/tenderflow/internal/repository"
)

// fakeBackend returns canned text keyed by file base name.
type fakeBackend struct {
	mu     sync.Mutex
	texts  map[string]string
	errs   map[string]error
	delay  map[string]time.Duration
	calls  []string
	limits []int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Extract(ctx context.Context, path, _ string, wordLimit int) (string, error) {
	name := filepath.Base(path)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.limits = append(f.limits, wordLimit)
	d := f.delay[name]
	f.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return ocr.LimitWords(f.texts[name], wordLimit), nil
}

// passthroughFetcher treats locations as local paths without touching the filesystem.
type passthroughFetcher struct{}

func (passthroughFetcher) Fetch(_ context.Context, location, _ string) (string, error) {
	return location, nil
}

// flakyRepo wraps the memory store and injects failures.
type flakyRepo struct {
	*repository.Memory
	failCreate bool
	failMark   map[string]bool
	failLoad   bool
}

func (r *flakyRepo) CreateTender(ctx context.Context, t *models.Tender) (string, error) {
	if r.failCreate {
		return "", errors.Join(repository.ErrRepository, errors.New("disk full"))
	}
	return r.Memory.CreateTender(ctx, t)
}

func (r *flakyRepo) SetImageProcessed(ctx context.Context, id string, processed bool) error {
	if r.failMark[id] {
		return errors.Join(repository.ErrRepository, errors.New("timeout"))
	}
	return r.Memory.SetImageProcessed(ctx, id, processed)
}

func (r *flakyRepo) LoadImages(ctx context.Context, ids []string) ([]models.Image, error) {
	if r.failLoad {
		return nil, errors.Join(repository.ErrRepository, errors.New("unavailable"))
	}
	return r.Memory.LoadImages(ctx, ids)
}
