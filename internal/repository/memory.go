package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Lllllllleong/tenderflow/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	images  map[string]models.Image
	tenders map[string]models.Tender
	order   []string
}

func NewMemory() *Memory {
	return &Memory{
		images:  make(map[string]models.Image),
		tenders: make(map[string]models.Tender),
	}
}

func (m *Memory) CreateImage(_ context.Context, img models.Image) error {
	if img.ID == "" {
		return fmt.Errorf("%w: image id is required", ErrRepository)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[img.ID]; ok {
		return fmt.Errorf("image %s: %w", img.ID, ErrAlreadyExists)
	}
	m.images[img.ID] = img
	return nil
}

func (m *Memory) LoadImages(_ context.Context, ids []string) ([]models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Image, 0, len(ids))
	for _, id := range ids {
		if img, ok := m.images[id]; ok {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *Memory) SetImageProcessed(_ context.Context, id string, processed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if img.Processed && !processed {
		return fmt.Errorf("image %s: %w", id, ErrProcessedIrreversible)
	}
	img.Processed = img.Processed || processed
	m.images[id] = img
	return nil
}

func (m *Memory) CreateTender(_ context.Context, t *models.Tender) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	stored := *t
	stored.ID = id
	stored.ImageIDs = append([]string(nil), t.ImageIDs...)
	m.tenders[id] = stored
	m.order = append(m.order, id)
	return id, nil
}

// Tenders returns stored tenders in creation order.
func (m *Memory) Tenders() []models.Tender {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Tender, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tenders[id])
	}
	return out
}

func (m *Memory) ListUnprocessedImages(_ context.Context, filter ImageFilter) ([]models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Image
	for _, img := range m.images {
		if !img.Processed && filter.matches(img) {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListProcessedImageIDs(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, img := range m.images {
		if img.Processed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListTenderImageRefs(context.Context) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make(map[string][]string, len(m.tenders))
	for id, t := range m.tenders {
		refs[id] = append([]string(nil), t.ImageIDs...)
	}
	return refs, nil
}

func (m *Memory) Close() error { return nil }
