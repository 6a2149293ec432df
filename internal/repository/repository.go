// Package repository persists images and tenders.
package repository

import (
	"context"
	"errors"

	"github.com/Lllllllleong/tenderflow/internal/models"
)

var (
	// ErrRepository wraps every storage I/O failure.
	ErrRepository = errors.New("repository error")
	// ErrNotFound is returned for unknown image ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering an image id twice.
	ErrAlreadyExists = errors.New("already exists")
	// ErrProcessedIrreversible is returned when asked to clear a processed flag.
	ErrProcessedIrreversible = errors.New("processed flag cannot be cleared")
)

// Repository is what a pipeline job needs from the content store.
type Repository interface {
	// CreateTender persists t and returns its new id.
	CreateTender(ctx context.Context, t *models.Tender) (string, error)
	// LoadImages returns the images that exist among ids, in the order of ids.
	LoadImages(ctx context.Context, ids []string) ([]models.Image, error)
	// SetImageProcessed marks an image. Setting true is idempotent; clearing a set flag fails.
	SetImageProcessed(ctx context.Context, id string, processed bool) error
}

// Auditor lists the cross-references checked by the consistency sweep.
type Auditor interface {
	ListProcessedImageIDs(ctx context.Context) ([]string, error)
	// ListTenderImageRefs maps tender ids to the image ids they were built from.
	ListTenderImageRefs(ctx context.Context) (map[string][]string, error)
	LoadImages(ctx context.Context, ids []string) ([]models.Image, error)
}

// ImageFilter narrows ListUnprocessedImages. Empty fields match everything.
type ImageFilter struct {
	SourceID    string
	PublishDate string
}

func (f ImageFilter) matches(img models.Image) bool {
	if f.SourceID != "" && img.SourceID != f.SourceID {
		return false
	}
	if f.PublishDate != "" && img.PublishDate != f.PublishDate {
		return false
	}
	return true
}

// Store is the full content repository used by the services.
type Store interface {
	Repository
	Auditor
	// CreateImage registers a new image. img.ID must be set.
	CreateImage(ctx context.Context, img models.Image) error
	// ListUnprocessedImages returns unprocessed images oldest first.
	ListUnprocessedImages(ctx context.Context, filter ImageFilter) ([]models.Image, error)
	Close() error
}
