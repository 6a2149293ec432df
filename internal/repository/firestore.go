package repository

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/tenderflow/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore stores images and tenders as documents. Image document ids are image ids.
type Firestore struct {
	client  *firestore.Client
	images  string
	tenders string
}

// NewFirestore wraps an existing client. Empty collection names fall back to defaults.
func NewFirestore(client *firestore.Client, imagesCollection, tendersCollection string) *Firestore {
	if imagesCollection == "" {
		imagesCollection = "images"
	}
	if tendersCollection == "" {
		tendersCollection = "tenders"
	}
	return &Firestore{client: client, images: imagesCollection, tenders: tendersCollection}
}

func (s *Firestore) CreateImage(ctx context.Context, img models.Image) error {
	if img.ID == "" {
		return fmt.Errorf("%w: image id is required", ErrRepository)
	}
	_, err := s.client.Collection(s.images).Doc(img.ID).Create(ctx, img)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("image %s: %w", img.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to create image %s: %v", ErrRepository, img.ID, err)
	}
	return nil
}

func (s *Firestore) LoadImages(ctx context.Context, ids []string) ([]models.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.client.Collection(s.images).Doc(id)
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load images: %v", ErrRepository, err)
	}
	out := make([]models.Image, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		img, err := decodeImage(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func (s *Firestore) SetImageProcessed(ctx context.Context, id string, processed bool) error {
	ref := s.client.Collection(s.images).Doc(id)
	var outcome error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		outcome = nil
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			outcome = fmt.Errorf("image %s: %w", id, ErrNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		current, err := snap.DataAt("processed")
		if err != nil {
			return err
		}
		already, _ := current.(bool)
		switch {
		case already && !processed:
			outcome = fmt.Errorf("image %s: %w", id, ErrProcessedIrreversible)
			return nil
		case already || !processed:
			return nil
		}
		return tx.Update(ref, []firestore.Update{{Path: "processed", Value: true}})
	})
	if err != nil {
		return fmt.Errorf("%w: failed to mark image %s processed: %v", ErrRepository, id, err)
	}
	return outcome
}

func (s *Firestore) CreateTender(ctx context.Context, t *models.Tender) (string, error) {
	ref, _, err := s.client.Collection(s.tenders).Add(ctx, t)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create tender: %v", ErrRepository, err)
	}
	return ref.ID, nil
}

func (s *Firestore) ListUnprocessedImages(ctx context.Context, filter ImageFilter) ([]models.Image, error) {
	q := s.client.Collection(s.images).Where("processed", "==", false)
	if filter.SourceID != "" {
		q = q.Where("sourceId", "==", filter.SourceID)
	}
	if filter.PublishDate != "" {
		q = q.Where("publishDate", "==", filter.PublishDate)
	}
	it := q.Documents(ctx)
	defer it.Stop()

	var out []models.Image
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list unprocessed images: %v", ErrRepository, err)
		}
		img, err := decodeImage(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	// Sorted here so the query needs no composite index.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Firestore) ListProcessedImageIDs(ctx context.Context) ([]string, error) {
	it := s.client.Collection(s.images).Where("processed", "==", true).Select().Documents(ctx)
	defer it.Stop()

	var ids []string
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list processed images: %v", ErrRepository, err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Firestore) ListTenderImageRefs(ctx context.Context) (map[string][]string, error) {
	it := s.client.Collection(s.tenders).Select("imageIds").Documents(ctx)
	defer it.Stop()

	refs := make(map[string][]string)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list tenders: %v", ErrRepository, err)
		}
		var doc struct {
			ImageIDs []string `firestore:"imageIds"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("%w: failed to decode tender %s: %v", ErrRepository, snap.Ref.ID, err)
		}
		refs[snap.Ref.ID] = doc.ImageIDs
	}
	return refs, nil
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func decodeImage(snap *firestore.DocumentSnapshot) (models.Image, error) {
	var img models.Image
	if err := snap.DataTo(&img); err != nil {
		return models.Image{}, fmt.Errorf("%w: failed to decode image %s: %v", ErrRepository, snap.Ref.ID, err)
	}
	img.ID = snap.Ref.ID
	return img, nil
}

