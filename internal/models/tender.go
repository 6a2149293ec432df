package models

import "time"

// WorkflowState values for newly created tenders.
const (
	StateNeedsReview = "needs_review"
)

// TenderDraft is the structured result of parsing OCR text. It is not persisted directly.
type TenderDraft struct {
	Title       string
	Body        string
	Summary     string
	OpeningDate string
	ClosingDate string
	SourceID    string
	PublishDate string
}

// Tender is the persisted record created from one image group.
type Tender struct {
	ID            string    `firestore:"-" json:"id"`
	Title         string    `firestore:"title" json:"title"`
	Body          string    `firestore:"body" json:"body"`
	Summary       string    `firestore:"summary" json:"summary"`
	OpeningDate   string    `firestore:"openingDate,omitempty" json:"openingDate,omitempty"`
	ClosingDate   string    `firestore:"closingDate,omitempty" json:"closingDate,omitempty"`
	SourceID      string    `firestore:"sourceId,omitempty" json:"sourceId,omitempty"`
	PublishDate   string    `firestore:"publishDate,omitempty" json:"publishDate,omitempty"`
	WorkflowState string    `firestore:"workflowState" json:"workflowState"`
	Published     bool      `firestore:"published" json:"published"`
	ImageIDs      []string  `firestore:"imageIds" json:"imageIds"`
	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
}

// NewTender builds an unpublished tender awaiting review from a draft.
func NewTender(d TenderDraft, imageIDs []string, now time.Time) *Tender {
	ids := make([]string, len(imageIDs))
	copy(ids, imageIDs)
	return &Tender{
		Title:         d.Title,
		Body:          d.Body,
		Summary:       d.Summary,
		OpeningDate:   d.OpeningDate,
		ClosingDate:   d.ClosingDate,
		SourceID:      d.SourceID,
		PublishDate:   d.PublishDate,
		WorkflowState: StateNeedsReview,
		Published:     false,
		ImageIDs:      ids,
		CreatedAt:     now,
	}
}
