package models

import (
	"strings"
	"time"
)

// Image is a single scanned page registered in the content repository.
// Processed only ever moves from false to true.
type Image struct {
	ID          string    `firestore:"-" json:"id"`
	Label       string    `firestore:"label,omitempty" json:"label,omitempty"`
	Location    string    `firestore:"location" json:"location"`
	MIMEType    string    `firestore:"mimeType" json:"mimeType"`
	CapturedAt  time.Time `firestore:"capturedAt" json:"capturedAt"`
	Processed   bool      `firestore:"processed" json:"processed"`
	SourceID    string    `firestore:"sourceId,omitempty" json:"sourceId,omitempty"`
	PublishDate string    `firestore:"publishDate,omitempty" json:"publishDate,omitempty"`
	ParentID    string    `firestore:"parentId,omitempty" json:"parentId,omitempty"`
}

// IsImage reports whether the media item carries raster image content.
func (i Image) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(i.MIMEType), "image/")
}

// Source is the publication or organization a tender notice came from.
type Source struct {
	ID   string `firestore:"-" json:"id"`
	Name string `firestore:"name" json:"name"`
}
