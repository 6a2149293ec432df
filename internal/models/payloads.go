package models

// These structs define the JSON payloads for HTTP requests and responses
// of the tender Cloud Functions.

// ArrangementEntry is one image in the operator's arrangement.
type ArrangementEntry struct {
	ImageID  string `json:"imageId"`
	ParentID string `json:"parentId,omitempty"`
	Weight   int    `json:"weight"`
	Selected bool   `json:"selected"`
}

// BatchRequest is the input for the tender-batch function.
type BatchRequest struct {
	BatchID string             `json:"batchId,omitempty"`
	Images  []ArrangementEntry `json:"images"`
}

// GroupMessage is a human-readable outcome line for one group.
type GroupMessage struct {
	GroupIndex int    `json:"groupIndex"`
	Message    string `json:"message"`
}

// BatchResponse is the output of the tender-batch function.
type BatchResponse struct {
	BatchID   string         `json:"batchId"`
	Processed int            `json:"processed"`
	Created   int            `json:"created"`
	Failed    int            `json:"failed"`
	Messages  []GroupMessage `json:"messages"`
	TenderIDs []string       `json:"tenderIds"`
	Skipped   []string       `json:"skippedImageIds,omitempty"`
	Cancelled bool           `json:"cancelled,omitempty"`
	Summary   string         `json:"summary"`
}

// CandidatesResponse lists unprocessed images available for arrangement.
type CandidatesResponse struct {
	Images []Image `json:"images"`
}

// SweepResponse is the output of the consistency-sweep function.
type SweepResponse struct {
	ProcessedUnreferenced []string `json:"processedUnreferenced"`
	ReferencedUnprocessed []string `json:"referencedUnprocessed"`
	MissingReferenced     []string `json:"missingReferenced"`
}

// GCSEvent is the payload of a Cloud Storage object finalize event.
type GCSEvent struct {
	Bucket      string            `json:"bucket"`
	Name        string            `json:"name"`
	ContentType string            `json:"contentType"`
	TimeCreated string            `json:"timeCreated"`
	Metadata    map[string]string `json:"metadata"`
}
