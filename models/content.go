package models

import "image"

// ContentKind tells the retrieval pipeline how an indexed payload should be
// turned back into readable context: text and tables carry their content
// inline, images carry the path of the extracted PNG.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindTable ContentKind = "table"
)

// PageImage is a raster image extracted from a document page, paired with
// the 1-based page it was found on.
type PageImage struct {
	Image image.Image
	Page  int
}

// PageTable is a tabular region serialized to markdown, paired with the
// 1-based page it was found on.
type PageTable struct {
	Markdown string
	Page     int
}

// ExtractedContent is the full multimodal output of a single document
// extraction. Images and tables keep their encounter order.
type ExtractedContent struct {
	Text   string
	Images []PageImage
	Tables []PageTable
}

// IndexedItem is one (id, vector, payload, metadata) tuple written to the
// vector index. IDs are prefixed with the owning session id so two sessions
// can never collide even if collections were ever shared.
type IndexedItem struct {
	ID        string
	Embedding []float32
	Payload   string
	Kind      ContentKind
	Page      *int
}

// RetrievedItem is one nearest-neighbor hit, distance ascending.
type RetrievedItem struct {
	ID       string
	Payload  string
	Kind     ContentKind
	Page     *int
	Distance float64
}

// IngestResult reports what a completed ingestion produced.
type IngestResult struct {
	SessionID string
	ItemCount int
}
