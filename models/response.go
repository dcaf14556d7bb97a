package models

// IngestResponse is returned by POST /api/v1/ingest once the document is
// fully indexed.
type IngestResponse struct {
	Message   string `json:"message"`
	ItemCount int    `json:"item_count"`
	SessionID string `json:"session_id"`
}

// CountResponse reports how many items a session currently holds.
type CountResponse struct {
	SessionID string `json:"session_id"`
	ItemCount int    `json:"item_count"`
}
