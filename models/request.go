package models

// QueryRequest is the body of POST /api/v1/query. The session id scopes the
// search to one previously ingested document.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}
