package controller

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vectoread/server/models"
	"github.com/vectoread/server/services"
	"github.com/vectoread/server/zlog"
)

// RAGController handles the HTTP requests for the document QA API. It
// depends on the service layer for the actual pipeline logic.
type RAGController struct {
	ingestion     services.IngestionService
	rag           services.RAGService
	index         services.VectorIndex
	maxUploadSize int64
}

func NewRAGController(ingestion services.IngestionService, rag services.RAGService, index services.VectorIndex, maxUploadSizeMB int) *RAGController {
	return &RAGController{
		ingestion:     ingestion,
		rag:           rag,
		index:         index,
		maxUploadSize: int64(maxUploadSizeMB) << 20,
	}
}

// IngestDocument is the Gin handler for POST /api/v1/ingest. It accepts a
// multipart PDF upload and responds with the new session id and the number
// of indexed items.
func (c *RAGController) IngestDocument(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload: " + err.Error()})
		return
	}
	if strings.ToLower(filepath.Ext(fileHeader.Filename)) != ".pdf" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Please upload a PDF."})
		return
	}
	if c.maxUploadSize > 0 && fileHeader.Size > c.maxUploadSize {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the upload size limit."})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Could not open uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file: " + err.Error()})
		return
	}

	result, err := c.ingestion.IngestDocument(ctx.Request.Context(), data)
	if err != nil {
		status := http.StatusInternalServerError
		var decodeErr *services.DecodeError
		var collabErr *services.CollaboratorError
		switch {
		case errors.As(err, &decodeErr):
			status = http.StatusBadRequest
		case errors.As(err, &collabErr):
			status = http.StatusBadGateway
		}
		zlog.Error("ingestion failed", zap.String("file", fileHeader.Filename), zap.Error(err))
		ctx.JSON(status, gin.H{"error": "An error occurred during ingestion: " + err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, models.IngestResponse{
		Message:   "Successfully ingested '" + fileHeader.Filename + "'",
		ItemCount: result.ItemCount,
		SessionID: result.SessionID,
	})
}

// QueryDocuments is the Gin handler for POST /api/v1/query. It streams
// answer fragments to the client as they arrive; once streaming has begun
// any failure is reported inline as a terminal fragment.
func (c *RAGController) QueryDocuments(ctx *gin.Context) {
	var req models.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Status(http.StatusOK)

	for fragment := range c.rag.Query(ctx.Request.Context(), req.Query, req.SessionID) {
		if _, err := ctx.Writer.WriteString(fragment); err != nil {
			// Client went away; stop consuming the stream.
			return
		}
		ctx.Writer.Flush()
	}
}

// SessionCount is the Gin handler for GET /api/v1/sessions/:id/count.
func (c *RAGController) SessionCount(ctx *gin.Context) {
	sessionID := ctx.Param("id")
	count, err := c.index.Count(ctx.Request.Context(), sessionID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count indexed items"})
		return
	}
	ctx.JSON(http.StatusOK, models.CountResponse{SessionID: sessionID, ItemCount: count})
}
