package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vectoread/server/models"
	"github.com/vectoread/server/zlog"
)

// RAGService answers questions against a previously ingested session:
// embed the query, fetch the nearest items, enrich non-text items into
// readable context, and stream a grounded answer.
type RAGService interface {
	// Query returns a lazy, finite, non-restartable fragment stream. A
	// failure before generation yields exactly one descriptive fragment; a
	// mid-stream failure appends a terminal error fragment after the valid
	// prefix. The trailing marker is not retryable.
	Query(ctx context.Context, query, sessionID string) iter.Seq[string]
	// Retrieve embeds the query and returns the top-k nearest items.
	Retrieve(ctx context.Context, query, sessionID string, k int) ([]models.RetrievedItem, error)
}

const (
	contextSeparator   = "\n---\n"
	captionPlaceholder = "An image from the document that could not be described."
)

type ragServiceImpl struct {
	embedder  MultimodalEmbedder
	index     VectorIndex
	captioner ImageCaptioner
	generator AnswerStreamer
	topK      int
}

func NewRAGService(embedder MultimodalEmbedder, index VectorIndex, captioner ImageCaptioner, generator AnswerStreamer, topK int) RAGService {
	if topK <= 0 {
		topK = 10
	}
	return &ragServiceImpl{
		embedder:  embedder,
		index:     index,
		captioner: captioner,
		generator: generator,
		topK:      topK,
	}
}

// Retrieve implements the retrieval half of the query pipeline. A missing
// or empty session yields an empty result; only an uninitialized process
// is an error.
func (r *ragServiceImpl) Retrieve(ctx context.Context, query, sessionID string, k int) ([]models.RetrievedItem, error) {
	if r.embedder == nil || r.index == nil {
		return nil, ErrModelNotReady
	}
	if k <= 0 {
		k = r.topK
	}

	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, ErrModelNotReady
	}
	// The stored vectors were produced by this same embedder; a dimension
	// mismatch means the sidecar swapped models and distances would be
	// garbage.
	if d := r.embedder.Dimension(); d > 0 && len(vectors[0]) != d {
		return nil, &CollaboratorError{
			Op:  "embed",
			Err: fmt.Errorf("query embedding has %d dimensions, index expects %d", len(vectors[0]), d),
		}
	}

	return r.index.Query(ctx, sessionID, vectors[0], k)
}

// Query drives the per-request state machine: embedding, retrieving,
// assembling context, generating. Nothing is retried; a failure in the
// first two states short-circuits with a single descriptive fragment.
func (r *ragServiceImpl) Query(ctx context.Context, query, sessionID string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := time.Now()

		items, err := r.Retrieve(ctx, query, sessionID, r.topK)
		if err != nil {
			if errors.Is(err, ErrModelNotReady) {
				yield("Error: Models or DB not loaded. Please ingest a document first.")
			} else {
				yield(fmt.Sprintf("Error retrieving context: %v", err))
			}
			return
		}
		zlog.Info("retrieved context",
			zap.String("session_id", sessionID),
			zap.Int("items", len(items)),
			zap.Duration("took", time.Since(start)))

		formattedContext := r.assembleContext(ctx, items)
		userPrompt := fmt.Sprintf("CONTEXT:\n---\n%s\n---\n\nQUESTION:\n%s", formattedContext, query)

		for fragment, err := range r.generator.Stream(ctx, answerSystemPrompt, userPrompt) {
			if err != nil {
				zlog.Error("generation failed mid-stream", zap.String("session_id", sessionID), zap.Error(err))
				yield(fmt.Sprintf("Error generating answer: %v", err))
				return
			}
			if !yield(fragment) {
				return
			}
		}
	}
}

// assembleContext converts retrieved items into labeled content blocks in
// retrieval-rank order; downstream generation grounds itself in that order
// implicitly via proximity in the prompt. Images go through the captioner
// one at a time; a captioning failure degrades to a placeholder rather
// than aborting the query.
func (r *ragServiceImpl) assembleContext(ctx context.Context, items []models.RetrievedItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case models.KindImage:
			description, err := r.captioner.Describe(ctx, item.Payload)
			if err != nil {
				zlog.Warn("image captioning failed",
					zap.String("image", item.Payload),
					zap.Error(err))
				description = captionPlaceholder
			}
			parts = append(parts, "Source: Image Description\nContent: "+description)
		case models.KindTable:
			table := strings.ReplaceAll(html.UnescapeString(item.Payload), "<br>", "\n")
			parts = append(parts, "Source: Table\nContent:\n"+table)
		default:
			parts = append(parts, "Source: Text Chunk\nContent: "+item.Payload)
		}
	}
	return strings.Join(parts, contextSeparator)
}
