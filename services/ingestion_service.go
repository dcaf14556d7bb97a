package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vectoread/server/models"
	"github.com/vectoread/server/zlog"
)

// IngestionService runs the full ingestion pipeline: extract, chunk, embed,
// index. Every call creates a fresh session with its own collection, so
// re-ingesting a document never mixes with an earlier index.
type IngestionService interface {
	IngestDocument(ctx context.Context, data []byte) (*models.IngestResult, error)
}

type ingestionServiceImpl struct {
	extractor ContentExtractor
	chunker   Chunker
	embedder  MultimodalEmbedder
	index     VectorIndex
	imageDir  string
}

func NewIngestionService(extractor ContentExtractor, chunker Chunker, embedder MultimodalEmbedder, index VectorIndex, imageDir string) IngestionService {
	return &ingestionServiceImpl{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		imageDir:  imageDir,
	}
}

// IngestDocument is all-or-nothing: any extraction or embedding failure
// aborts before anything is written, so a failed ingestion leaves no
// partial index behind.
func (s *ingestionServiceImpl) IngestDocument(ctx context.Context, data []byte) (*models.IngestResult, error) {
	sessionID := uuid.New().String()
	start := time.Now()
	zlog.Info("ingestion started", zap.String("session_id", sessionID), zap.Int("bytes", len(data)))

	content, err := s.extractor.Extract(data)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunker.Chunk(content.Text)
	if err != nil {
		return nil, fmt.Errorf("could not chunk extracted text: %w", err)
	}

	textEmbeddings, err := s.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("could not embed text chunks: %w", err)
	}

	pngs, err := encodeImages(content.Images)
	if err != nil {
		return nil, err
	}
	imageEmbeddings, err := s.embedder.EmbedImages(ctx, pngs)
	if err != nil {
		return nil, fmt.Errorf("could not embed images: %w", err)
	}

	tableTexts := make([]string, len(content.Tables))
	for i, table := range content.Tables {
		tableTexts[i] = table.Markdown
	}
	tableEmbeddings, err := s.embedder.EmbedTexts(ctx, tableTexts)
	if err != nil {
		return nil, fmt.Errorf("could not embed tables: %w", err)
	}

	imagePaths, err := s.saveImages(sessionID, pngs)
	if err != nil {
		return nil, err
	}

	items := make([]models.IndexedItem, 0, len(chunks)+len(content.Images)+len(content.Tables))
	for i, chunk := range chunks {
		items = append(items, models.IndexedItem{
			ID:        ItemID(sessionID, models.KindText, i),
			Embedding: textEmbeddings[i],
			Payload:   chunk,
			Kind:      models.KindText,
		})
	}
	for i, img := range content.Images {
		page := img.Page
		items = append(items, models.IndexedItem{
			ID:        ItemID(sessionID, models.KindImage, i),
			Embedding: imageEmbeddings[i],
			Payload:   imagePaths[i],
			Kind:      models.KindImage,
			Page:      &page,
		})
	}
	for i, table := range content.Tables {
		page := table.Page
		items = append(items, models.IndexedItem{
			ID:        ItemID(sessionID, models.KindTable, i),
			Embedding: tableEmbeddings[i],
			Payload:   table.Markdown,
			Kind:      models.KindTable,
			Page:      &page,
		})
	}

	count, err := s.index.Upsert(ctx, sessionID, items)
	if err != nil {
		// Nothing reached the index, so the janitor will never see this
		// session; reclaim its image directory here.
		if len(imagePaths) > 0 {
			if rmErr := os.RemoveAll(filepath.Join(s.imageDir, sessionID)); rmErr != nil {
				zlog.Warn("could not remove images of failed ingestion",
					zap.String("session_id", sessionID), zap.Error(rmErr))
			}
		}
		return nil, err
	}

	zlog.Info("ingestion finished",
		zap.String("session_id", sessionID),
		zap.Int("chunks", len(chunks)),
		zap.Int("images", len(content.Images)),
		zap.Int("tables", len(content.Tables)),
		zap.Duration("took", time.Since(start)))

	return &models.IngestResult{SessionID: sessionID, ItemCount: count}, nil
}

func encodeImages(images []models.PageImage) ([][]byte, error) {
	pngs := make([][]byte, 0, len(images))
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img.Image); err != nil {
			return nil, fmt.Errorf("could not encode image %d: %w", i, err)
		}
		pngs = append(pngs, buf.Bytes())
	}
	return pngs, nil
}

// saveImages writes every extracted image under a session-scoped directory
// and returns the stored paths, which become the indexed payloads.
func (s *ingestionServiceImpl) saveImages(sessionID string, pngs [][]byte) ([]string, error) {
	if len(pngs) == 0 {
		return nil, nil
	}
	dir := filepath.Join(s.imageDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create image directory %s: %w", dir, err)
	}
	paths := make([]string, 0, len(pngs))
	for i, data := range pngs {
		path := filepath.Join(dir, fmt.Sprintf("image_%d.png", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("could not save image %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
