package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/vectoread/server/models"
)

// MultimodalEmbedder maps text chunks, table markdown, and PNG images into
// one shared vector space. Exactly one instance serves both ingestion and
// query embedding so stored and query vectors stay comparable.
type MultimodalEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImages(ctx context.Context, pngs [][]byte) ([][]float32, error)
	Dimension() int
}

// ClipEmbedder calls a CLIP embedding sidecar over HTTP. The sidecar runs
// the actual model; this client only does the wire round trip and records
// the vector dimensionality from the first successful response.
type ClipEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string

	mu        sync.Mutex
	dimension int
}

func NewClipEmbedder(client *http.Client, baseURL, model string) *ClipEmbedder {
	return &ClipEmbedder{
		httpClient: client,
		baseURL:    baseURL,
		model:      model,
	}
}

// EmbedTexts embeds a batch of strings. An empty batch yields an empty
// result without touching the sidecar.
func (e *ClipEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody, err := json.Marshal(models.ClipTextRequest{
		Model:  e.model,
		Inputs: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal clip text request: %w", err)
	}
	return e.post(ctx, "/embed/text", reqBody, len(texts))
}

// EmbedImages embeds a batch of PNG-encoded images, base64 on the wire.
// An empty batch yields an empty result without touching the sidecar.
func (e *ClipEmbedder) EmbedImages(ctx context.Context, pngs [][]byte) ([][]float32, error) {
	if len(pngs) == 0 {
		return nil, nil
	}
	encoded := make([]string, len(pngs))
	for i, png := range pngs {
		encoded[i] = base64.StdEncoding.EncodeToString(png)
	}
	reqBody, err := json.Marshal(models.ClipImageRequest{
		Model:  e.model,
		Images: encoded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal clip image request: %w", err)
	}
	return e.post(ctx, "/embed/image", reqBody, len(pngs))
}

// Dimension reports the vector size of the first successful call, or 0 if
// the embedder has not produced anything yet.
func (e *ClipEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *ClipEmbedder) post(ctx context.Context, path string, body []byte, want int) ([][]float32, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create clip http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &CollaboratorError{Op: "embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &CollaboratorError{
			Op:  "embed",
			Err: fmt.Errorf("clip sidecar returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var clipResp models.ClipEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&clipResp); err != nil {
		return nil, &CollaboratorError{Op: "embed", Err: fmt.Errorf("failed to decode clip response: %w", err)}
	}
	if len(clipResp.Embeddings) != want {
		return nil, &CollaboratorError{
			Op:  "embed",
			Err: fmt.Errorf("clip sidecar returned %d vectors for %d inputs", len(clipResp.Embeddings), want),
		}
	}

	if len(clipResp.Embeddings) > 0 && len(clipResp.Embeddings[0]) > 0 {
		e.mu.Lock()
		if e.dimension == 0 {
			e.dimension = len(clipResp.Embeddings[0])
		}
		e.mu.Unlock()
	}
	return clipResp.Embeddings, nil
}
