package models

// ClipTextRequest is used to structure a text batch request to the CLIP
// embedding sidecar.
type ClipTextRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

// ClipImageRequest carries a batch of base64-encoded PNG images to embed.
type ClipImageRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

// ClipEmbedResponse is used to parse the vectors from the sidecar response.
// All vectors come from the same cross-modal space regardless of input kind.
type ClipEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
