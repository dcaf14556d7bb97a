package services

import (
	"context"
	"hash/fnv"
	"iter"
	"sort"
	"sync"

	"github.com/vectoread/server/models"
)

// memoryIndex is a brute-force in-memory VectorIndex used as a stand-in
// for the Chroma backend: upsert by id, L2 distance, strict per-session
// isolation.
type memoryIndex struct {
	mu        sync.RWMutex
	sessions  map[string]map[string]models.IndexedItem
	upsertErr error
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{sessions: make(map[string]map[string]models.IndexedItem)}
}

func (m *memoryIndex) Upsert(_ context.Context, sessionID string, items []models.IndexedItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	collection, ok := m.sessions[sessionID]
	if !ok {
		collection = make(map[string]models.IndexedItem)
		m.sessions[sessionID] = collection
	}
	for _, item := range items {
		collection[item.ID] = item
	}
	return len(collection), nil
}

func (m *memoryIndex) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID]), nil
}

func (m *memoryIndex) Query(_ context.Context, sessionID string, vector []float32, k int) ([]models.RetrievedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	collection, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	results := make([]models.RetrievedItem, 0, len(collection))
	for _, item := range collection {
		results = append(results, models.RetrievedItem{
			ID:       item.ID,
			Payload:  item.Payload,
			Kind:     item.Kind,
			Page:     item.Page,
			Distance: l2Distance(item.Embedding, vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *memoryIndex) Has(_ context.Context, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

func (m *memoryIndex) Drop(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *memoryIndex) items(sessionID string) []models.IndexedItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []models.IndexedItem
	for _, item := range m.sessions[sessionID] {
		items = append(items, item)
	}
	return items
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// fakeEmbedder is a deterministic MultimodalEmbedder: known inputs come
// from the vectors map, everything else hashes to a stable 4-dim vector.
type fakeEmbedder struct {
	vectors    map[string][]float32
	textErr    error
	imageErr   error
	textCalls  int
	imageCalls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if f.textErr != nil {
		return nil, f.textErr
	}
	f.textCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vectorFor(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedImages(_ context.Context, pngs [][]byte) ([][]float32, error) {
	if len(pngs) == 0 {
		return nil, nil
	}
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	f.imageCalls++
	out := make([][]float32, len(pngs))
	for i, png := range pngs {
		out[i] = f.vectorFor(string(png))
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

func (f *fakeEmbedder) vectorFor(input string) []float32 {
	if v, ok := f.vectors[input]; ok {
		return v
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(input))
	sum := h.Sum32()
	return []float32{
		float32(sum % 97),
		float32(sum % 89),
		float32(sum % 83),
		float32(sum % 79),
	}
}

// fakeCaptioner records which image paths were described.
type fakeCaptioner struct {
	description string
	err         error
	seen        []string
}

func (f *fakeCaptioner) Describe(_ context.Context, imagePath string) (string, error) {
	f.seen = append(f.seen, imagePath)
	if f.err != nil {
		return "", f.err
	}
	return f.description, nil
}

// fakeStreamer yields its fragments, optionally failing after failAfter of
// them (0 means before the first fragment, -1 means never).
type fakeStreamer struct {
	fragments []string
	failAfter int
	err       error
}

func (f *fakeStreamer) Stream(context.Context, string, string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, fragment := range f.fragments {
			if f.err != nil && f.failAfter >= 0 && i >= f.failAfter {
				yield("", f.err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
		if f.err != nil && f.failAfter >= 0 && f.failAfter >= len(f.fragments) {
			yield("", f.err)
		}
	}
}

// fakeExtractor returns canned extraction output.
type fakeExtractor struct {
	content *models.ExtractedContent
	err     error
}

func (f *fakeExtractor) Extract([]byte) (*models.ExtractedContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

func collect(seq iter.Seq[string]) []string {
	var out []string
	for fragment := range seq {
		out = append(out, fragment)
	}
	return out
}

var _ VectorIndex = (*memoryIndex)(nil)
var _ MultimodalEmbedder = (*fakeEmbedder)(nil)
var _ ImageCaptioner = (*fakeCaptioner)(nil)
var _ AnswerStreamer = (*fakeStreamer)(nil)
var _ ContentExtractor = (*fakeExtractor)(nil)
