package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectoread/server/models"
)

func seedSession(t *testing.T, index *memoryIndex, sessionID string, items ...models.IndexedItem) {
	t.Helper()
	_, err := index.Upsert(context.Background(), sessionID, items)
	require.NoError(t, err)
}

func TestQueryBeforeInitializationFails(t *testing.T) {
	rag := NewRAGService(nil, nil, nil, nil, 10)

	fragments := collect(rag.Query(context.Background(), "what is attention?", "session-a"))

	require.Len(t, fragments, 1, "a not-ready query must produce a single descriptive fragment")
	assert.Contains(t, fragments[0], "ingest a document first")
}

func TestRetrieveEmptySessionReturnsEmptyResult(t *testing.T) {
	rag := NewRAGService(newFakeEmbedder(), newMemoryIndex(), &fakeCaptioner{}, &fakeStreamer{}, 10)

	items, err := rag.Retrieve(context.Background(), "anything", "never-ingested", 10)

	require.NoError(t, err, "an unseeded session is not an error")
	assert.Empty(t, items)
}

func TestRetrieveRoundTripRankZero(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.vectors["the cat sat on the mat"] = []float32{1, 0, 0, 0}
	embedder.vectors["transformers use attention"] = []float32{0, 1, 0, 0}
	embedder.vectors["what do transformers use?"] = []float32{0, 0.9, 0.1, 0}

	index := newMemoryIndex()
	seedSession(t, index, "session-a",
		models.IndexedItem{ID: "session-a:text:0", Embedding: []float32{1, 0, 0, 0}, Payload: "the cat sat on the mat", Kind: models.KindText},
		models.IndexedItem{ID: "session-a:text:1", Embedding: []float32{0, 1, 0, 0}, Payload: "transformers use attention", Kind: models.KindText},
	)
	rag := NewRAGService(embedder, index, &fakeCaptioner{}, &fakeStreamer{}, 10)

	items, err := rag.Retrieve(context.Background(), "what do transformers use?", "session-a", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "transformers use attention", items[0].Payload, "the closest item must rank first")
	assert.Less(t, items[0].Distance, items[1].Distance)
}

func TestRetrieveSessionIsolation(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newMemoryIndex()
	seedSession(t, index, "session-a",
		models.IndexedItem{ID: "session-a:text:0", Embedding: []float32{1, 0, 0, 0}, Payload: "alpha", Kind: models.KindText})
	seedSession(t, index, "session-b",
		models.IndexedItem{ID: "session-b:text:0", Embedding: []float32{0, 1, 0, 0}, Payload: "beta", Kind: models.KindText})
	rag := NewRAGService(embedder, index, &fakeCaptioner{}, &fakeStreamer{}, 10)

	itemsA, err := rag.Retrieve(context.Background(), "anything", "session-a", 10)
	require.NoError(t, err)
	itemsB, err := rag.Retrieve(context.Background(), "anything", "session-b", 10)
	require.NoError(t, err)

	require.Len(t, itemsA, 1)
	require.Len(t, itemsB, 1)
	assert.Equal(t, "alpha", itemsA[0].Payload)
	assert.Equal(t, "beta", itemsB[0].Payload)
}

func TestRetrieveDimensionMismatchFails(t *testing.T) {
	embedder := newFakeEmbedder()
	// The embedder reports 4-dimensional vectors; a 3-dimensional query
	// embedding means the sidecar no longer matches the stored index.
	embedder.vectors["what is attention?"] = []float32{1, 0, 0}
	rag := NewRAGService(embedder, newMemoryIndex(), &fakeCaptioner{}, &fakeStreamer{}, 10)

	_, err := rag.Retrieve(context.Background(), "what is attention?", "session-a", 10)

	var collabErr *CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	assert.Equal(t, "embed", collabErr.Op)
}

func TestAssembleContextLabelsAndOrder(t *testing.T) {
	captioner := &fakeCaptioner{description: "A diagram of the transformer architecture."}
	rag := &ragServiceImpl{captioner: captioner}

	got := rag.assembleContext(context.Background(), []models.RetrievedItem{
		{Payload: "first chunk", Kind: models.KindText},
		{Payload: "/tmp/img/image_0.png", Kind: models.KindImage},
		{Payload: "|Model|BLEU|", Kind: models.KindTable},
	})

	blocks := []string{
		"Source: Text Chunk\nContent: first chunk",
		"Source: Image Description\nContent: A diagram of the transformer architecture.",
		"Source: Table\nContent:\n|Model|BLEU|",
	}
	assert.Equal(t, blocks[0]+contextSeparator+blocks[1]+contextSeparator+blocks[2], got)
	assert.Equal(t, []string{"/tmp/img/image_0.png"}, captioner.seen)
}

func TestAssembleContextUnescapesTables(t *testing.T) {
	rag := &ragServiceImpl{}

	got := rag.assembleContext(context.Background(), []models.RetrievedItem{
		{Payload: "A<br>B", Kind: models.KindTable},
	})
	assert.Equal(t, "Source: Table\nContent:\nA\nB", got)

	got = rag.assembleContext(context.Background(), []models.RetrievedItem{
		{Payload: "Smith &amp; Jones<br>1 &lt; 2", Kind: models.KindTable},
	})
	assert.Equal(t, "Source: Table\nContent:\nSmith & Jones\n1 < 2", got)
}

func TestAssembleContextCaptionFailureDegrades(t *testing.T) {
	captioner := &fakeCaptioner{err: errors.New("vision backend down")}
	rag := &ragServiceImpl{captioner: captioner}

	got := rag.assembleContext(context.Background(), []models.RetrievedItem{
		{Payload: "/tmp/img/image_0.png", Kind: models.KindImage},
		{Payload: "still here", Kind: models.KindText},
	})

	assert.Contains(t, got, captionPlaceholder, "captioning failure must degrade, not abort")
	assert.Contains(t, got, "still here")
}

func TestQueryStreamsFragments(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Attention ", "is ", "all you need."}, failAfter: -1}
	rag := NewRAGService(newFakeEmbedder(), newMemoryIndex(), &fakeCaptioner{}, streamer, 10)

	fragments := collect(rag.Query(context.Background(), "summarize", "session-a"))

	assert.Equal(t, []string{"Attention ", "is ", "all you need."}, fragments)
}

func TestQueryGenerationFailsBeforeFirstFragment(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("backend unavailable"), failAfter: 0}
	rag := NewRAGService(newFakeEmbedder(), newMemoryIndex(), &fakeCaptioner{}, streamer, 10)

	fragments := collect(rag.Query(context.Background(), "summarize", "session-a"))

	require.Len(t, fragments, 1)
	assert.Contains(t, fragments[0], "Error generating answer")
}

func TestQueryGenerationFailsMidStream(t *testing.T) {
	streamer := &fakeStreamer{
		fragments: []string{"The transformer ", "replaces recurrence "},
		err:       errors.New("connection reset"),
		failAfter: 2,
	}
	rag := NewRAGService(newFakeEmbedder(), newMemoryIndex(), &fakeCaptioner{}, streamer, 10)

	fragments := collect(rag.Query(context.Background(), "summarize", "session-a"))

	require.Len(t, fragments, 3, "already-yielded fragments stay valid, then one terminal error fragment")
	assert.Equal(t, "The transformer ", fragments[0])
	assert.Equal(t, "replaces recurrence ", fragments[1])
	assert.Contains(t, fragments[2], "Error generating answer")
}
