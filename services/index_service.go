package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	"go.uber.org/zap"

	"github.com/vectoread/server/models"
	"github.com/vectoread/server/zlog"
)

// VectorIndex persists embedded items and answers nearest-neighbor queries,
// strictly scoped per session: a query against one session can never see
// another session's items.
type VectorIndex interface {
	// Upsert writes or overwrites the batch under the session's collection,
	// creating the collection if absent, and reports the exact number of
	// items the collection holds afterwards.
	Upsert(ctx context.Context, sessionID string, items []models.IndexedItem) (int, error)
	// Count reports how many items the session currently holds; an unknown
	// session counts as zero, not as an error.
	Count(ctx context.Context, sessionID string) (int, error)
	// Query returns up to k nearest items by vector distance, ascending.
	// An empty or missing collection yields an empty result, not an error.
	Query(ctx context.Context, sessionID string, vector []float32, k int) ([]models.RetrievedItem, error)
	// Has lazily resolves the session's collection. False means "ingest
	// first", never a fatal condition.
	Has(ctx context.Context, sessionID string) bool
	// Drop deletes the session's collection if it exists.
	Drop(ctx context.Context, sessionID string) error
}

// ChromaIndex implements VectorIndex on a Chroma server, one collection per
// session. It also remembers when each session was last touched so the
// cleanup janitor can expire idle ones.
type ChromaIndex struct {
	client chromago.Client

	mu       sync.Mutex
	lastUsed map[string]time.Time
}

func NewChromaIndex(client chromago.Client) *ChromaIndex {
	return &ChromaIndex{
		client:   client,
		lastUsed: make(map[string]time.Time),
	}
}

const sessionCollectionPrefix = "session_"

func collectionName(sessionID string) string {
	return sessionCollectionPrefix + sessionID
}

// isCollectionNotFound reports whether err is the backend saying the
// collection does not exist, as opposed to a transport or server failure.
// Chroma returns a typed error carrying the HTTP status of the failed call.
func isCollectionNotFound(err error) bool {
	var chromaErr *chhttp.ChromaError
	return errors.As(err, &chromaErr) && chromaErr.ErrorCode == http.StatusNotFound
}

func (x *ChromaIndex) Upsert(ctx context.Context, sessionID string, items []models.IndexedItem) (int, error) {
	collection, err := x.client.GetOrCreateCollection(
		ctx,
		collectionName(sessionID),
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("session_id", sessionID),
				chromago.NewStringAttribute("created_by", "ingestion_service"),
			),
		),
	)
	if err != nil {
		return 0, &IndexError{Op: "get or create collection", Err: err}
	}

	ids := make([]chromago.DocumentID, 0, len(items))
	docs := make([]string, 0, len(items))
	embs := make([]embeddings.Embedding, 0, len(items))
	metas := make([]chromago.DocumentMetadata, 0, len(items))
	for _, item := range items {
		ids = append(ids, chromago.DocumentID(item.ID))
		docs = append(docs, item.Payload)
		embs = append(embs, embeddings.NewEmbeddingFromFloat32(item.Embedding))
		attrs := []*chromago.MetaAttribute{
			chromago.NewStringAttribute("kind", string(item.Kind)),
		}
		if item.Page != nil {
			attrs = append(attrs, chromago.NewIntAttribute("page", int64(*item.Page)))
		}
		metas = append(metas, chromago.NewDocumentMetadata(attrs...))
	}

	if len(ids) > 0 {
		err = collection.Upsert(ctx,
			chromago.WithIDs(ids...),
			chromago.WithTexts(docs...),
			chromago.WithEmbeddings(embs...),
			chromago.WithMetadatas(metas...),
		)
		if err != nil {
			return 0, &IndexError{Op: "upsert", Err: err}
		}
	}

	count, err := collection.Count(ctx)
	if err != nil {
		return 0, &IndexError{Op: "count", Err: err}
	}

	x.touch(sessionID)
	zlog.Info("indexed batch",
		zap.String("session_id", sessionID),
		zap.Int("batch", len(items)),
		zap.Int("total", int(count)))
	return int(count), nil
}

func (x *ChromaIndex) Count(ctx context.Context, sessionID string) (int, error) {
	collection, err := x.client.GetCollection(ctx, collectionName(sessionID))
	if err != nil {
		if isCollectionNotFound(err) {
			return 0, nil
		}
		return 0, &IndexError{Op: "get collection", Err: err}
	}
	count, err := collection.Count(ctx)
	if err != nil {
		return 0, &IndexError{Op: "count", Err: err}
	}
	return int(count), nil
}

func (x *ChromaIndex) Query(ctx context.Context, sessionID string, vector []float32, k int) ([]models.RetrievedItem, error) {
	collection, err := x.client.GetCollection(ctx, collectionName(sessionID))
	if err != nil {
		if isCollectionNotFound(err) {
			// Unseeded session: legitimate empty result, not an error.
			return nil, nil
		}
		return nil, &IndexError{Op: "get collection", Err: err}
	}

	results, err := collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, &IndexError{Op: "query", Err: err}
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}

	items := make([]models.RetrievedItem, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		item := models.RetrievedItem{
			Payload: doc.ContentString(),
			Kind:    models.KindText,
		}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			item.ID = string(idGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			item.Distance = float64(distGroups[0][i])
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			kind, page := decodeItemMetadata(metaGroups[0][i])
			if kind != "" {
				item.Kind = kind
			}
			item.Page = page
		}
		items = append(items, item)
	}

	x.touch(sessionID)
	return items, nil
}

func (x *ChromaIndex) Has(ctx context.Context, sessionID string) bool {
	_, err := x.client.GetCollection(ctx, collectionName(sessionID))
	return err == nil
}

func (x *ChromaIndex) Drop(ctx context.Context, sessionID string) error {
	if err := x.client.DeleteCollection(ctx, collectionName(sessionID)); err != nil {
		return &IndexError{Op: "delete collection", Err: err}
	}
	x.mu.Lock()
	delete(x.lastUsed, sessionID)
	x.mu.Unlock()
	return nil
}

// AdoptExisting registers every session collection already present in the
// store that this process has not seen yet, stamping it with the current
// time. Collections left behind by a crashed or restarted process expire
// one TTL after adoption instead of leaking forever.
func (x *ChromaIndex) AdoptExisting(ctx context.Context) error {
	collections, err := x.client.ListCollections(ctx)
	if err != nil {
		return &IndexError{Op: "list collections", Err: err}
	}

	now := time.Now()
	adopted := 0
	x.mu.Lock()
	for _, collection := range collections {
		name := collection.Name()
		if !strings.HasPrefix(name, sessionCollectionPrefix) {
			continue
		}
		sessionID := strings.TrimPrefix(name, sessionCollectionPrefix)
		if _, ok := x.lastUsed[sessionID]; !ok {
			x.lastUsed[sessionID] = now
			adopted++
		}
	}
	x.mu.Unlock()

	if adopted > 0 {
		zlog.Info("adopted existing session collections", zap.Int("count", adopted))
	}
	return nil
}

// IdleSessions returns tracked sessions that have not been touched within
// ttl. The janitor adopts untracked collections before each sweep, so
// sessions from an earlier process are covered too.
func (x *ChromaIndex) IdleSessions(ttl time.Duration) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	var idle []string
	for sessionID, used := range x.lastUsed {
		if used.Before(cutoff) {
			idle = append(idle, sessionID)
		}
	}
	return idle
}

func (x *ChromaIndex) touch(sessionID string) {
	x.mu.Lock()
	x.lastUsed[sessionID] = time.Now()
	x.mu.Unlock()
}

// decodeItemMetadata converts a chroma DocumentMetadata into our kind/page
// pair. The metadata struct has no map accessor, so it goes through a JSON
// round trip.
func decodeItemMetadata(metadata chromago.DocumentMetadata) (models.ContentKind, *int) {
	if metadata == nil {
		return "", nil
	}
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		zlog.Warn("could not marshal item metadata", zap.Error(err))
		return "", nil
	}
	var metaMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metaMap); err != nil {
		zlog.Warn("could not unmarshal item metadata", zap.Error(err))
		return "", nil
	}

	var kind models.ContentKind
	if v, ok := metaMap["kind"].(string); ok {
		kind = models.ContentKind(v)
	}
	var page *int
	if v, ok := metaMap["page"].(float64); ok {
		p := int(v)
		page = &p
	}
	return kind, page
}

// ItemID builds the session-namespaced id for an indexed item. The prefix
// guarantees ids from two sessions can never collide.
func ItemID(sessionID string, kind models.ContentKind, n int) string {
	return fmt.Sprintf("%s:%s:%d", sessionID, kind, n)
}
