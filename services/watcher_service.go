package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vectoread/server/zlog"
)

// WatcherService ingests PDF documents dropped into a watched directory,
// each into a fresh session. A single drop usually fires several fsnotify
// events (create plus one write per syscall), so files are deduped by
// content hash: a path is only re-ingested when its bytes actually changed.
type WatcherService struct {
	ingestion IngestionService
	dir       string

	mu       sync.Mutex
	ingested map[string]string // path -> content hash of the last ingested version
}

func NewWatcherService(ingestion IngestionService, dir string) *WatcherService {
	return &WatcherService{
		ingestion: ingestion,
		dir:       dir,
		ingested:  make(map[string]string),
	}
}

// Watch blocks until the context is cancelled (e.g. server shutdown).
func (s *WatcherService) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zlog.Error("failed to create file watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isPDF(event.Name) {
					continue
				}
				// Many tools write by creating a temp file and renaming, which
				// fires multiple events; Create and Write are handled the same.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					// Give the writer a moment to finish before reading.
					time.Sleep(500 * time.Millisecond)
					s.ingestFile(ctx, event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zlog.Error("watcher error", zap.Error(err))
			case <-ctx.Done():
				zlog.Info("context cancelled, shutting down watcher")
				return
			}
		}
	}()

	zlog.Info("watching drop directory", zap.String("dir", s.dir))
	if err := watcher.Add(s.dir); err != nil {
		zlog.Error("failed to add path to watcher", zap.String("dir", s.dir), zap.Error(err))
	}

	<-ctx.Done()
}

func (s *WatcherService) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		zlog.Warn("could not read dropped file", zap.String("path", path), zap.Error(err))
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	s.mu.Lock()
	seen := s.ingested[path] == hash
	s.mu.Unlock()
	if seen {
		zlog.Debug("dropped file unchanged, skipping", zap.String("path", path))
		return
	}

	result, err := s.ingestion.IngestDocument(ctx, data)
	if err != nil {
		// Hash not recorded, so the next event for this file retries.
		zlog.Error("failed to ingest dropped file", zap.String("path", path), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.ingested[path] = hash
	s.mu.Unlock()

	zlog.Info("ingested dropped file",
		zap.String("path", path),
		zap.String("session_id", result.SessionID),
		zap.Int("item_count", result.ItemCount))
}

func isPDF(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}
