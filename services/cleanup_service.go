package services

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vectoread/server/zlog"
)

// CleanupService is a background janitor that expires sessions idle longer
// than the TTL: it drops their collections and removes their extracted
// image directories.
type CleanupService struct {
	index    *ChromaIndex
	imageDir string
	ttl      time.Duration
	interval time.Duration
}

func NewCleanupService(index *ChromaIndex, imageDir string, ttl, interval time.Duration) *CleanupService {
	return &CleanupService{
		index:    index,
		imageDir: imageDir,
		ttl:      ttl,
		interval: interval,
	}
}

// Run blocks until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	zlog.Info("session janitor started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			zlog.Info("context cancelled, shutting down janitor")
			return
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	// Pick up collections created before this process started (or by
	// another instance) so they expire instead of leaking.
	if err := s.index.AdoptExisting(ctx); err != nil {
		zlog.Warn("could not list existing session collections", zap.Error(err))
	}

	idle := s.index.IdleSessions(s.ttl)
	if len(idle) == 0 {
		return
	}
	deleted := 0
	for _, sessionID := range idle {
		if err := s.index.Drop(ctx, sessionID); err != nil {
			zlog.Warn("failed to drop expired session", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		dir := filepath.Join(s.imageDir, sessionID)
		if err := os.RemoveAll(dir); err != nil {
			zlog.Warn("failed to remove session images", zap.String("dir", dir), zap.Error(err))
		}
		deleted++
	}
	zlog.Info("expired sessions cleaned up", zap.Int("deleted", deleted), zap.Int("candidates", len(idle)))
}
