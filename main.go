package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/vectoread/server/config"
	"github.com/vectoread/server/controller"
	"github.com/vectoread/server/services"
	"github.com/vectoread/server/zlog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	zlog.Init(cfg.Log.Level, cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Process-wide collaborators: created once and shared by every request.
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.Chroma.URL))
	if err != nil {
		zlog.Fatal("failed to create chroma client", zap.Error(err))
	}
	defer func() {
		if err := chromaClient.Close(); err != nil {
			zlog.Warn("failed to close chroma client", zap.Error(err))
		}
	}()

	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		zlog.Fatal("failed to create gemini client, make sure GEMINI_API_KEY is set", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Clip.TimeoutSecs) * time.Second}
	embedder := services.NewClipEmbedder(httpClient, cfg.Clip.BaseURL, cfg.Clip.Model)

	index := services.NewChromaIndex(chromaClient)
	if err := index.AdoptExisting(ctx); err != nil {
		zlog.Warn("could not adopt existing session collections", zap.Error(err))
	}
	extractor := services.NewPDFExtractor()
	chunker := services.NewTextChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	gemini := services.NewGeminiService(geminiClient,
		cfg.Gemini.CaptionModel, cfg.Gemini.AnswerModel,
		cfg.Gemini.Temperature, cfg.Gemini.MaxOutputTokens)

	ingestionService := services.NewIngestionService(extractor, chunker, embedder, index, cfg.Storage.ImageDir)
	ragService := services.NewRAGService(embedder, index, gemini, gemini, cfg.Retrieval.TopK)
	ragController := controller.NewRAGController(ingestionService, ragService, index, cfg.Session.MaxUploadSizeMB)

	janitor := services.NewCleanupService(index, cfg.Storage.ImageDir,
		time.Duration(cfg.Session.TTLHours)*time.Hour,
		time.Duration(cfg.Session.CleanupMinutes)*time.Minute)
	go janitor.Run(ctx)

	if cfg.Storage.WatchDir != "" {
		watcher := services.NewWatcherService(ingestionService, cfg.Storage.WatchDir)
		go watcher.Watch(ctx)
	}

	gin.SetMode(cfg.App.GinMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "multimodal RAG API",
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/ingest", ragController.IngestDocument)
		apiV1.POST("/query", ragController.QueryDocuments)
		apiV1.GET("/sessions/:id/count", ragController.SessionCount)
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: router,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", cfg.HTTPAddr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}
