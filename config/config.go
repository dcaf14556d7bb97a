package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App       AppConfig       `toml:"app"`
	Log       LogConfig       `toml:"log"`
	Chroma    ChromaConfig    `toml:"chroma"`
	Clip      ClipConfig      `toml:"clip"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Storage   StorageConfig   `toml:"storage"`
	Session   SessionConfig   `toml:"session"`
}

type AppConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type ChromaConfig struct {
	URL string `toml:"url"`
}

type ClipConfig struct {
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

type GeminiConfig struct {
	APIKey          string  `toml:"api_key"`
	AnswerModel     string  `toml:"answer_model"`
	CaptionModel    string  `toml:"caption_model"`
	Temperature     float64 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
}

type ChunkingConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK int `toml:"top_k"`
}

type StorageConfig struct {
	ImageDir string `toml:"image_dir"`
	WatchDir string `toml:"watch_dir"`
}

type SessionConfig struct {
	TTLHours        int `toml:"ttl_hours"`
	CleanupMinutes  int `toml:"cleanup_minutes"`
	MaxUploadSizeMB int `toml:"max_upload_size_mb"`
}

// Load reads configs/config.toml (or CONFIG_FILE) over built-in defaults,
// then applies environment overrides for deploy-time settings and secrets.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/server.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Chroma: ChromaConfig{
			URL: "http://localhost:8000",
		},
		Clip: ClipConfig{
			BaseURL:     "http://localhost:8090",
			Model:       "clip-ViT-B-32",
			TimeoutSecs: 60,
		},
		Gemini: GeminiConfig{
			AnswerModel:     "gemini-2.5-flash",
			CaptionModel:    "gemini-2.5-flash",
			Temperature:     0.5,
			MaxOutputTokens: 1024,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK: 10,
		},
		Storage: StorageConfig{
			ImageDir: "extracted_images",
			WatchDir: "",
		},
		Session: SessionConfig{
			TTLHours:        24,
			CleanupMinutes:  60,
			MaxUploadSizeMB: 50,
		},
	}
}

func overrideByEnv(cfg *Config) {
	if v := os.Getenv("APP_HOST"); v != "" {
		cfg.App.Host = v
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.App.GinMode = v
	}
	if v := os.Getenv("CHROMA_URL"); v != "" {
		cfg.Chroma.URL = v
	}
	if v := os.Getenv("CLIP_BASE_URL"); v != "" {
		cfg.Clip.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("IMAGE_DIR"); v != "" {
		cfg.Storage.ImageDir = v
	}
	if v := os.Getenv("WATCH_DIR"); v != "" {
		cfg.Storage.WatchDir = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
