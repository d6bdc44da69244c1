package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Drive     DriveConfig     `yaml:"drive"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Log       LogConfig       `yaml:"log"`
	CLI       CLIConfig       `yaml:"cli"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSecs) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSecs) * time.Second
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Collection  string `yaml:"collection"`
	SearchLimit int    `yaml:"search_limit"`

	Chromem struct {
		Path     string `yaml:"path"`
		Compress bool   `yaml:"compress"`
	} `yaml:"chromem"`

	PGVector struct {
		URL         string `yaml:"url"`
		TablePrefix string `yaml:"table_prefix"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"pgvector"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Token    string `yaml:"token"`
	BaseURL  string `yaml:"base_url"`
}

type DriveConfig struct {
	CredentialsPath string   `yaml:"credentials_path"`
	TokenPath       string   `yaml:"token_path"`
	Scopes          []string `yaml:"scopes"`
	RedirectAddr    string   `yaml:"redirect_addr"`
	Endpoint        string   `yaml:"endpoint"`
}

type ScraperConfig struct {
	MaxDepth    int      `yaml:"max_depth"`
	RateLimit   float64  `yaml:"rate_limit"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Ignore      []string `yaml:"ignore_patterns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CLIConfig struct {
	Concurrency int `yaml:"concurrency"`
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/vecdocs/config.yaml"),
			"/etc/vecdocs/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&config)
	mergeWithEnv(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":3000"
	}
	if config.Server.MaxUploadBytes == 0 {
		config.Server.MaxUploadBytes = 32 << 20
	}
	if config.Server.ReadTimeoutSecs == 0 {
		config.Server.ReadTimeoutSecs = 30
	}
	if config.Server.WriteTimeoutSecs == 0 {
		config.Server.WriteTimeoutSecs = 120
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "chromem"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "test"
	}
	if config.Store.SearchLimit == 0 {
		config.Store.SearchLimit = 10
	}
	if config.Store.Chromem.Path == "" {
		config.Store.Chromem.Path = "data/chromem"
	}
	if config.Store.PGVector.TablePrefix == "" {
		config.Store.PGVector.TablePrefix = "collection_"
	}
	if config.Store.PGVector.VectorDim == 0 {
		config.Store.PGVector.VectorDim = 1024
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "huggingface"
	}

	if config.Drive.CredentialsPath == "" {
		config.Drive.CredentialsPath = "credentials.json"
	}
	if config.Drive.TokenPath == "" {
		config.Drive.TokenPath = "token.json"
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 30
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if config.CLI.Concurrency == 0 {
		config.CLI.Concurrency = 4
	}
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.PGVector.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}

	switch config.Embedding.Provider {
	case "huggingface":
		if token := os.Getenv("HF_TOKEN"); token != "" {
			config.Embedding.Token = token
		}
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			config.Embedding.Token = key
		}
	}
}

// NewLogger builds the process logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
