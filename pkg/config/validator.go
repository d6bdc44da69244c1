package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "listen address is required",
		})
	}
	if c.Server.MaxUploadBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_bytes",
			Message: "max_upload_bytes must be positive",
		})
	}

	switch c.Store.Backend {
	case "chromem":
	case "pgvector":
		if c.Store.PGVector.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.pgvector.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Store.PGVector.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.pgvector.url",
				Message: "invalid database URL",
			})
		}
		if c.Store.PGVector.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "store.pgvector.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Store.Backend),
		})
	}

	if strings.TrimSpace(c.Store.Collection) == "" {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection name is required",
		})
	}
	if c.Store.SearchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.search_limit",
			Message: "search_limit must be positive",
		})
	}

	switch c.Embedding.Provider {
	case "huggingface":
		if c.Embedding.Token == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.token",
				Message: "HF_TOKEN is required for the huggingface provider",
			})
		}
	case "gemini":
		if c.Embedding.Token == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.token",
				Message: "GEMINI_API_KEY is required for the gemini provider",
			})
		}
	case "ollama":
		if c.Embedding.BaseURL != "" {
			if u, err := url.Parse(c.Embedding.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, ValidationError{
					Field:   "embedding.base_url",
					Message: "invalid Ollama base URL",
				})
			}
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedding.Provider),
		})
	}

	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must not be negative",
		})
	}
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level: %s", c.Log.Level),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown format: %s", c.Log.Format),
		})
	}

	if c.CLI.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "cli.concurrency",
			Message: "concurrency must be positive",
		})
	}

	return errors
}
