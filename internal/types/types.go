package types

import (
	"context"

	"github.com/xhad/vecdocs/internal/models"
)

// Core interfaces
type Embedder interface {
	Generate(ctx context.Context, texts []string) ([][]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Heartbeat(ctx context.Context) (int64, error)
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

type Collection interface {
	Name() string
	Add(ctx context.Context, ids []string, texts []string, metadatas []map[string]string) error
	Query(ctx context.Context, texts []string, nResults int) (*models.QueryResult, error)
	Count(ctx context.Context) (int, error)
}

type OCR interface {
	RunOCR(ctx context.Context, upload models.Upload) (*models.OCRResult, error)
	ListFiles(ctx context.Context) ([]models.DriveFile, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) ([]models.Document, error)
}
