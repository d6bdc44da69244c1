// Package service ties the vector store, the OCR client and the page loader
// together behind the operations the HTTP server and the CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/internal/types"
	"github.com/xhad/vecdocs/pkg/processor"
)

var (
	ErrAddFailed  = errors.New("failed to add document")
	ErrNoOCR      = errors.New("document conversion is not configured")
	ErrNoScraper  = errors.New("url loading is not configured")
	errNoDocument = errors.New("no documents to add")
)

const (
	addedMessage     = "Document added."
	addedManyMessage = "Documents added."
)

type ServiceConfig struct {
	Collection  string
	SearchLimit int
}

type Service struct {
	config    ServiceConfig
	store     types.VectorStore
	ocr       types.OCR
	scraper   types.Scraper
	processor processor.Processor
}

// NewWithConfig wires a service around an open store. ocr and scraper may be
// nil, in which case the operations that need them fail.
func NewWithConfig(config ServiceConfig, store types.VectorStore, ocr types.OCR, scraper types.Scraper, proc processor.Processor) *Service {
	if config.Collection == "" {
		config.Collection = "test"
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 10
	}

	return &Service{
		config:    config,
		store:     store,
		ocr:       ocr,
		scraper:   scraper,
		processor: proc,
	}
}

func (s *Service) Hello() string {
	return "Hello World!"
}

func (s *Service) CollectionName() string {
	return s.config.Collection
}

func (s *Service) Heartbeat(ctx context.Context) (*models.Heartbeat, error) {
	beat, err := s.store.Heartbeat(ctx)
	if err != nil {
		return nil, fmt.Errorf("store heartbeat failed: %w", err)
	}
	return &models.Heartbeat{NanosecondHeartbeat: beat}, nil
}

func (s *Service) DeleteCollection(ctx context.Context) error {
	if err := s.store.DeleteCollection(ctx, s.config.Collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.config.Collection, err)
	}
	slog.Info("Collection deleted", "collection", s.config.Collection)
	return nil
}

// Add stores one document under a fresh id. The text is embedded and
// stored as given.
func (s *Service) Add(ctx context.Context, req models.AddRequest) (*models.AddResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.addDocuments(ctx, []models.Document{{Title: req.Title, Text: req.Text}}); err != nil {
		return nil, err
	}
	return &models.AddResponse{Message: addedMessage, Data: req}, nil
}

func (s *Service) addDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: %w", ErrAddFailed, errNoDocument)
	}

	collection, err := s.store.GetOrCreateCollection(ctx, s.config.Collection)
	if err != nil {
		slog.Error("Error adding document", "collection", s.config.Collection, "error", err)
		return fmt.Errorf("%w: %w", ErrAddFailed, err)
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	metadatas := make([]map[string]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		ids[i] = doc.ID
		texts[i] = doc.Text
		metadatas[i] = doc.Metadata()
	}

	if err := collection.Add(ctx, ids, texts, metadatas); err != nil {
		slog.Error("Error adding document", "collection", s.config.Collection, "error", err)
		return fmt.Errorf("%w: %w", ErrAddFailed, err)
	}

	slog.Info("Documents added", "collection", s.config.Collection, "count", len(ids))
	return nil
}

func (s *Service) Search(ctx context.Context, query string) (*models.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.ValidationError{Field: "query", Message: "query is required"}
	}

	collection, err := s.store.GetOrCreateCollection(ctx, s.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", s.config.Collection, err)
	}

	res, err := collection.Query(ctx, []string{query}, s.config.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", s.config.Collection, err)
	}
	return res, nil
}

func (s *Service) RunOCR(ctx context.Context, upload models.Upload) (*models.OCRResult, error) {
	if s.ocr == nil {
		return nil, ErrNoOCR
	}
	return s.ocr.RunOCR(ctx, upload)
}

func (s *Service) ListFiles(ctx context.Context) ([]models.DriveFile, error) {
	if s.ocr == nil {
		return nil, ErrNoOCR
	}
	return s.ocr.ListFiles(ctx)
}

// UploadAndAdd extracts the text of an uploaded file and stores it titled
// with the original file name. Nothing is stored when extraction fails.
func (s *Service) UploadAndAdd(ctx context.Context, upload models.Upload) (*models.AddResponse, error) {
	res, err := s.RunOCR(ctx, upload)
	if err != nil {
		return nil, err
	}

	docs, err := s.processor.Process([]models.Document{{Title: upload.FileName, Text: res.TextContent}})
	if err != nil {
		return nil, err
	}

	if err := s.addDocuments(ctx, docs); err != nil {
		return nil, err
	}
	return &models.AddResponse{
		Message: addedMessage,
		Data:    models.AddRequest{Title: docs[0].Title, Text: docs[0].Text},
	}, nil
}

// AddURL loads the page (and any pages the loader follows), drops pages
// without text and stores the rest in one batch.
func (s *Service) AddURL(ctx context.Context, req models.AddURLRequest) (*models.AddURLResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.scraper == nil {
		return nil, ErrNoScraper
	}

	pages, err := s.scraper.Scrape(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.URL, err)
	}

	var docs []models.Document
	for _, page := range pages {
		cleaned, err := s.processor.Process([]models.Document{page})
		if errors.Is(err, processor.ErrEmptyText) {
			slog.Debug("Skipping page without text", "url", page.Source)
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, cleaned...)
	}
	if len(docs) == 0 {
		return nil, processor.ErrEmptyText
	}

	if err := s.addDocuments(ctx, docs); err != nil {
		return nil, err
	}

	data := make([]models.AddRequest, len(docs))
	for i, doc := range docs {
		data[i] = models.AddRequest{Title: doc.Title, Text: doc.Text}
	}
	return &models.AddURLResponse{Message: addedManyMessage, Data: data}, nil
}
