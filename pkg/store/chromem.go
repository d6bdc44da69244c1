package store

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/internal/types"
)

type ChromemConfig struct {
	// Path of the persistence directory. Empty keeps everything in memory.
	Path     string
	Compress bool
}

// ChromemStore is an embedded Chroma-like store.
type ChromemStore struct {
	config   ChromemConfig
	db       *chromem.DB
	embedder types.Embedder
}

func NewChromemWithConfig(config ChromemConfig, emb types.Embedder) (*ChromemStore, error) {
	if emb == nil {
		return nil, fmt.Errorf("chromem store requires an embedder")
	}

	db := chromem.NewDB()
	if config.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}

	return &ChromemStore{
		config:   config,
		db:       db,
		embedder: emb,
	}, nil
}

func (s *ChromemStore) Heartbeat(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return time.Now().UnixNano(), nil
}

func (s *ChromemStore) GetOrCreateCollection(ctx context.Context, name string) (types.Collection, error) {
	c, err := s.db.GetOrCreateCollection(name, nil, s.embedder.EmbedText)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}
	return &chromemCollection{c: c}, nil
}

func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// Close is a no-op, persistent chromem databases write through on every change.
func (s *ChromemStore) Close() error {
	return nil
}

type chromemCollection struct {
	c *chromem.Collection
}

func (c *chromemCollection) Name() string {
	return c.c.Name
}

func (c *chromemCollection) Add(ctx context.Context, ids []string, texts []string, metadatas []map[string]string) error {
	if err := checkBatch(ids, texts, metadatas); err != nil {
		return err
	}
	// nil embeddings make chromem call the collection's embedding func
	if err := c.c.Add(ctx, ids, nil, metadatas, texts); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (c *chromemCollection) Query(ctx context.Context, texts []string, nResults int) (*models.QueryResult, error) {
	res := emptyResult(len(texts))

	// chromem rejects nResults above the document count
	n := nResults
	if count := c.c.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return res, nil
	}

	for i, text := range texts {
		results, err := c.c.Query(ctx, text, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query collection: %w", err)
		}
		for _, r := range results {
			res.IDs[i] = append(res.IDs[i], r.ID)
			res.Documents[i] = append(res.Documents[i], r.Content)
			res.Metadatas[i] = append(res.Metadatas[i], r.Metadata)
			res.Distances[i] = append(res.Distances[i], 1-r.Similarity)
		}
	}

	return res, nil
}

func (c *chromemCollection) Count(ctx context.Context) (int, error) {
	return c.c.Count(), nil
}
