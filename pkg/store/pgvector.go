package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/internal/types"
)

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

type PGVectorConfig struct {
	ConnString  string
	TablePrefix string
	VectorDim   int
}

// PGVectorStore keeps one table per collection.
type PGVectorStore struct {
	config   PGVectorConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
}

func NewPGVectorWithConfig(config PGVectorConfig, emb types.Embedder) (*PGVectorStore, error) {
	if emb == nil {
		return nil, fmt.Errorf("pgvector store requires an embedder")
	}
	if config.TablePrefix == "" {
		config.TablePrefix = "collection_"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1024 // bge-m3
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorStore{
		config:   config,
		pool:     pool,
		embedder: emb,
	}

	if err := vs.initialize(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

func (vs *PGVectorStore) Heartbeat(ctx context.Context) (int64, error) {
	if err := vs.pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("failed to ping database: %w", err)
	}
	return time.Now().UnixNano(), nil
}

func (vs *PGVectorStore) tableName(name string) (string, error) {
	if !collectionNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid collection name: %q", name)
	}
	return pgx.Identifier{vs.config.TablePrefix + name}.Sanitize(), nil
}

func (vs *PGVectorStore) GetOrCreateCollection(ctx context.Context, name string) (types.Collection, error) {
	table, err := vs.tableName(name)
	if err != nil {
		return nil, err
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d)
		)`, table, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	index := pgx.Identifier{vs.config.TablePrefix + name + "_embedding_idx"}.Sanitize()
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		index, table)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &pgCollection{name: name, table: table, store: vs}, nil
}

func (vs *PGVectorStore) DeleteCollection(ctx context.Context, name string) error {
	table, err := vs.tableName(name)
	if err != nil {
		return err
	}
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (vs *PGVectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

type pgCollection struct {
	name  string
	table string
	store *PGVectorStore
}

func (c *pgCollection) Name() string {
	return c.name
}

func (c *pgCollection) Add(ctx context.Context, ids []string, texts []string, metadatas []map[string]string) error {
	if err := checkBatch(ids, texts, metadatas); err != nil {
		return err
	}

	vectors, err := c.store.embedder.Generate(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	tx, err := c.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document, metadata, embedding)
		VALUES ($1, $2, $3, $4)`, c.table)

	for i := range ids {
		var meta map[string]string
		if metadatas != nil {
			meta = metadatas[i]
		}
		_, err = tx.Exec(ctx, stmt, ids[i], texts[i], meta, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *pgCollection) Query(ctx context.Context, texts []string, nResults int) (*models.QueryResult, error) {
	res := emptyResult(len(texts))
	if nResults <= 0 || len(texts) == 0 {
		return res, nil
	}

	vectors, err := c.store.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	query := fmt.Sprintf(`
		SELECT id, document, metadata, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`, c.table)

	for i, vector := range vectors {
		rows, err := c.store.pool.Query(ctx, query, pgvector.NewVector(vector), nResults)
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}

		for rows.Next() {
			var (
				id       string
				document string
				meta     map[string]string
				distance float64
			)
			if err := rows.Scan(&id, &document, &meta, &distance); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan row: %w", err)
			}
			res.IDs[i] = append(res.IDs[i], id)
			res.Documents[i] = append(res.Documents[i], document)
			res.Metadatas[i] = append(res.Metadatas[i], meta)
			res.Distances[i] = append(res.Distances[i], float32(distance))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
	}

	return res, nil
}

func (c *pgCollection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.store.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", c.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
