package store

import (
	"fmt"

	"github.com/xhad/vecdocs/internal/models"
	"github.com/xhad/vecdocs/internal/types"
)

const (
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"
)

type VectorStoreConfig struct {
	Backend  string
	Chromem  ChromemConfig
	PGVector PGVectorConfig
}

// New opens the configured backend. Every collection it hands out embeds
// documents and queries with emb.
func New(config VectorStoreConfig, emb types.Embedder) (types.VectorStore, error) {
	switch config.Backend {
	case BackendChromem, "":
		return NewChromemWithConfig(config.Chromem, emb)
	case BackendPGVector:
		return NewPGVectorWithConfig(config.PGVector, emb)
	}
	return nil, fmt.Errorf("unknown vector store backend: %s", config.Backend)
}

func emptyResult(queries int) *models.QueryResult {
	res := &models.QueryResult{
		IDs:       make([][]string, queries),
		Documents: make([][]string, queries),
		Metadatas: make([][]map[string]string, queries),
		Distances: make([][]float32, queries),
	}
	for i := 0; i < queries; i++ {
		res.IDs[i] = []string{}
		res.Documents[i] = []string{}
		res.Metadatas[i] = []map[string]string{}
		res.Distances[i] = []float32{}
	}
	return res
}

func checkBatch(ids, texts []string, metadatas []map[string]string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("ids and texts length mismatch: %d != %d", len(ids), len(texts))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("ids and metadatas length mismatch: %d != %d", len(ids), len(metadatas))
	}
	return nil
}
