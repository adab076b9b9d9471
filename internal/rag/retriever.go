package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

// StoreRetriever retrieves chunks by embedding the query and searching the
// vector store.
type StoreRetriever struct {
	embedder embedding.Embedder
	store    *store.Store
}

// NewStoreRetriever returns a StoreRetriever over the given embedder and store.
func NewStoreRetriever(embedder embedding.Embedder, st *store.Store) *StoreRetriever {
	return &StoreRetriever{embedder: embedder, store: st}
}

// Retrieve embeds the query and returns the topK nearest chunks with their
// metadata, most similar first.
func (r *StoreRetriever) Retrieve(ctx context.Context, query string, topK int) ([]models.ScoredDocument, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.Query(vec, topK, true)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	docs := make([]models.ScoredDocument, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata[models.MetaChunkText].(string)
		meta := make(map[string]any, len(m.Metadata)+1)
		for k, v := range m.Metadata {
			meta[k] = v
		}
		meta["score"] = m.Score
		docs = append(docs, models.ScoredDocument{ID: m.ID, Text: text, Meta: meta})
	}
	return docs, nil
}
