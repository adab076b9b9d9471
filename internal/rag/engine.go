// Package rag implements the query-answering engines: a naive token-count
// fallback and a vector-store-backed engine with a lazy build lifecycle.
package rag

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Status is a retrieval engine's lifecycle state.
type Status string

const (
	StatusUnbuilt  Status = "unbuilt"
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// Engine answers natural-language queries with ranked chunk documents. Every
// variant reports its lifecycle through Status; callers check readiness
// before asking and fall back to another engine instead of blocking.
type Engine interface {
	Answer(ctx context.Context, query string, topK int) (*models.Answer, error)
	Status() Status
}

// Retriever turns a query into ranked chunk documents. It is the piece the
// vector-backed engine builds lazily.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.ScoredDocument, error)
}

// Augmenter rewrites a retrieved-chunks answer with an external language
// model. It is optional; engines fall back to snippet assembly without one.
type Augmenter interface {
	Augment(ctx context.Context, query string, docs []models.ScoredDocument) (string, error)
}
