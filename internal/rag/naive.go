package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// DocumentLister supplies the naive engine with documents to score. The
// docstore satisfies it.
type DocumentLister interface {
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
}

// NaiveEngine scores whole documents by query-token occurrence count. It has
// no build step and is always ready, which makes it the fallback while the
// vector engine is still building.
type NaiveEngine struct {
	docs DocumentLister
}

// NewNaiveEngine returns a NaiveEngine over the given document source.
func NewNaiveEngine(docs DocumentLister) *NaiveEngine {
	return &NaiveEngine{docs: docs}
}

// Status always reports ready.
func (e *NaiveEngine) Status() Status { return StatusReady }

// Answer scores every stored document by how many of the query's tokens are
// present in its text (one point per token, not per occurrence), descending;
// equal scores break toward the shorter text.
func (e *NaiveEngine) Answer(ctx context.Context, query string, topK int) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return emptyQueryAnswer(), nil
	}
	if topK <= 0 {
		topK = 5
	}

	const pageSize = 100
	var docs []*models.Document
	for offset := 0; ; offset += pageSize {
		page, err := e.docs.ListDocuments(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, page...)
		if len(page) < pageSize {
			break
		}
	}

	tokens := strings.Fields(strings.ToLower(query))
	type scored struct {
		doc   *models.Document
		score int
	}
	var hits []scored
	for _, doc := range docs {
		text := strings.ToLower(doc.Text)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return len(hits[i].doc.Text) < len(hits[j].doc.Text)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]models.ScoredDocument, len(hits))
	for i, h := range hits {
		out[i] = models.ScoredDocument{
			ID:   h.doc.ID,
			Text: h.doc.Text,
			Meta: map[string]any{
				models.MetaTitle: h.doc.Title,
				"score":          h.score,
			},
		}
	}
	return &models.Answer{Answer: assembleAnswer(out), Docs: out}, nil
}
