// Package indexing wires the chunker, embedder, and stores into the document
// indexing pipeline: text in, chunk vectors and updated document rows out.
package indexing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/docstore"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fetch"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

// Service runs the indexing pipeline for documents.
type Service struct {
	docs      docstore.Store
	embedder  embedding.Embedder
	vectors   *store.Store
	chunker   *chunker.Chunker
	extractor *extract.Extractor
	fetcher   *fetch.Fetcher
	logger    *zap.Logger
}

// NewService returns an indexing Service over the given collaborators.
func NewService(docs docstore.Store, embedder embedding.Embedder, vectors *store.Store, ch *chunker.Chunker, logger *zap.Logger) *Service {
	return &Service{
		docs:      docs,
		embedder:  embedder,
		vectors:   vectors,
		chunker:   ch,
		extractor: extract.NewExtractor(),
		fetcher:   fetch.NewFetcher(),
		logger:    logger,
	}
}

// IndexDocument chunks and embeds the document's text and replaces its chunk
// vectors in the vector store. Prior vectors are removed first so a re-index
// never leaves orphaned chunks behind. A document with no chunkable text ends
// up with no vectors, which is not an error.
func (s *Service) IndexDocument(ctx context.Context, docID string) error {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}

	if len(doc.VectorIDs) > 0 {
		if err := s.vectors.Delete(doc.VectorIDs); err != nil {
			return fmt.Errorf("remove prior vectors for %s: %w", docID, err)
		}
	}

	chunks := s.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		s.logger.Info("document has no chunkable text", zap.String("doc_id", docID))
		return s.docs.SetVectorIDs(ctx, docID, nil)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed %d chunks for %s: %w", len(chunks), docID, err)
	}

	batch := uuid.New()
	batchID := strings.ReplaceAll(batch.String(), "-", "")
	records := make([]models.VectorRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := fmt.Sprintf("%s_%s_%d", docID, batchID, i)
		ids[i] = id
		records[i] = models.VectorRecord{
			ID:        id,
			Embedding: embeddings[i],
			Metadata: map[string]any{
				models.MetaDocID:      docID,
				models.MetaChunkIndex: i,
				models.MetaChunkText:  chunk,
				models.MetaTitle:      doc.Title,
			},
		}
	}

	if err := s.vectors.Upsert(records); err != nil {
		return fmt.Errorf("store vectors for %s: %w", docID, err)
	}
	if err := s.docs.SetVectorIDs(ctx, docID, ids); err != nil {
		return fmt.Errorf("record vector ids for %s: %w", docID, err)
	}

	s.logger.Info("document indexed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// DeleteDocumentVectors removes a document's chunk vectors from the vector
// store. vectorIDs may be passed explicitly by a caller that captured them
// before removing the document row; when empty, they are read from the row.
// Missing documents and already-removed vectors are not errors, so the
// operation is safe to retry and tolerates the row disappearing while the
// deletion runs.
func (s *Service) DeleteDocumentVectors(ctx context.Context, docID string, vectorIDs []string) error {
	if len(vectorIDs) == 0 {
		doc, err := s.docs.GetDocument(ctx, docID)
		if err != nil {
			if err == docstore.ErrNotFound {
				return nil
			}
			return fmt.Errorf("load document %s: %w", docID, err)
		}
		vectorIDs = doc.VectorIDs
	}
	if len(vectorIDs) == 0 {
		return nil
	}
	if err := s.vectors.Delete(vectorIDs); err != nil {
		return fmt.Errorf("remove vectors for %s: %w", docID, err)
	}
	if err := s.docs.SetVectorIDs(ctx, docID, nil); err != nil && err != docstore.ErrNotFound {
		return fmt.Errorf("clear vector ids for %s: %w", docID, err)
	}
	s.logger.Info("document vectors removed",
		zap.String("doc_id", docID),
		zap.Int("vectors", len(vectorIDs)))
	return nil
}

// IngestFile fetches the source, extracts its text, stores the text on the
// document, and indexes it.
func (s *Service) IngestFile(ctx context.Context, docID, source string) error {
	path, cleanup, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}
	defer cleanup()

	text, err := s.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	if err := s.docs.UpdateText(ctx, docID, text); err != nil {
		return fmt.Errorf("store text for %s: %w", docID, err)
	}
	return s.IndexDocument(ctx, docID)
}
