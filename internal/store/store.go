// Package store provides the persistent vector store: a flat similarity index
// addressed by string ids, with per-id metadata and durable on-disk state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	indexFileName   = "vectors.idx"
	sidecarFileName = "vectors.meta.json"
)

// Store is a durable similarity index. External string ids are mapped to
// sequential internal int64 ids because the underlying index addresses only
// integers. The index artifact and the sidecar (dimension, id counter,
// mapping, metadata) are rewritten together after every mutation.
//
// Store assumes a single writer at a time; mutations are routed through
// background jobs, never concurrently from the serving process. Reads against
// a store being mutated by another process may observe a transient pair that
// does not yet reflect an in-flight write.
type Store struct {
	dir         string
	indexPath   string
	sidecarPath string

	dimensions int // 0 until the first vector is stored
	nextID     int64
	idToInt    map[string]int64
	intToID    map[int64]string
	metadata   map[string]map[string]any
	index      *vector.DenseIndex

	logger *zap.Logger
}

// sidecar is the JSON document persisted alongside the index artifact.
type sidecar struct {
	Dimensions int                       `json:"dimensions"`
	NextID     int64                     `json:"next_internal_id"`
	IDs        map[string]int64          `json:"ids"`
	Metadata   map[string]map[string]any `json:"metadata"`
}

// Open opens the store in dir, loading the persisted pair if present. A
// missing or corrupted pair yields a fresh empty store, not an error.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		dir:         dir,
		indexPath:   filepath.Join(dir, indexFileName),
		sidecarPath: filepath.Join(dir, sidecarFileName),
		nextID:      1,
		idToInt:     make(map[string]int64),
		intToID:     make(map[int64]string),
		metadata:    make(map[string]map[string]any),
		logger:      logger,
	}
	if err := s.load(); err != nil {
		logger.Warn("failed to load persisted vector store, starting fresh",
			zap.String("dir", dir), zap.Error(err))
		s.reset()
	}
	return s, nil
}

func (s *Store) reset() {
	s.dimensions = 0
	s.nextID = 1
	s.idToInt = make(map[string]int64)
	s.intToID = make(map[int64]string)
	s.metadata = make(map[string]map[string]any)
	s.index = nil
}

// load reads the persisted pair. Both files must be present and consistent;
// any failure is reported so the caller can start fresh.
func (s *Store) load() error {
	data, err := os.ReadFile(s.sidecarPath)
	if os.IsNotExist(err) {
		return nil // no index yet
	}
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse sidecar: %w", err)
	}
	if sc.Dimensions <= 0 {
		return nil // sidecar from an empty store
	}
	idx, err := vector.NewDenseIndex(sc.Dimensions)
	if err != nil {
		return err
	}
	if err := idx.Load(s.indexPath); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if idx.Size() != len(sc.IDs) {
		return fmt.Errorf("index/sidecar mismatch: %d vectors vs %d ids", idx.Size(), len(sc.IDs))
	}
	s.dimensions = sc.Dimensions
	s.nextID = sc.NextID
	s.idToInt = sc.IDs
	if s.idToInt == nil {
		s.idToInt = make(map[string]int64)
	}
	s.metadata = sc.Metadata
	if s.metadata == nil {
		s.metadata = make(map[string]map[string]any)
	}
	s.intToID = make(map[int64]string, len(s.idToInt))
	for sid, iid := range s.idToInt {
		s.intToID[iid] = sid
	}
	s.index = idx
	s.logger.Info("vector store loaded",
		zap.Int("dimensions", s.dimensions), zap.Int("vectors", len(s.idToInt)))
	return nil
}

// persist rewrites the sidecar and the index artifact.
func (s *Store) persist() error {
	sc := sidecar{
		Dimensions: s.dimensions,
		NextID:     s.nextID,
		IDs:        s.idToInt,
		Metadata:   s.metadata,
	}
	data, err := json.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath, data, 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if s.index != nil {
		if err := s.index.Save(s.indexPath); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}
	return nil
}

// Upsert inserts or updates the given records. The embedding dimension is
// fixed by the first vector ever stored; a record with a different dimension
// fails the whole call before any mutation. Vectors are L2-normalized so that
// inner-product search approximates cosine similarity. Re-using an existing id
// replaces the previous vector and metadata. The on-disk pair is rewritten
// after the mutation.
func (s *Store) Upsert(records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Validate dimensions up front: a mismatch must not leave a partial write.
	dims := s.dimensions
	if dims == 0 {
		dims = len(records[0].Embedding)
	}
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("vector record has empty id")
		}
		if len(rec.Embedding) != dims {
			return fmt.Errorf("embedding dimension mismatch for %q: expected %d, got %d",
				rec.ID, dims, len(rec.Embedding))
		}
	}

	if s.index == nil {
		idx, err := vector.NewDenseIndex(dims)
		if err != nil {
			return err
		}
		s.index = idx
		s.dimensions = dims
		s.logger.Info("vector store initialized", zap.Int("dimensions", dims))
	}

	ids := make([]int64, 0, len(records))
	vecs := make([][]float32, 0, len(records))
	for _, rec := range records {
		intID, exists := s.idToInt[rec.ID]
		if exists {
			// Update semantics: drop the old vector before adding the new one.
			// A rejected removal is logged and the mapping updated anyway so
			// the metadata and the index cannot diverge permanently.
			if err := s.index.Remove([]int64{intID}); err != nil {
				s.logger.Warn("index removal failed during upsert",
					zap.String("id", rec.ID), zap.Error(err))
			}
		} else {
			intID = s.nextID
			s.nextID++
			s.idToInt[rec.ID] = intID
			s.intToID[intID] = rec.ID
		}
		ids = append(ids, intID)
		vecs = append(vecs, vector.Normalize(rec.Embedding))
		if rec.Metadata != nil {
			s.metadata[rec.ID] = rec.Metadata
		}
	}
	if err := s.index.Add(ids, vecs); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return s.persist()
}

// Delete removes the given ids, their metadata, and their mapping entries.
// Unknown ids are silently ignored, keeping deletion idempotent. The on-disk
// pair is rewritten when anything was removed.
func (s *Store) Delete(ids []string) error {
	var intIDs []int64
	for _, sid := range ids {
		intID, ok := s.idToInt[sid]
		if !ok {
			continue
		}
		intIDs = append(intIDs, intID)
		delete(s.idToInt, sid)
		delete(s.intToID, intID)
		delete(s.metadata, sid)
	}
	if len(intIDs) == 0 {
		return nil
	}
	if err := s.index.Remove(intIDs); err != nil {
		// Mapping entries are already gone; halting here would leave the
		// metadata and the index permanently diverged.
		s.logger.Warn("index removal failed during delete", zap.Error(err))
	}
	return s.persist()
}

// Query returns the top-k nearest records by inner product, descending. The
// query vector is normalized first. An empty (never populated) store returns
// an empty result, not an error; a dimension mismatch is an error.
func (s *Store) Query(embedding []float32, topK int, includeMetadata bool) ([]models.Match, error) {
	if s.index == nil || s.dimensions == 0 {
		return nil, nil
	}
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d",
			s.dimensions, len(embedding))
	}
	results, err := s.index.Search(vector.Normalize(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		sid, ok := s.intToID[r.ID]
		if !ok {
			continue
		}
		m := models.Match{ID: sid, Score: r.Score}
		if includeMetadata {
			m.Metadata = s.metadata[sid]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Size returns the number of stored vectors.
func (s *Store) Size() int {
	return len(s.idToInt)
}

// Dimensions returns the fixed embedding dimension, or 0 if nothing has been
// stored yet.
func (s *Store) Dimensions() int {
	return s.dimensions
}
