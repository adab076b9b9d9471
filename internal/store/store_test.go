package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore_EmptyQuery(t *testing.T) {
	s := newTestStore(t)
	matches, err := s.Query([]float32{1, 0}, 5, true)
	if err != nil {
		t.Fatalf("query on empty store: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %v", matches)
	}
}

func TestStore_UpsertQueryDelete(t *testing.T) {
	s := newTestStore(t)
	rec := models.VectorRecord{
		ID:        "a",
		Embedding: []float32{1, 0},
		Metadata:  map[string]any{"doc_id": "1", "chunk_index": 0, "chunk_text": "hello"},
	}
	if err := s.Upsert([]models.VectorRecord{rec}); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Query([]float32{1, 0}, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("matches = %v", matches)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-5 {
		t.Errorf("self-similarity score = %v, want ~1.0", matches[0].Score)
	}
	if matches[0].Metadata[models.MetaChunkText] != "hello" {
		t.Errorf("metadata = %v", matches[0].Metadata)
	}

	if err := s.Delete([]string{"a"}); err != nil {
		t.Fatal(err)
	}
	matches, _ = s.Query([]float32{1, 0}, 5, true)
	if len(matches) != 0 {
		t.Errorf("matches after delete = %v", matches)
	}
	if s.Size() != 0 {
		t.Errorf("Size = %d after delete", s.Size())
	}
}

func TestStore_UpsertUnnormalizedScoresCosine(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{3, 0}}})
	matches, err := s.Query([]float32{7, 0}, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-5 {
		t.Errorf("score = %v, want ~1.0 for same direction", matches[0].Score)
	}
}

func TestStore_UpsertUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]any{"v": "old"}}})
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{0, 1}, Metadata: map[string]any{"v": "new"}}})

	if s.Size() != 1 {
		t.Fatalf("Size = %d after update, want 1", s.Size())
	}
	matches, _ := s.Query([]float32{0, 1}, 1, true)
	if matches[0].ID != "a" || math.Abs(matches[0].Score-1.0) > 1e-5 {
		t.Errorf("updated vector not found: %v", matches)
	}
	if matches[0].Metadata["v"] != "new" {
		t.Errorf("metadata not updated: %v", matches[0].Metadata)
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{1, 0}}})

	err := s.Upsert([]models.VectorRecord{
		{ID: "b", Embedding: []float32{1, 0}},
		{ID: "c", Embedding: []float32{1, 0, 0}},
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	// No partial write: b must not have been stored.
	if s.Size() != 1 {
		t.Errorf("Size = %d after failed upsert, want 1", s.Size())
	}
	matches, _ := s.Query([]float32{1, 0}, 5, false)
	for _, m := range matches {
		if m.ID == "b" || m.ID == "c" {
			t.Errorf("partial write: %s present", m.ID)
		}
	}

	if _, err := s.Query([]float32{1, 0, 0}, 5, false); err == nil {
		t.Error("expected dimension mismatch error on query")
	}
}

func TestStore_DeleteUnknownIgnored(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{1, 0}}})
	if err := s.Delete([]string{"nope", "missing"}); err != nil {
		t.Errorf("delete of unknown ids should be a no-op: %v", err)
	}
	if s.Size() != 1 {
		t.Errorf("Size = %d", s.Size())
	}
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	s, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	recs := []models.VectorRecord{
		{ID: "x", Embedding: []float32{1, 0}, Metadata: map[string]any{"chunk_text": "first"}},
		{ID: "y", Embedding: []float32{0, 1}, Metadata: map[string]any{"chunk_text": "second"}},
	}
	if err := s.Upsert(recs); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Size() != 2 {
		t.Fatalf("reopened size = %d", reopened.Size())
	}
	if reopened.Dimensions() != 2 {
		t.Errorf("reopened dimensions = %d", reopened.Dimensions())
	}
	matches, err := reopened.Query([]float32{0, 1}, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "y" {
		t.Fatalf("matches after reopen = %v", matches)
	}
	if matches[0].Metadata["chunk_text"] != "second" {
		t.Errorf("metadata after reopen = %v", matches[0].Metadata)
	}

	// New ids must not collide with ids issued before the restart.
	if err := reopened.Upsert([]models.VectorRecord{{ID: "z", Embedding: []float32{1, 1}}}); err != nil {
		t.Fatal(err)
	}
	if reopened.Size() != 3 {
		t.Errorf("size after new upsert = %d", reopened.Size())
	}
}

func TestStore_CorruptSidecarStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, sidecarFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("corrupt sidecar should not fail open: %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("fresh store size = %d", s.Size())
	}
	// The fresh store must be usable.
	if err := s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{1}}}); err != nil {
		t.Fatal(err)
	}
}

func TestStore_MissingIndexFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()
	s, _ := Open(dir, logger)
	_ = s.Upsert([]models.VectorRecord{{ID: "a", Embedding: []float32{1, 0}}})

	if err := os.Remove(filepath.Join(dir, indexFileName)); err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	// Sidecar survives but the index artifact is gone: the pair is treated as
	// corrupt and the store comes back fresh rather than crashing.
	if reopened.Size() != 0 {
		t.Errorf("reopened size = %d, want fresh store", reopened.Size())
	}
	matches, err := reopened.Query([]float32{1, 0}, 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("matches from missing index = %v", matches)
	}
}

func TestStore_RankedOrder(t *testing.T) {
	s := newTestStore(t)
	_ = s.Upsert([]models.VectorRecord{
		{ID: "far", Embedding: []float32{0, 1}},
		{ID: "near", Embedding: []float32{1, 0.1}},
		{ID: "exact", Embedding: []float32{1, 0}},
	})
	matches, err := s.Query([]float32{1, 0}, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"exact", "near", "far"}
	for i, id := range want {
		if matches[i].ID != id {
			t.Errorf("rank %d = %s, want %s", i, matches[i].ID, id)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches not in descending score order")
		}
	}
}
