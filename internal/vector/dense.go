// Package vector provides a flat inner-product index over integer-addressed vectors.
package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DenseIndex is a brute-force inner-product index. Vectors are addressed by
// int64 ids; callers that need string addressing layer a mapping on top (see
// the store package). Assumes vectors are normalized, so inner product equals
// cosine similarity.
type DenseIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	pos        map[int64]int
	mu         sync.RWMutex
}

// Result is a single index hit.
type Result struct {
	ID    int64
	Score float64
}

// NewDenseIndex creates an empty index with the given dimension.
func NewDenseIndex(dimensions int) (*DenseIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &DenseIndex{
		dimensions: dimensions,
		pos:        make(map[int64]int),
	}, nil
}

// Dimensions returns the vector dimension of the index.
func (d *DenseIndex) Dimensions() int {
	return d.dimensions
}

// Add inserts vectors under the given ids. Ids must not already be present;
// updates go through Remove first.
func (d *DenseIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != d.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), d.dimensions)
		}
		if _, exists := d.pos[id]; exists {
			return fmt.Errorf("id %d already present in index", id)
		}
		vec := make([]float32, d.dimensions)
		copy(vec, vectors[i])
		d.pos[id] = len(d.ids)
		d.ids = append(d.ids, id)
		d.vectors = append(d.vectors, vec)
	}
	return nil
}

// Remove deletes the vectors with the given ids. Returns an error naming the
// first id not present in the index; present ids are still removed.
func (d *DenseIndex) Remove(ids []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var missErr error
	for _, id := range ids {
		i, ok := d.pos[id]
		if !ok {
			if missErr == nil {
				missErr = fmt.Errorf("id %d not present in index", id)
			}
			continue
		}
		last := len(d.ids) - 1
		if i != last {
			d.ids[i] = d.ids[last]
			d.vectors[i] = d.vectors[last]
			d.pos[d.ids[i]] = i
		}
		d.ids = d.ids[:last]
		d.vectors = d.vectors[:last]
		delete(d.pos, id)
	}
	return missErr
}

// Search returns the top-k ids by inner product with query, descending.
func (d *DenseIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != d.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), d.dimensions)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if k <= 0 || len(d.ids) == 0 {
		return nil, nil
	}
	results := make([]Result, len(d.ids))
	for i, vec := range d.vectors {
		results[i] = Result{ID: d.ids[i], Score: InnerProduct(query, vec)}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Size returns the number of vectors in the index.
func (d *DenseIndex) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ids)
}

// Save writes the index to path. Format: dimensions (uint32), count (uint32),
// then per vector: id (int64), dimensions*4 bytes of float32 data, all
// little-endian. The parent directory is created if needed.
func (d *DenseIndex) Save(path string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(d.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(d.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range d.ids {
		if err := binary.Write(f, binary.LittleEndian, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := f.Write(float32sToBytes(d.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path, replacing the in-memory contents. The file's
// dimension must match the index dimension. A missing file leaves the index
// unchanged and returns nil.
func (d *DenseIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dims, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dims) != d.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dims, d.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	ids := make([]int64, 0, count)
	vectors := make([][]float32, 0, count)
	pos := make(map[int64]int, count)
	buf := make([]byte, d.dimensions*4)
	for i := uint32(0); i < count; i++ {
		var id int64
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		pos[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32s(buf))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = ids
	d.vectors = vectors
	d.pos = pos
	return nil
}

func float32sToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
