// Package models defines core data structures for documents, vectors, and answers.
package models

import "time"

// Document is a stored document. The core reads ID and Text, and writes Text
// (file ingestion) and VectorIDs (indexing); the remaining fields belong to the
// surrounding application.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Text      string    `json:"text" db:"text"`
	Source    string    `json:"source,omitempty" db:"source"`
	VectorIDs []string  `json:"vector_ids" db:"vector_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VectorRecord is one entry in the vector store: a globally unique string id,
// a fixed-dimension embedding, and its metadata.
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metadata keys written by the indexing pipeline for every chunk vector.
const (
	MetaDocID      = "doc_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkText  = "chunk_text"
	MetaTitle      = "title"
)
