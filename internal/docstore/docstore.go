// Package docstore defines the document persistence collaborator. The core
// reads a document's text, writes extracted text during file ingestion, and
// writes the vector ids produced by indexing; everything else about the
// Document entity belongs to the surrounding application.
package docstore

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

// Store defines document persistence operations.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	UpdateText(ctx context.Context, id, text string) error
	SetVectorIDs(ctx context.Context, id string, vectorIDs []string) error
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}
