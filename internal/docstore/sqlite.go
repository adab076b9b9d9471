package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStore implements Store using SQLite. WAL mode is enabled so that
// background job processes and the serving process can share the database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		text TEXT NOT NULL DEFAULT '',
		source TEXT,
		vector_ids TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	vecJSON, err := json.Marshal(doc.VectorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal vector ids: %w", err)
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, text, source, vector_ids, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Text, doc.Source, string(vecJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by id, or ErrNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var vecJSON string
	var source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, text, source, vector_ids, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Text, &source, &vecJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Source = source.String
	if err := json.Unmarshal([]byte(vecJSON), &doc.VectorIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector ids: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns documents ordered by creation time ascending.
func (s *SQLiteStore) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, text, source, vector_ids, created_at, updated_at
		 FROM documents ORDER BY created_at ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var vecJSON string
		var source sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Text, &source, &vecJSON,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Source = source.String
		if err := json.Unmarshal([]byte(vecJSON), &doc.VectorIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vector ids: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// UpdateText replaces the document's text (written by file ingestion jobs).
func (s *SQLiteStore) UpdateText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetVectorIDs replaces the document's vector id list (written by index jobs).
func (s *SQLiteStore) SetVectorIDs(ctx context.Context, id string, vectorIDs []string) error {
	if vectorIDs == nil {
		vectorIDs = []string{}
	}
	vecJSON, err := json.Marshal(vectorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal vector ids: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET vector_ids = ?, updated_at = ? WHERE id = ?`,
		string(vecJSON), time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteDocument removes the document row. Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// CountDocuments returns the number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
