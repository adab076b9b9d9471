package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/docstore"
	"github.com/hyperjump/kotae/internal/jobs"
	"github.com/hyperjump/kotae/internal/models"
)

// jobStarter is the slice of the job runner the drop handler needs.
type jobStarter interface {
	StartFileJob(docID, source string) (*jobs.Job, error)
	StartDeleteJob(docID string, vectorIDs []string) (*jobs.Job, error)
}

// DropHandler turns drop-directory file events into documents and background
// jobs. The document id is derived from the absolute path, so re-dropping the
// same file re-indexes the same document instead of creating a duplicate.
type DropHandler struct {
	docs   docstore.Store
	jobs   jobStarter
	logger *zap.Logger
}

// NewDropHandler returns a DropHandler over the given collaborators.
func NewDropHandler(docs docstore.Store, runner jobStarter, logger *zap.Logger) *DropHandler {
	return &DropHandler{docs: docs, jobs: runner, logger: logger}
}

// DocID derives the stable document id for a dropped file path.
func DocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
}

// OnIngest ensures a document row exists for the file and spawns a file job
// to extract and index it.
func (h *DropHandler) OnIngest(path string) {
	docID := DocID(path)
	ctx := context.Background()

	if _, err := h.docs.GetDocument(ctx, docID); err != nil {
		if err != docstore.ErrNotFound {
			h.logger.Error("drop ingest: load document failed",
				zap.String("path", path), zap.Error(err))
			return
		}
		now := time.Now().UTC()
		doc := &models.Document{
			ID:        docID,
			Title:     titleFromPath(path),
			Source:    path,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := h.docs.CreateDocument(ctx, doc); err != nil {
			h.logger.Error("drop ingest: create document failed",
				zap.String("path", path), zap.Error(err))
			return
		}
	}

	if _, err := h.jobs.StartFileJob(docID, path); err != nil {
		h.logger.Error("drop ingest: spawn file job failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	h.logger.Info("drop ingest started",
		zap.String("path", path), zap.String("doc_id", docID))
}

// OnRemove removes the document for a deleted file: vectors first via a
// background job, then the row.
func (h *DropHandler) OnRemove(path string) {
	docID := DocID(path)
	ctx := context.Background()

	doc, err := h.docs.GetDocument(ctx, docID)
	if err != nil {
		return
	}
	// Vector ids travel with the job because the row is removed right after.
	if _, err := h.jobs.StartDeleteJob(docID, doc.VectorIDs); err != nil {
		h.logger.Error("drop remove: spawn delete job failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	if err := h.docs.DeleteDocument(ctx, docID); err != nil {
		h.logger.Error("drop remove: delete document failed",
			zap.String("path", path), zap.Error(err))
		return
	}
	h.logger.Info("drop remove started",
		zap.String("path", path), zap.String("doc_id", docID))
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
