package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
)

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.config.Index.TopK
	}

	engine := s.pickEngine()
	s.logger.Debug("ask request",
		zap.String("query", req.Query),
		zap.Int("top_k", req.TopK),
		zap.String("engine_status", string(engine.Status())))

	answer, err := engine.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

// pickEngine returns the vector engine once its build has settled (ready or
// terminally failed) and the naive fallback while it is still building.
func (s *Server) pickEngine() rag.Engine {
	s.vectorEngine.EnsureBuilt()
	if s.vectorEngine.Ready() {
		return s.vectorEngine
	}
	return s.naiveEngine
}

type createDocumentRequest struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" && req.Source == "" {
		s.respondError(w, http.StatusBadRequest, "text or source is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:        req.ID,
		Title:     req.Title,
		Text:      req.Text,
		Source:    req.Source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docs.CreateDocument(r.Context(), doc); err != nil {
		s.logger.Error("create document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Indexing runs in an isolated child process; the request returns as soon
	// as the job is spawned.
	var err error
	if req.Source != "" && req.Text == "" {
		_, err = s.jobs.StartFileJob(doc.ID, req.Source)
	} else {
		_, err = s.jobs.StartIndexJob(doc.ID)
	}
	if err != nil {
		s.logger.Error("spawn index job failed", zap.String("id", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": doc.ID, "status": "indexing"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.docs.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))

	doc, err := s.docs.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}

	// The row is removed below without waiting for the job, so the child
	// cannot rely on reading vector ids from it; hand them over explicitly.
	if _, err := s.jobs.StartDeleteJob(id, doc.VectorIDs); err != nil {
		s.logger.Error("spawn delete job failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.docs.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("delete document failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleting"})
}

type attachFileRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req attachFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		s.respondError(w, http.StatusBadRequest, "source is required")
		return
	}
	if _, err := s.docs.GetDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if _, err := s.jobs.StartFileJob(id, req.Source); err != nil {
		s.logger.Error("spawn file job failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "ingesting"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.docs.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"documents":     docCount,
		"vectors":       s.vectors.Size(),
		"engine_status": string(s.vectorEngine.Status()),
		"config": map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Index.ChunkSize,
			"chunk_overlap":        s.config.Index.ChunkOverlap,
			"top_k":                s.config.Index.TopK,
			"database_path":        s.config.Storage.DatabasePath,
			"vector_store_dir":     s.config.Storage.VectorStoreDir,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
