package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/docstore"
	"github.com/hyperjump/kotae/internal/jobs"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/store"
)

type fakeDocs struct {
	docs map[string]*models.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*models.Document)}
}

func (f *fakeDocs) CreateDocument(_ context.Context, doc *models.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocs) ListDocuments(_ context.Context, offset, limit int) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range f.docs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeDocs) UpdateText(_ context.Context, id, text string) error {
	doc, ok := f.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	doc.Text = text
	return nil
}

func (f *fakeDocs) SetVectorIDs(_ context.Context, id string, vectorIDs []string) error {
	doc, ok := f.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	doc.VectorIDs = vectorIDs
	return nil
}

func (f *fakeDocs) DeleteDocument(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDocs) CountDocuments(_ context.Context) (int64, error) {
	return int64(len(f.docs)), nil
}

func (f *fakeDocs) Close() error { return nil }

// fakeJobs records spawned jobs instead of forking processes.
type fakeJobs struct {
	started   []string
	deleteIDs [][]string
}

func (f *fakeJobs) record(kind, docID string) (*jobs.Job, error) {
	f.started = append(f.started, kind+":"+docID)
	return &jobs.Job{Kind: kind, DocID: docID, PID: 1}, nil
}

func (f *fakeJobs) StartIndexJob(docID string) (*jobs.Job, error) {
	return f.record(jobs.KindIndex, docID)
}

func (f *fakeJobs) StartDeleteJob(docID string, vectorIDs []string) (*jobs.Job, error) {
	f.deleteIDs = append(f.deleteIDs, vectorIDs)
	return f.record(jobs.KindDelete, docID)
}

func (f *fakeJobs) StartFileJob(docID, source string) (*jobs.Job, error) {
	return f.record(jobs.KindFile, docID)
}

func newTestServer(t *testing.T, docs docstore.Store, fj *fakeJobs) *Server {
	t.Helper()
	logger := zap.NewNop()
	vecs, err := store.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	build := func(ctx context.Context) (rag.Retriever, error) {
		return staticRetriever{}, nil
	}
	vectorEngine := rag.NewVectorEngine(build, nil, logger)
	naiveEngine := rag.NewNaiveEngine(docs)

	return NewServer(vectorEngine, naiveEngine, docs, vecs, fj, cfg, logger)
}

type staticRetriever struct{}

func (staticRetriever) Retrieve(_ context.Context, query string, topK int) ([]models.ScoredDocument, error) {
	return []models.ScoredDocument{{ID: "chunk1", Text: "retrieved chunk"}}, nil
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateDocument(t *testing.T) {
	docs := newFakeDocs()
	fj := &fakeJobs{}
	srv := newTestServer(t, docs, fj)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents",
		map[string]string{"id": "doc1", "title": "Notes", "text": "hello world"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	if _, err := docs.GetDocument(context.Background(), "doc1"); err != nil {
		t.Errorf("document not stored: %v", err)
	}
	if len(fj.started) != 1 || fj.started[0] != "index:doc1" {
		t.Errorf("jobs started = %v, want [index:doc1]", fj.started)
	}
}

func TestHandleCreateDocument_GeneratesID(t *testing.T) {
	docs := newFakeDocs()
	fj := &fakeJobs{}
	srv := newTestServer(t, docs, fj)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents",
		map[string]string{"text": "no id supplied"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["id"] == "" {
		t.Error("response missing generated id")
	}
}

func TestHandleCreateDocument_SourceSpawnsFileJob(t *testing.T) {
	docs := newFakeDocs()
	fj := &fakeJobs{}
	srv := newTestServer(t, docs, fj)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents",
		map[string]string{"id": "doc1", "source": "/data/report.pdf"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(fj.started) != 1 || fj.started[0] != "file:doc1" {
		t.Errorf("jobs started = %v, want [file:doc1]", fj.started)
	}
}

func TestHandleCreateDocument_RequiresTextOrSource(t *testing.T) {
	srv := newTestServer(t, newFakeDocs(), &fakeJobs{})
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents",
		map[string]string{"id": "doc1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetDocument(t *testing.T) {
	docs := newFakeDocs()
	_ = docs.CreateDocument(context.Background(),
		&models.Document{ID: "doc1", Title: "Notes", Text: "hello"})
	srv := newTestServer(t, docs, &fakeJobs{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/documents/doc1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc models.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != "doc1" || doc.Title != "Notes" {
		t.Errorf("doc = %+v", doc)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/documents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing doc status = %d, want 404", rec.Code)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	docs := newFakeDocs()
	_ = docs.CreateDocument(context.Background(), &models.Document{
		ID:        "doc1",
		Text:      "x",
		VectorIDs: []string{"doc1_aa_0", "doc1_aa_1"},
	})
	fj := &fakeJobs{}
	srv := newTestServer(t, docs, fj)

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/documents/doc1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(fj.started) != 1 || fj.started[0] != "delete:doc1" {
		t.Errorf("jobs started = %v, want [delete:doc1]", fj.started)
	}
	// The row is gone before the job runs, so the vector ids must have
	// been handed to the job up front.
	if _, err := docs.GetDocument(context.Background(), "doc1"); err != docstore.ErrNotFound {
		t.Error("document row not removed")
	}
	if len(fj.deleteIDs) != 1 || len(fj.deleteIDs[0]) != 2 || fj.deleteIDs[0][0] != "doc1_aa_0" {
		t.Errorf("vector ids passed to job = %v, want [doc1_aa_0 doc1_aa_1]", fj.deleteIDs)
	}
}

func TestHandleDeleteDocument_Missing(t *testing.T) {
	srv := newTestServer(t, newFakeDocs(), &fakeJobs{})

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/documents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleAttachFile(t *testing.T) {
	docs := newFakeDocs()
	_ = docs.CreateDocument(context.Background(), &models.Document{ID: "doc1"})
	fj := &fakeJobs{}
	srv := newTestServer(t, docs, fj)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/documents/doc1/file",
		map[string]string{"source": "/data/notes.txt"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(fj.started) != 1 || fj.started[0] != "file:doc1" {
		t.Errorf("jobs started = %v", fj.started)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/documents/ghost/file",
		map[string]string{"source": "/data/notes.txt"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing doc status = %d, want 404", rec.Code)
	}
}

func TestHandleAsk(t *testing.T) {
	docs := newFakeDocs()
	srv := newTestServer(t, docs, &fakeJobs{})

	// Let the background build settle so the vector engine serves the query.
	srv.vectorEngine.EnsureBuilt()
	waitUntil(t, func() bool { return srv.vectorEngine.Status() == rag.StatusReady })

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ask",
		map[string]any{"query": "anything", "top_k": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var ans models.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if len(ans.Docs) != 1 || ans.Docs[0].ID != "chunk1" {
		t.Errorf("docs = %+v", ans.Docs)
	}
	if !strings.Contains(ans.Answer, "retrieved chunk") {
		t.Errorf("answer = %q", ans.Answer)
	}
}

func TestHandleAsk_EmptyQuery(t *testing.T) {
	srv := newTestServer(t, newFakeDocs(), &fakeJobs{})
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ask", map[string]any{"query": "  "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ans models.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if len(ans.Docs) != 0 {
		t.Errorf("empty query returned docs: %+v", ans.Docs)
	}
}

func TestHandleStatus(t *testing.T) {
	docs := newFakeDocs()
	_ = docs.CreateDocument(context.Background(), &models.Document{ID: "doc1"})
	srv := newTestServer(t, docs, &fakeJobs{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["documents"] != float64(1) {
		t.Errorf("documents = %v, want 1", resp["documents"])
	}
	if _, ok := resp["engine_status"]; !ok {
		t.Error("status missing engine_status")
	}
	if _, ok := resp["config"]; !ok {
		t.Error("status missing config")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, newFakeDocs(), &fakeJobs{})
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
