package rag

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// BuildFunc constructs the retriever the vector engine serves from. It runs
// once, in the background, on the first readiness check.
type BuildFunc func(ctx context.Context) (Retriever, error)

// VectorEngine wraps a lazily-built Retriever behind a build lifecycle:
// unbuilt until first asked, building while the BuildFunc runs, then ready or
// failed. A failed build is terminal for the process lifetime and answers
// with empty results, so a broken data source cannot trigger a rebuild storm.
type VectorEngine struct {
	build     BuildFunc
	augmenter Augmenter
	logger    *zap.Logger

	mu        sync.Mutex
	status    Status
	retriever Retriever
}

// NewVectorEngine returns an unbuilt VectorEngine. augmenter may be nil, in
// which case answers are assembled from snippets.
func NewVectorEngine(build BuildFunc, augmenter Augmenter, logger *zap.Logger) *VectorEngine {
	return &VectorEngine{
		build:     build,
		augmenter: augmenter,
		logger:    logger,
		status:    StatusUnbuilt,
	}
}

// Status reports the engine's current lifecycle state.
func (e *VectorEngine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// EnsureBuilt starts the background build if it has not started yet. Callers
// never block on the build; they poll Status and fall back to another engine
// until it is ready.
func (e *VectorEngine) EnsureBuilt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusUnbuilt {
		return
	}
	e.status = StatusBuilding
	go e.runBuild()
}

func (e *VectorEngine) runBuild() {
	retriever, err := e.build(context.Background())

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		// Terminal: answering empty beats retrying a broken build forever.
		e.status = StatusFailed
		e.logger.Error("retrieval index build failed", zap.Error(err))
		return
	}
	e.retriever = retriever
	e.status = StatusReady
	e.logger.Info("retrieval index built")
}

// Ready reports whether Answer will serve retrieved results. A failed engine
// also reports true: it answers, just with nothing.
func (e *VectorEngine) Ready() bool {
	s := e.Status()
	return s == StatusReady || s == StatusFailed
}

// Answer retrieves the topK most similar chunks and assembles an answer. An
// engine that is not ready answers empty rather than blocking on the build; a
// blank query gets an explicit prompt for one.
func (e *VectorEngine) Answer(ctx context.Context, query string, topK int) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return emptyQueryAnswer(), nil
	}
	if topK <= 0 {
		topK = 5
	}

	e.EnsureBuilt()

	e.mu.Lock()
	retriever := e.retriever
	status := e.status
	e.mu.Unlock()

	if status != StatusReady || retriever == nil {
		return &models.Answer{
			Answer: "No relevant content found.",
			Docs:   []models.ScoredDocument{},
		}, nil
	}

	docs, err := retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	answer := assembleAnswer(docs)
	if e.augmenter != nil && len(docs) > 0 {
		augmented, err := e.augmenter.Augment(ctx, query, docs)
		if err != nil {
			e.logger.Warn("augmentation failed, using snippet answer", zap.Error(err))
		} else if strings.TrimSpace(augmented) != "" {
			answer = augmented
		}
	}
	return &models.Answer{Answer: answer, Docs: docs}, nil
}
