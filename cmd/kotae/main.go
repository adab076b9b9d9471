// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/augment"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/docstore"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexing"
	"github.com/hyperjump/kotae/internal/jobs"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "add":
		runAdd()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "job":
		runJob()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Docs     docstore.Store
	Embedder embedding.Embedder
	Vectors  *store.Store
	Chunker  *chunker.Chunker
	Indexing *indexing.Service
}

func (c *Components) Close() {
	if c.Docs != nil {
		_ = c.Docs.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	docs, err := docstore.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	embedder := embedding.NewEmbedder(&cfg.Embedding, logger)

	vectors, err := store.Open(cfg.Storage.VectorStoreDir, logger)
	if err != nil {
		_ = docs.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	ch, err := chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		_ = docs.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	svc := indexing.NewService(docs, embedder, vectors, ch, logger)
	return &Components{
		Docs:     docs,
		Embedder: embedder,
		Vectors:  vectors,
		Chunker:  ch,
		Indexing: svc,
	}, nil
}

// newVectorEngine wires the lazily-built vector engine. The build fails when
// the persisted store was written with a different embedding dimension than
// the active embedder produces.
func newVectorEngine(c *Components, cfg *config.Config, logger *zap.Logger) *rag.VectorEngine {
	build := func(ctx context.Context) (rag.Retriever, error) {
		if dims := c.Vectors.Dimensions(); dims != 0 && dims != c.Embedder.Dimensions() {
			return nil, fmt.Errorf("vector store dimension %d does not match embedder dimension %d",
				dims, c.Embedder.Dimensions())
		}
		return rag.NewStoreRetriever(c.Embedder, c.Vectors), nil
	}
	var augmenter rag.Augmenter
	if client := augment.NewClient(&cfg.Augment); client != nil {
		augmenter = client
		logger.Info("answer augmentation enabled", zap.String("model", cfg.Augment.Model))
	}
	return rag.NewVectorEngine(build, augmenter, logger)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	runner, err := jobs.NewRunner(resolvedConfigPath, logger)
	if err != nil {
		logger.Fatal("Failed to create job runner", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Ingest.Directory != "" {
		drop := watcher.NewDropHandler(components.Docs, runner, logger)
		watch := watcher.NewWatcher(cfg.Ingest.Directory, cfg.Ingest.Extensions,
			drop.OnIngest, drop.OnRemove, logger)
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start drop directory watcher", zap.Error(err))
		}
		defer watch.Stop()
		watch.SyncExistingFiles()
	}

	vectorEngine := newVectorEngine(components, cfg, logger)
	naiveEngine := rag.NewNaiveEngine(components.Docs)

	srv := server.NewServer(
		vectorEngine,
		naiveEngine,
		components.Docs,
		components.Vectors,
		runner,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = answer directly without a server)")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *serverURL != "" {
		answer, err := askViaHTTP(*serverURL, query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct mode: build the retrieval engine in-process and wait for it.
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	engine := newVectorEngine(components, cfg, logger)
	engine.EnsureBuilt()
	deadline := time.Now().Add(30 * time.Second)
	for !engine.Ready() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	k := *topK
	if k <= 0 {
		k = cfg.Index.TopK
	}
	answer, err := engine.Answer(context.Background(), query, k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, query string, topK int) (*models.Answer, error) {
	body, err := json.Marshal(map[string]any{"query": query, "top_k": topK})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.String("id", "", "document id (empty = generated)")
	title := fs.String("title", "", "document title")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae add [flags] <text>")
		os.Exit(1)
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Println("Usage: kotae add [flags] <text>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	docID := *id
	if docID == "" {
		docID = fmt.Sprintf("doc-%d", time.Now().UnixNano())
	}
	now := time.Now().UTC()
	ctx := context.Background()
	doc := &models.Document{ID: docID, Title: *title, Text: text, CreatedAt: now, UpdatedAt: now}
	if err := components.Docs.CreateDocument(ctx, doc); err != nil {
		fmt.Printf("Failed to store document: %v\n", err)
		os.Exit(1)
	}
	if err := components.Indexing.IndexDocument(ctx, docID); err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed: %s\n", docID)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n := 0
		err := filepath.WalkDir(path, func(p string, d iofs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !extract.Supported(filepath.Ext(p)) {
				return nil
			}
			if err := ingestOne(ctx, components, p); err != nil {
				logger.Warn("ingest failed", zap.String("path", p), zap.Error(err))
				return nil
			}
			n++
			return nil
		})
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	if err := ingestOne(ctx, components, path); err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document ingested: %s\n", watcher.DocID(path))
}

// ingestOne creates (or reuses) the path-derived document and runs the file
// ingestion pipeline synchronously.
func ingestOne(ctx context.Context, c *Components, path string) error {
	docID := watcher.DocID(path)
	if _, err := c.Docs.GetDocument(ctx, docID); err != nil {
		if err != docstore.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		base := filepath.Base(path)
		doc := &models.Document{
			ID:        docID,
			Title:     strings.TrimSuffix(base, filepath.Ext(base)),
			Source:    path,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := c.Docs.CreateDocument(ctx, doc); err != nil {
			return err
		}
	}
	return c.Indexing.IngestFile(ctx, docID, path)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Indexing.DeleteDocumentVectors(ctx, docID, nil); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Docs.DeleteDocument(ctx, docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status cli.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		docCount, err := components.Docs.CountDocuments(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		status = cli.Status{
			Documents:    docCount,
			Vectors:      components.Vectors.Size(),
			EngineStatus: string(rag.StatusUnbuilt),
			Config: &cli.StatusConfig{
				EmbeddingDimensions: cfg.Embedding.Dimensions,
				ChunkSize:           cfg.Index.ChunkSize,
				ChunkOverlap:        cfg.Index.ChunkOverlap,
				TopK:                cfg.Index.TopK,
				DatabasePath:        cfg.Storage.DatabasePath,
				VectorStoreDir:      cfg.Storage.VectorStoreDir,
			},
		}
	}

	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s cli.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// runJob is the child-process entry point spawned by the job runner. It
// re-establishes all components from config, runs one indexing operation, and
// exits; a crash here never reaches the serving process.
func runJob() {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: kotae job [flags] <index|delete|file> <document-id> [source]")
		os.Exit(1)
	}
	kind := fs.Arg(0)
	docID := fs.Arg(1)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	switch kind {
	case jobs.KindIndex:
		err = components.Indexing.IndexDocument(ctx, docID)
	case jobs.KindDelete:
		// Remaining args are the vector ids captured by the spawning process;
		// the document row may already be gone by the time this runs.
		err = components.Indexing.DeleteDocumentVectors(ctx, docID, fs.Args()[2:])
	case jobs.KindFile:
		if fs.NArg() < 3 {
			logger.Fatal("file job requires a source argument")
		}
		err = components.Indexing.IngestFile(ctx, docID, fs.Arg(2))
	default:
		logger.Fatal("unknown job kind", zap.String("kind", kind))
	}
	if err != nil {
		logger.Fatal("job failed",
			zap.String("kind", kind),
			zap.String("doc_id", docID),
			zap.Error(err))
	}
}

func printUsage() {
	fmt.Println(`kotae - Document indexing and retrieval engine

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <query>       Ask a question over indexed documents
  kotae add [flags] <text>        Add and index a text document
  kotae ingest [flags] <path>     Ingest a file or directory of files
  kotae delete [flags] <id>       Delete a document and its vectors
  kotae status [flags]            Show document/vector store status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer without a server.
  --top-k int        Number of chunks to retrieve (default from config)
  --output string    Output format: text or json (default: text)

Add Flags:
  --config string    Config file path
  --id string        Document id (default: generated)
  --title string     Document title

Ingest Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae add --title "Meeting notes" "We decided to ship on Friday."
  kotae ingest ./docs
  kotae ask "when do we ship?"
  kotae ask --output json "when do we ship?"
  kotae delete doc-123
  kotae status`)
}
