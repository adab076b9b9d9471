// Package cli provides CLI output helpers for Kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes a query answer to w in the given format.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	fmt.Fprintf(w, "%s\n", answer.Answer)
	if len(answer.Docs) > 0 {
		fmt.Fprintf(w, "\nSources (%d):\n", len(answer.Docs))
		for i, doc := range answer.Docs {
			fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "[%d] %s", i+1, doc.ID)
			if title, ok := doc.Meta[models.MetaTitle].(string); ok && title != "" {
				fmt.Fprintf(w, " (%s)", title)
			}
			if score, ok := doc.Meta["score"].(float64); ok {
				fmt.Fprintf(w, " score=%.4f", score)
			}
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(doc.Text, 200))
		}
	}
	return nil
}

// Status is the shape of GET /api/v1/status, shared by the status command.
type Status struct {
	Documents    int64         `json:"documents"`
	Vectors      int           `json:"vectors"`
	EngineStatus string        `json:"engine_status"`
	Config       *StatusConfig `json:"config,omitempty"`
}

// StatusConfig holds the configuration slice reported by status.
type StatusConfig struct {
	EmbeddingDimensions int    `json:"embedding_dimensions,omitempty"`
	ChunkSize           int    `json:"chunk_size,omitempty"`
	ChunkOverlap        int    `json:"chunk_overlap,omitempty"`
	TopK                int    `json:"top_k,omitempty"`
	DatabasePath        string `json:"database_path,omitempty"`
	VectorStoreDir      string `json:"vector_store_dir,omitempty"`
}

// WriteStatus writes engine status to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "documents:      %d   # count of stored documents\n", status.Documents)
	fmt.Fprintf(w, "vectors:        %d   # count of chunk vectors in the store\n", status.Vectors)
	fmt.Fprintf(w, "engine_status:  %s\n", status.EngineStatus)
	if status.Config != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		if status.Config.EmbeddingDimensions > 0 {
			fmt.Fprintf(w, "embedding_dims:   %d\n", status.Config.EmbeddingDimensions)
		}
		if status.Config.ChunkSize > 0 {
			fmt.Fprintf(w, "chunk_size:       %d\n", status.Config.ChunkSize)
		}
		if status.Config.ChunkOverlap > 0 {
			fmt.Fprintf(w, "chunk_overlap:    %d\n", status.Config.ChunkOverlap)
		}
		if status.Config.TopK > 0 {
			fmt.Fprintf(w, "top_k:            %d\n", status.Config.TopK)
		}
		if status.Config.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:    %s\n", status.Config.DatabasePath)
		}
		if status.Config.VectorStoreDir != "" {
			fmt.Fprintf(w, "vector_store_dir: %s\n", status.Config.VectorStoreDir)
		}
	}
	return nil
}
