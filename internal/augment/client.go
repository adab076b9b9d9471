// Package augment rewrites retrieved-chunks answers with an OpenAI-compatible
// chat completion endpoint. It satisfies the rag.Augmenter interface and is
// entirely optional; without an API key the engines fall back to snippets.
package augment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls a chat completion endpoint to produce a grounded answer from
// retrieved chunks.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// NewClient returns a Client from config, or nil when the configured API key
// environment variable is unset. A nil Client is the signal to skip
// augmentation.
func NewClient(cfg *config.AugmentConfig) *Client {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		model:   cfg.Model,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Augment asks the model to answer the query using only the retrieved chunks.
func (c *Client) Augment(ctx context.Context, query string, docs []models.ScoredDocument) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(query, docs)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, utils.Truncate(string(data), 200))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat completion: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

const systemPrompt = "You answer questions using only the provided context. " +
	"If the context does not contain the answer, say so."

func buildPrompt(query string, docs []models.ScoredDocument) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(d.Text))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
