package augment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func TestNewClient_NoKeyReturnsNil(t *testing.T) {
	t.Setenv("KOTAE_TEST_NO_KEY", "")
	c := NewClient(&config.AugmentConfig{APIKeyEnv: "KOTAE_TEST_NO_KEY", Model: "gpt-4o-mini"})
	if c != nil {
		t.Error("NewClient() without API key should return nil")
	}
}

func TestAugment(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": " grounded answer \n"}},
			},
		})
	}))
	defer srv.Close()

	t.Setenv("KOTAE_TEST_KEY", "sk-test")
	c := NewClient(&config.AugmentConfig{
		BaseURL:   srv.URL,
		Model:     "gpt-4o-mini",
		APIKeyEnv: "KOTAE_TEST_KEY",
	})
	if c == nil {
		t.Fatal("NewClient() = nil with key set")
	}

	docs := []models.ScoredDocument{{ID: "v1", Text: "the sky is blue"}}
	answer, err := c.Augment(context.Background(), "what color is the sky?", docs)
	if err != nil {
		t.Fatalf("Augment() error = %v", err)
	}
	if answer != "grounded answer" {
		t.Errorf("Augment() = %q", answer)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	content, _ := user["content"].(string)
	if !strings.Contains(content, "the sky is blue") || !strings.Contains(content, "what color is the sky?") {
		t.Errorf("user prompt missing context or question: %q", content)
	}
}

func TestAugment_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	t.Setenv("KOTAE_TEST_KEY", "sk-test")
	c := NewClient(&config.AugmentConfig{BaseURL: srv.URL, Model: "m", APIKeyEnv: "KOTAE_TEST_KEY"})

	_, err := c.Augment(context.Background(), "q", nil)
	if err == nil {
		t.Fatal("Augment() expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status in message", err)
	}
}
