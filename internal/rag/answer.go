package rag

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const snippetLen = 400

// emptyQueryAnswer is returned for blank queries by every engine variant.
func emptyQueryAnswer() *models.Answer {
	return &models.Answer{Answer: "Please provide a query.", Docs: []models.ScoredDocument{}}
}

// assembleAnswer builds the default answer text from retrieved chunks by
// joining truncated snippets. An Augmenter may replace this text; the ranked
// docs are the contract either way.
func assembleAnswer(docs []models.ScoredDocument) string {
	if len(docs) == 0 {
		return "No relevant content found."
	}
	snippets := make([]string, 0, len(docs))
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > snippetLen {
			text = string(r[:snippetLen]) + "..."
		}
		snippets = append(snippets, text)
	}
	if len(snippets) == 0 {
		return "No relevant content found."
	}
	return "Relevant excerpts:\n\n" + strings.Join(snippets, "\n\n")
}
