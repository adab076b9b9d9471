package models

// Match is a single vector store hit, ordered by descending similarity.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScoredDocument is a retrieved chunk returned to callers of a retrieval engine.
type ScoredDocument struct {
	ID   string         `json:"id"`
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Answer is the result of a retrieval engine query: an assembled answer string
// and the ranked chunk documents it was assembled from.
type Answer struct {
	Answer string           `json:"answer"`
	Docs   []ScoredDocument `json:"docs"`
}
