package capability

import "context"

// #region interfaces

// Searcher is the semantic-search capability consumed by the retriever.
// Implementations must be safe for concurrent use across turns.
type Searcher interface {
	Search(ctx context.Context, query, courseScope string, k int) ([]SearchResult, error)
}

// Generator is the text-generation capability consumed by the drafter,
// critic, and retriever (query reframing).
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerateParams) (string, error)
}

// #endregion interfaces

// #region types

// SearchResult is one ranked passage returned by the search capability.
type SearchResult struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// GenerateParams tunes a single generation call.
type GenerateParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// #endregion types
