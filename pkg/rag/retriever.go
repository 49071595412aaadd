// Package rag provides document retrieval for grounding agent replies and
// the short-term conversation-history formatter used in prompts.
package rag

import "context"

// Chunk is one retrieved document fragment.
type Chunk struct {
	Content string
	Source  string
	Score   float64
}

// Retriever fetches document chunks relevant to a query. Filters are
// optional property equality constraints (e.g. category=billing).
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filters map[string]string) ([]Chunk, error)
}

// Compile-time check.
var _ Retriever = (*NullRetriever)(nil)

// NullRetriever returns no chunks. Used when no vector store is
// configured; agents then answer without document context.
type NullRetriever struct{}

// NewNullRetriever creates a no-op retriever.
func NewNullRetriever() *NullRetriever {
	return &NullRetriever{}
}

// Retrieve implements Retriever.
func (*NullRetriever) Retrieve(context.Context, string, int, map[string]string) ([]Chunk, error) {
	return nil, nil
}

// JoinChunks concatenates chunk contents into the prompt context string.
func JoinChunks(chunks []Chunk) string {
	out := ""
	for i, c := range chunks {
		if i > 0 {
			out += "\n"
		}
		out += c.Content
	}
	return out
}
