// Package embeddings provides the embedding-provider port, an HTTP
// (TEI-compatible) implementation, and the deterministic fallback used
// when a provider call fails mid-ingestion.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors for embedding generation.
var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates vector embeddings from text. Dimensionality is a
// deployment-time constant shared with the vector index.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one per
	// input, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some
	// models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimensionality of the model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
