// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"fmt"
	"strings"
)

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Error wraps provider failures and dimension mismatches so callers can
// distinguish embedding problems from corpus validation problems.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension     int // Embedding dimension
	ContextLength int // Max tokens the model can process
}

// KnownModels maps embedding model names to their configurations.
var KnownModels = map[string]ModelConfig{
	"multilingual-e5-small": {
		Dimension:     384,
		ContextLength: 512,
	},
	"multilingual-e5-base": {
		Dimension:     768,
		ContextLength: 512,
	},
	"nomic-embed-text": {
		Dimension:     768,
		ContextLength: 8192,
	},
	"mxbai-embed-large": {
		Dimension:     1024,
		ContextLength: 512,
	},
	"all-minilm": {
		Dimension:     384,
		ContextLength: 256,
	},
	"snowflake-arctic-embed": {
		Dimension:     1024,
		ContextLength: 8192,
	},
}

// GetModelConfig returns the configuration for a model, or defaults if unknown.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	return ModelConfig{
		Dimension:     768,
		ContextLength: 2048,
	}
}

// isE5 reports whether the model belongs to the e5 family, which expects
// asymmetric "query:"/"passage:" prefixes on its inputs.
func isE5(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "e5")
}

// QueryText returns the text to embed for a search query under the given
// model. For non-e5 models it is the input unchanged.
func QueryText(modelName, text string) string {
	if isE5(modelName) {
		return "query: " + text
	}
	return text
}

// PassageText returns the text to embed for a corpus passage under the given
// model.
func PassageText(modelName, text string) string {
	if isE5(modelName) {
		return "passage: " + text
	}
	return text
}
