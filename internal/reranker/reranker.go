// Package reranker provides re-ranking for tag suggestion shortlists.
//
// Re-ranking scores (query, tag text) pairs together rather than
// independently, which improves precision when the dense shortlist has many
// candidates with similar cosine scores. It roughly doubles request latency,
// so it is requested per call and only honored when a reranker is configured.
package reranker

import (
	"context"
	"errors"
)

// ErrUnavailable signals that reranking could not be performed. Callers are
// expected to degrade to their pre-rerank scores rather than fail the request.
var ErrUnavailable = errors.New("reranker unavailable")

// Reranker scores candidate texts against a query.
type Reranker interface {
	// ScorePairs returns one relevance score per candidate, in candidate
	// order. Scores are model-defined; higher is more relevant.
	ScorePairs(ctx context.Context, query string, candidates []string) ([]float32, error)

	// ModelName identifies the scoring model for response metadata.
	ModelName() string
}
