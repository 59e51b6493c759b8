// Package vectorindex provides nearest-neighbor search over a tag corpus's
// embeddings. Two backends share one contract: an exact brute-force scan and
// an HNSW graph for larger taxonomies. Backend choice is a build-time
// configuration, invisible to callers.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/newsdesk/tagsuggest/internal/corpus"
)

// Backend selects the index implementation.
type Backend string

const (
	// BackendFlat is the exact brute-force backend: O(n*D) per query,
	// 100% recall.
	BackendFlat Backend = "flat"

	// BackendHNSW is the approximate graph backend backed by vecgo.
	BackendHNSW Backend = "hnsw"
)

// ErrZeroQuery is returned when the query vector has zero norm and therefore
// no direction to rank against.
var ErrZeroQuery = errors.New("zero-norm query vector")

// DimensionError reports a query vector whose dimension does not match the
// corpus.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("query dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Candidate is one search hit. Pos is the record's insertion position in the
// corpus and the deterministic tie-breaker for equal scores.
type Candidate struct {
	Pos   int
	Slug  string
	Score float32 // cosine similarity, in [-1, 1]
}

// Index performs nearest-neighbor search over one immutable corpus. An index
// is built together with its corpus and never mutated; a taxonomy reload
// builds a new pair.
type Index interface {
	// Search returns up to min(topN, corpus size) candidates ordered by
	// descending cosine similarity, ties broken by corpus insertion
	// order. Searching an empty index yields an empty slice.
	Search(ctx context.Context, query []float32, topN int) ([]Candidate, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Name identifies the backend for health and response metadata.
	Name() string
}

// Build constructs an index of the given backend over the corpus.
func Build(backend Backend, c *corpus.TagCorpus) (Index, error) {
	switch backend {
	case BackendFlat, "":
		return NewFlat(c), nil
	case BackendHNSW:
		return NewHNSW(c)
	default:
		return nil, fmt.Errorf("unknown vector index backend %q", backend)
	}
}

// normalizeQuery validates and unit-normalizes a query vector against the
// corpus dimension.
func normalizeQuery(query []float32, dim int) ([]float32, error) {
	if len(query) != dim {
		return nil, &DimensionError{Expected: dim, Actual: len(query)}
	}
	normalized, ok := corpus.NormalizeL2(query)
	if !ok {
		return nil, ErrZeroQuery
	}
	return normalized, nil
}
