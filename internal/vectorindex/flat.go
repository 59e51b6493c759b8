package vectorindex

import (
	"context"
	"sort"

	"github.com/newsdesk/tagsuggest/internal/corpus"
)

// Flat is the exact backend: a dot-product scan over the corpus's unit
// vectors. Corpus embeddings are normalized at build time, so the dot
// product is the cosine similarity.
type Flat struct {
	records []corpus.TagRecord
	dim     int
}

// NewFlat builds a brute-force index over the corpus.
func NewFlat(c *corpus.TagCorpus) *Flat {
	return &Flat{records: c.Records, dim: c.Dim}
}

// Search scans all vectors and returns the topN best candidates.
func (f *Flat) Search(_ context.Context, query []float32, topN int) ([]Candidate, error) {
	if len(f.records) == 0 || topN <= 0 {
		return []Candidate{}, nil
	}

	q, err := normalizeQuery(query, f.dim)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(f.records))
	for i, rec := range f.records {
		candidates[i] = Candidate{
			Pos:   i,
			Slug:  rec.Slug,
			Score: dot(q, rec.Embedding),
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Pos < candidates[j].Pos
	})

	if topN > len(candidates) {
		topN = len(candidates)
	}
	return candidates[:topN], nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.records) }

// Name identifies the backend.
func (f *Flat) Name() string { return string(BackendFlat) }

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ Index = (*Flat)(nil)
