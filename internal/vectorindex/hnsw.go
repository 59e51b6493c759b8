package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/vecgo"

	"github.com/newsdesk/tagsuggest/internal/corpus"
)

// hnswRandomSeed pins graph construction so that rebuilding an unchanged
// taxonomy yields an equivalent index.
const hnswRandomSeed = 4711

// hnswM is the number of bidirectional links per node. Tag taxonomies are
// small (thousands of entries), so a modest M keeps memory low while the
// default search EF still gives near-exact recall.
const hnswM = 16

// HNSW is the accelerated backend, backed by a vecgo HNSW graph over the
// same unit vectors the flat backend scans. Vectors are unit length, so the
// squared L2 distance d relates to cosine similarity as cos = 1 - d/2, which
// lets the backend report exact cosine scores.
type HNSW struct {
	vg      *vecgo.Vecgo[int]
	records []corpus.TagRecord
}

// NewHNSW builds the graph from the corpus embeddings. An empty corpus
// produces a valid index that returns no candidates.
func NewHNSW(c *corpus.TagCorpus) (*HNSW, error) {
	h := &HNSW{records: c.Records}
	if len(c.Records) == 0 {
		return h, nil
	}

	vg, err := vecgo.HNSW[int](c.Dim).
		SquaredL2().
		M(hnswM).
		RandomSeed(hnswRandomSeed).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building hnsw index: %w", err)
	}

	items := make([]vecgo.VectorWithData[int], len(c.Records))
	for i, rec := range c.Records {
		items[i] = vecgo.VectorWithData[int]{Vector: rec.Embedding, Data: i}
	}

	result := vg.BatchInsert(context.Background(), items)
	for i, err := range result.Errors {
		if err != nil {
			return nil, fmt.Errorf("inserting tag %q into hnsw index: %w", c.Records[i].Slug, err)
		}
	}

	h.vg = vg
	return h, nil
}

// Search performs a KNN query and converts distances back to cosine scores.
func (h *HNSW) Search(ctx context.Context, query []float32, topN int) ([]Candidate, error) {
	if h.vg == nil || topN <= 0 {
		return []Candidate{}, nil
	}
	if topN > len(h.records) {
		topN = len(h.records)
	}

	dim := len(h.records[0].Embedding)
	q, err := normalizeQuery(query, dim)
	if err != nil {
		return nil, err
	}

	hits, err := h.vg.KNNSearch(ctx, q, topN)
	if err != nil {
		return nil, fmt.Errorf("hnsw search: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		pos := hit.Data
		candidates = append(candidates, Candidate{
			Pos:   pos,
			Slug:  h.records[pos].Slug,
			Score: 1 - hit.Distance/2,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Pos < candidates[j].Pos
	})

	return candidates, nil
}

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int { return len(h.records) }

// Name identifies the backend.
func (h *HNSW) Name() string { return string(BackendHNSW) }

var _ Index = (*HNSW)(nil)
