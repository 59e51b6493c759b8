package suggest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/newsdesk/tagsuggest/internal/corpus"
)

// hashEmbedder is a deterministic bag-of-words embedder for tests.
type hashEmbedder struct {
	dim int

	mu    sync.Mutex
	calls int
}

func newHashEmbedder(dim int) *hashEmbedder {
	return &hashEmbedder{dim: dim}
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	v := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[int(h.Sum32())%e.dim]++
	}
	empty := true
	for _, x := range v {
		if x != 0 {
			empty = false
			break
		}
	}
	if empty {
		v[0] = 1
	}
	return v, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int    { return e.dim }
func (e *hashEmbedder) ModelName() string { return "hash-test" }

func (e *hashEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// staticSource serves rows from memory and can be told to fail.
type staticSource struct {
	mu      sync.Mutex
	rows    []corpus.Row
	modTime time.Time
	err     error
}

func (s *staticSource) Rows() ([]corpus.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *staticSource) ModTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return time.Time{}, s.err
	}
	return s.modTime, nil
}

func (s *staticSource) set(rows []corpus.Row, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.err = err
	s.modTime = time.Now()
}

// fakeReranker returns canned scores or a canned error.
type fakeReranker struct {
	scores []float32
	err    error
	calls  int
}

func (r *fakeReranker) ScorePairs(ctx context.Context, query string, candidates []string) ([]float32, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.scores) < len(candidates) {
		return nil, errors.New("fakeReranker: not enough canned scores")
	}
	return r.scores[:len(candidates)], nil
}

func (r *fakeReranker) ModelName() string { return "fake-reranker" }

func newsroomRows() []corpus.Row {
	return []corpus.Row{
		{Name: "ADNOC", Slug: "adnoc", URL: "https://example.com/adnoc", Description: "Abu Dhabi National Oil Company energy producer"},
		{Name: "IPO", Slug: "ipo", URL: "https://example.com/ipo", Description: "Initial public offering listings and market debuts"},
		{Name: "Football", Slug: "football", URL: "https://example.com/football", Description: "Football leagues transfers and match coverage"},
		{Name: "Weather", Slug: "weather", URL: "https://example.com/weather", Description: "Forecasts storms and temperature records"},
	}
}
