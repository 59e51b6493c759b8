package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/newsdesk/tagsuggest/internal/corpus"
	"github.com/newsdesk/tagsuggest/internal/lexical"
	"github.com/newsdesk/tagsuggest/internal/vectorindex"
)

func zero() *float64 {
	v := 0.0
	return &v
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *Manager) {
	t.Helper()
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	emb := newHashEmbedder(64)
	m := newTestManager(t, src, emb)
	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewEngine(m, emb, EngineConfig{}, opts...), m
}

func TestEngine_NotReady(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	emb := newHashEmbedder(64)
	m := newTestManager(t, src, emb)
	e := NewEngine(m, emb, EngineConfig{})

	if _, err := e.Suggest(context.Background(), "anything", Options{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestEngine_RanksSharedTermsFirst(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Suggest(context.Background(),
		"ADNOC announced a new IPO in Abu Dhabi",
		Options{K: 2, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(res.Suggestions))
	}
	if res.Suggestions[0].Slug != "adnoc" {
		t.Errorf("expected adnoc first, got %q", res.Suggestions[0].Slug)
	}
	if res.Suggestions[1].Slug != "ipo" {
		t.Errorf("expected ipo second, got %q", res.Suggestions[1].Slug)
	}
	if res.Suggestions[0].Score < res.Suggestions[1].Score {
		t.Error("suggestions out of score order")
	}

	// The top hit shares literal terms, so the reason names them.
	if !strings.HasPrefix(res.Suggestions[0].Reason, "Shared terms: ") {
		t.Errorf("unexpected reason: %q", res.Suggestions[0].Reason)
	}
	if !strings.Contains(res.Suggestions[0].Reason, "adnoc") {
		t.Errorf("reason should mention adnoc: %q", res.Suggestions[0].Reason)
	}

	if res.Meta.Generation != 1 {
		t.Errorf("meta generation = %d", res.Meta.Generation)
	}
	if res.Meta.CorpusSize != 4 {
		t.Errorf("meta corpus size = %d", res.Meta.CorpusSize)
	}
	if res.Meta.Model != "hash-test" {
		t.Errorf("meta model = %q", res.Meta.Model)
	}
	if res.Meta.Engine != "flat" {
		t.Errorf("meta engine = %q", res.Meta.Engine)
	}
}

func TestEngine_SemanticReasonWithoutOverlap(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Suggest(context.Background(), "zzz qqq xxx", Options{K: 4, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("expected suggestions")
	}
	for _, s := range res.Suggestions {
		if s.Reason != lexical.SemanticReason {
			t.Errorf("expected semantic reason for %q, got %q", s.Slug, s.Reason)
		}
	}
}

func TestEngine_MinScoreFilters(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	text := "ADNOC announced a new IPO in Abu Dhabi"

	all, err := e.Suggest(ctx, text, Options{K: 4, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Raising the floor never adds results, and a floor of 1.0 from an
	// unrelated query removes everything without error.
	high := 0.99
	strict, err := e.Suggest(ctx, text, Options{K: 4, MinScore: &high})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strict.Suggestions) > len(all.Suggestions) {
		t.Error("higher min_score returned more suggestions")
	}
	if len(strict.Suggestions) != 0 {
		t.Errorf("expected no suggestions above 0.99, got %d", len(strict.Suggestions))
	}
	if strict.Suggestions == nil {
		t.Error("empty result must be an empty list, not nil")
	}

	bad := 1.5
	if _, err := e.Suggest(ctx, text, Options{MinScore: &bad}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions for min_score 1.5, got %v", err)
	}
	neg := -0.1
	if _, err := e.Suggest(ctx, text, Options{MinScore: &neg}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions for negative min_score, got %v", err)
	}
}

func TestEngine_ConfiguredDefaults(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	emb := newHashEmbedder(64)
	m := newTestManager(t, src, emb)
	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	text := "ADNOC announced a new IPO in Abu Dhabi"

	// An unset K falls back to the configured default.
	e := NewEngine(m, emb, EngineConfig{DefaultK: 1, DefaultMinScore: 0.01})
	res, err := e.Suggest(ctx, text, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) != 1 {
		t.Errorf("expected configured default k=1 to apply, got %d suggestions", len(res.Suggestions))
	}

	// An unset MinScore falls back to the configured default.
	e = NewEngine(m, emb, EngineConfig{DefaultK: 4, DefaultMinScore: 0.99})
	res, err = e.Suggest(ctx, text, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("expected configured min_score 0.99 to filter everything, got %d", len(res.Suggestions))
	}

	// An explicit request still overrides the configured defaults.
	res, err = e.Suggest(ctx, text, Options{K: 4, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) == 0 {
		t.Error("explicit options should override configured defaults")
	}

	// Zero-value config keeps the package defaults.
	e = NewEngine(m, emb, EngineConfig{})
	if e.cfg.DefaultK != DefaultK || e.cfg.DefaultMinScore != DefaultMinScore {
		t.Errorf("zero-value config defaults = (%d, %v)", e.cfg.DefaultK, e.cfg.DefaultMinScore)
	}
}

func TestEngine_KTruncates(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Suggest(context.Background(), "news update", Options{K: 1, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) > 1 {
		t.Errorf("expected at most 1 suggestion, got %d", len(res.Suggestions))
	}

	// K larger than the corpus returns everything that clears the floor.
	res, err = e.Suggest(context.Background(), "news update", Options{K: 50, MinScore: zero()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) > 4 {
		t.Errorf("got more suggestions than tags: %d", len(res.Suggestions))
	}
}

func TestEngine_EmptyCorpus(t *testing.T) {
	src := &staticSource{}
	src.set(nil, nil)
	emb := newHashEmbedder(16)
	m := newTestManager(t, src, emb)
	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := NewEngine(m, emb, EngineConfig{})

	res, err := e.Suggest(context.Background(), "anything at all", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("expected no suggestions, got %d", len(res.Suggestions))
	}
	if emb.callCount() != 0 {
		t.Error("empty corpus should not trigger a query embedding")
	}
}

func TestEngine_RerankerOverridesOrder(t *testing.T) {
	// The reranker inverts the dense ranking for the full shortlist.
	rr := &fakeReranker{scores: []float32{0.25, 0.75, 0.5, 0.375}}
	e, _ := newTestEngine(t, WithReranker(rr))

	res, err := e.Suggest(context.Background(),
		"ADNOC announced a new IPO in Abu Dhabi",
		Options{K: 2, MinScore: zero(), UseReranker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.calls != 1 {
		t.Fatalf("expected one reranker call, got %d", rr.calls)
	}
	if res.Meta.RerankUnavailable {
		t.Error("rerank_unavailable set on a successful rerank")
	}
	if res.Meta.Reranker != "fake-reranker" {
		t.Errorf("meta reranker = %q", res.Meta.Reranker)
	}
	if res.Suggestions[0].Slug == "adnoc" {
		t.Error("reranker scores should have demoted the dense top hit")
	}
	if res.Suggestions[0].Score != 0.75 {
		t.Errorf("expected reranker score 0.75, got %v", res.Suggestions[0].Score)
	}
}

func TestEngine_RerankerFailureFallsBack(t *testing.T) {
	rr := &fakeReranker{err: errors.New("model offline")}
	e, _ := newTestEngine(t, WithReranker(rr))

	res, err := e.Suggest(context.Background(),
		"ADNOC announced a new IPO in Abu Dhabi",
		Options{K: 2, MinScore: zero(), UseReranker: true})
	if err != nil {
		t.Fatalf("reranker failure must not fail the request: %v", err)
	}
	if !res.Meta.RerankUnavailable {
		t.Error("expected rerank_unavailable in metadata")
	}
	if res.Suggestions[0].Slug != "adnoc" {
		t.Errorf("expected dense ranking to survive, got %q first", res.Suggestions[0].Slug)
	}
}

func TestEngine_RerankerNotCalledWhenDisabled(t *testing.T) {
	rr := &fakeReranker{scores: []float32{0.9, 0.8, 0.7, 0.6}}
	e, _ := newTestEngine(t, WithReranker(rr))

	if _, err := e.Suggest(context.Background(), "some text", Options{MinScore: zero()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.calls != 0 {
		t.Errorf("reranker called %d times without opt-in", rr.calls)
	}
}

func TestEngine_ReloadIsIdempotent(t *testing.T) {
	// Rebuilding from unchanged rows must rank identically, for both
	// index backends.
	for _, backend := range []vectorindex.Backend{vectorindex.BackendFlat, vectorindex.BackendHNSW} {
		t.Run(string(backend), func(t *testing.T) {
			src := &staticSource{}
			src.set(newsroomRows(), nil)
			emb := newHashEmbedder(64)
			m := NewManager(src, corpus.NewBuilder(emb, nil), backend, emb.ModelName())
			if _, err := m.Reload(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			e := NewEngine(m, emb, EngineConfig{})

			text := "ADNOC announced a new IPO in Abu Dhabi"
			first, err := e.Suggest(context.Background(), text, Options{K: 4, MinScore: zero()})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for round := 0; round < 2; round++ {
				if _, err := m.Reload(context.Background()); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				next, err := e.Suggest(context.Background(), text, Options{K: 4, MinScore: zero()})
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(next.Suggestions) != len(first.Suggestions) {
					t.Fatalf("reload %d changed result count: %d != %d",
						round+1, len(next.Suggestions), len(first.Suggestions))
				}
				for i, s := range next.Suggestions {
					if s.Slug != first.Suggestions[i].Slug {
						t.Errorf("reload %d changed rank %d: %q != %q",
							round+1, i, s.Slug, first.Suggestions[i].Slug)
					}
					if s.Score != first.Suggestions[i].Score {
						t.Errorf("reload %d changed score for %q: %v != %v",
							round+1, s.Slug, s.Score, first.Suggestions[i].Score)
					}
				}
			}
		})
	}
}

func TestEngine_SuggestDuringReload(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if _, err := m.Reload(ctx); err != nil {
				t.Errorf("unexpected reload error: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		res, err := e.Suggest(ctx, "ADNOC IPO news", Options{MinScore: zero()})
		if err != nil {
			t.Fatalf("unexpected suggest error: %v", err)
		}
		if res.Meta.CorpusSize != 4 {
			t.Fatalf("suggest saw a torn snapshot: %+v", res.Meta)
		}
	}
	<-done
}
