package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/newsdesk/tagsuggest/internal/embedder"
	"github.com/newsdesk/tagsuggest/internal/lexical"
	"github.com/newsdesk/tagsuggest/internal/reranker"
	"github.com/newsdesk/tagsuggest/internal/textutil"
)

// Defaults for per-request options.
const (
	DefaultK         = 5
	DefaultMinScore  = 0.2
	DefaultShortlist = 100
)

// ErrInvalidOptions reports per-request options outside their valid range.
var ErrInvalidOptions = errors.New("invalid suggestion options")

// Options are per-request knobs. Zero values fall back to the engine
// defaults; MinScore is a pointer so an explicit 0.0 is distinguishable
// from unset.
type Options struct {
	K           int
	MinScore    *float64
	UseReranker bool
}

// Suggestion is one ranked tag.
type Suggestion struct {
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
	DenseScore  float64 `json:"dense_score"`
	Lexical     float64 `json:"lexical_score"`
	Reason      string  `json:"reason"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ElapsedMs         int64  `json:"elapsed_ms"`
	Engine            string `json:"engine"`
	Model             string `json:"model"`
	Generation        uint64 `json:"generation"`
	CorpusSize        int    `json:"corpus_size"`
	Shortlist         int    `json:"shortlist"`
	Reranker          string `json:"reranker,omitempty"`
	RerankUnavailable bool   `json:"rerank_unavailable,omitempty"`
}

// Result is a full suggestion response.
type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
	Meta        Metadata     `json:"meta"`
}

// EngineConfig holds the engine-level tuning that is fixed at startup.
type EngineConfig struct {
	// DefaultK is used when a request leaves K unset.
	DefaultK int
	// DefaultMinScore is used when a request leaves MinScore unset.
	DefaultMinScore float64
	// ShortlistSize is the dense retrieval depth; the effective shortlist
	// is max(K, ShortlistSize).
	ShortlistSize int
	// HybridAlpha blends dense and lexical scores: 1.0 means pure dense.
	HybridAlpha float64
	// NormalizeArabic folds Arabic letter variants during preprocessing.
	NormalizeArabic bool
}

// Engine ranks tag suggestions for article text against the snapshot
// currently published by the manager.
type Engine struct {
	manager  *Manager
	embedder embedder.Embedder
	reranker reranker.Reranker // nil when no reranker is configured
	cfg      EngineConfig
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReranker attaches an optional cross-encoder style reranker.
func WithReranker(r reranker.Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a suggestion engine.
func NewEngine(manager *Manager, emb embedder.Embedder, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.DefaultMinScore <= 0 || cfg.DefaultMinScore > 1 {
		cfg.DefaultMinScore = DefaultMinScore
	}
	if cfg.ShortlistSize <= 0 {
		cfg.ShortlistSize = DefaultShortlist
	}
	if cfg.HybridAlpha <= 0 || cfg.HybridAlpha > 1 {
		cfg.HybridAlpha = 1.0
	}
	e := &Engine{
		manager:  manager,
		embedder: emb,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scored is an in-flight candidate before filtering and truncation.
type scored struct {
	pos     int
	dense   float64
	overlap lexical.Overlap
	final   float64
}

// Suggest runs the full pipeline: preprocess, embed, dense shortlist,
// lexical overlap, optional rerank, filter, rank, truncate.
func (e *Engine) Suggest(ctx context.Context, text string, opts Options) (*Result, error) {
	snap, err := e.manager.Current()
	if err != nil {
		return nil, err
	}

	k := opts.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	minScore := e.cfg.DefaultMinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("%w: min_score %v out of range [0, 1]", ErrInvalidOptions, minScore)
	}

	start := time.Now()
	meta := Metadata{
		Model:      e.embedder.ModelName(),
		Generation: snap.Corpus.Generation,
		CorpusSize: snap.Corpus.Len(),
		Engine:     snap.Index.Name(),
	}

	result := &Result{Suggestions: []Suggestion{}, Meta: meta}
	if snap.Corpus.Len() == 0 {
		result.Meta.ElapsedMs = time.Since(start).Milliseconds()
		return result, nil
	}

	cleaned := e.preprocess(text)

	query, err := e.embedder.Embed(ctx, embedder.QueryText(e.embedder.ModelName(), cleaned))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	shortlist := e.cfg.ShortlistSize
	if k > shortlist {
		shortlist = k
	}
	candidates, err := snap.Index.Search(ctx, query, shortlist)
	if err != nil {
		return nil, fmt.Errorf("searching tag index: %w", err)
	}
	result.Meta.Shortlist = len(candidates)

	scorer := lexical.NewScorer(cleaned)
	items := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		rec := &snap.Corpus.Records[cand.Pos]
		s := scored{
			pos:     cand.Pos,
			dense:   float64(cand.Score),
			overlap: scorer.Score(rec.ComposedText),
		}
		s.final = e.cfg.HybridAlpha*s.dense + (1-e.cfg.HybridAlpha)*s.overlap.Score
		items = append(items, s)
	}

	if opts.UseReranker && e.reranker != nil && len(items) > 0 {
		e.rerank(ctx, snap, cleaned, items, result)
	}

	filtered := items[:0]
	for _, s := range items {
		if s.final >= minScore {
			filtered = append(filtered, s)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].final != filtered[j].final {
			return filtered[i].final > filtered[j].final
		}
		return filtered[i].pos < filtered[j].pos
	})
	if len(filtered) > k {
		filtered = filtered[:k]
	}

	for _, s := range filtered {
		rec := &snap.Corpus.Records[s.pos]
		result.Suggestions = append(result.Suggestions, Suggestion{
			Slug:        rec.Slug,
			Name:        rec.Name,
			URL:         rec.URL,
			Description: rec.Description,
			Score:       s.final,
			DenseScore:  s.dense,
			Lexical:     s.overlap.Score,
			Reason:      s.overlap.Reason(),
		})
	}
	result.Meta.ElapsedMs = time.Since(start).Milliseconds()
	return result, nil
}

// rerank replaces the fused scores with reranker scores. A reranker failure
// degrades the request back to the fused ranking and marks the response.
func (e *Engine) rerank(ctx context.Context, snap *IndexSnapshot, query string, items []scored, result *Result) {
	texts := make([]string, len(items))
	for i, s := range items {
		texts[i] = snap.Corpus.Records[s.pos].ComposedText
	}
	scores, err := e.reranker.ScorePairs(ctx, query, texts)
	if err != nil {
		e.logger.Warn("reranker unavailable, serving dense ranking", "error", err)
		result.Meta.RerankUnavailable = true
		return
	}
	result.Meta.Reranker = e.reranker.ModelName()
	for i := range items {
		items[i].final = float64(scores[i])
	}
}

func (e *Engine) preprocess(text string) string {
	cleaned := textutil.Clean(text)
	if e.cfg.NormalizeArabic {
		cleaned = textutil.NormalizeArabic(cleaned)
	}
	return cleaned
}
