// Package corpus builds immutable snapshots of the tag taxonomy: validated
// tag records, their composed text, and their L2-normalized embeddings.
// A corpus is constructed once per (re)load and never mutated afterwards.
package corpus

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/newsdesk/tagsuggest/internal/embedder"
)

const (
	// composedSeparator joins the fields of a tag into its composed text.
	// It must stay stable across builds so embeddings are reproducible.
	composedSeparator = " — "

	// embedBatchSize bounds how many tag texts go to the provider per batch.
	embedBatchSize = 64

	// embedBatchParallelism bounds concurrent batches during a build.
	embedBatchParallelism = 2
)

// Row is one raw taxonomy row as handed over by the source loader.
type Row struct {
	Name        string
	Slug        string
	URL         string
	Description string
}

// ValidationError reports a malformed or duplicate taxonomy row. A build
// that hits one fails as a whole; the previously active corpus stays up.
type ValidationError struct {
	Row    int    // zero-based position in the source
	Slug   string // offending slug, empty when the slug itself is missing
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("invalid tag row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("invalid tag row %d (slug %q): %s", e.Row, e.Slug, e.Reason)
}

// DegenerateVectorError reports a zero-norm embedding at build time. Such a
// vector has no direction and would poison cosine ranking, so the build fails
// instead of treating it as similarity 0.
type DegenerateVectorError struct {
	Slug string
}

func (e *DegenerateVectorError) Error() string {
	return fmt.Sprintf("zero-norm embedding for tag %q", e.Slug)
}

// TagRecord is one validated taxonomy entry.
type TagRecord struct {
	Slug        string
	Name        string
	URL         string
	Description string

	// ComposedText is the stable join of name, description, slug and url
	// used for both embedding and lexical scoring.
	ComposedText string

	// Embedding is L2-normalized and has the corpus-wide dimension.
	Embedding []float32
}

// TagCorpus is an immutable snapshot of the taxonomy. Record order follows
// the source and is the tie-breaker for equal scores.
type TagCorpus struct {
	Records    []TagRecord
	Dim        int
	Generation uint64
	Model      string
}

// Len returns the number of records in the corpus.
func (c *TagCorpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// ComposeText renders the stable composed text for a row.
func ComposeText(r Row) string {
	parts := make([]string, 0, 4)
	parts = append(parts, r.Name)
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.Slug != "" {
		parts = append(parts, "slug:"+r.Slug)
	}
	if r.URL != "" {
		parts = append(parts, "url:"+r.URL)
	}
	text := parts[0]
	for _, p := range parts[1:] {
		text += composedSeparator + p
	}
	return text
}

// Builder constructs TagCorpus snapshots from source rows.
type Builder struct {
	embedder embedder.Embedder

	// normalize applies an optional text normalization (e.g. Arabic letter
	// folding) to composed texts before embedding.
	normalize func(string) string
}

// NewBuilder creates a corpus builder on top of an embedding provider.
func NewBuilder(e embedder.Embedder, normalize func(string) string) *Builder {
	return &Builder{embedder: e, normalize: normalize}
}

// Build validates rows, embeds their composed texts and assembles a new
// corpus with the given generation. Any failure aborts the whole build.
func (b *Builder) Build(ctx context.Context, rows []Row, generation uint64) (*TagCorpus, error) {
	records, err := validate(rows)
	if err != nil {
		return nil, err
	}

	corpus := &TagCorpus{
		Records:    records,
		Dim:        b.embedder.Dimension(),
		Generation: generation,
		Model:      b.embedder.ModelName(),
	}
	if len(records) == 0 {
		return corpus, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		text := rec.ComposedText
		if b.normalize != nil {
			text = b.normalize(text)
		}
		texts[i] = embedder.PassageText(corpus.Model, text)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchParallelism)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := b.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return &embedder.Error{Op: "corpus build", Err: err}
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i := range records {
		if len(vectors[i]) != dim {
			return nil, &embedder.Error{
				Op: "corpus build",
				Err: fmt.Errorf("dimension mismatch for tag %q: got %d, want %d",
					records[i].Slug, len(vectors[i]), dim),
			}
		}
		normalized, ok := NormalizeL2(vectors[i])
		if !ok {
			return nil, &DegenerateVectorError{Slug: records[i].Slug}
		}
		records[i].Embedding = normalized
	}
	corpus.Dim = dim

	return corpus, nil
}

// validate checks rows and derives records without embeddings.
func validate(rows []Row) ([]TagRecord, error) {
	records := make([]TagRecord, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if row.Slug == "" {
			return nil, &ValidationError{Row: i, Reason: "missing slug"}
		}
		if row.Name == "" {
			return nil, &ValidationError{Row: i, Slug: row.Slug, Reason: "missing name"}
		}
		if _, dup := seen[row.Slug]; dup {
			return nil, &ValidationError{Row: i, Slug: row.Slug, Reason: "duplicate slug"}
		}
		seen[row.Slug] = struct{}{}
		records = append(records, TagRecord{
			Slug:         row.Slug,
			Name:         row.Name,
			URL:          row.URL,
			Description:  row.Description,
			ComposedText: ComposeText(row),
		})
	}
	return records, nil
}

// NormalizeL2 returns a unit-length copy of v. ok is false for zero-norm
// input.
func NormalizeL2(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}
