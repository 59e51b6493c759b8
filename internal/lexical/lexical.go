// Package lexical scores surface-term overlap between a query and a tag's
// composed text. The overlap is a cheap secondary signal next to the dense
// cosine score and also drives the human-readable reason strings attached to
// suggestions.
package lexical

import (
	"strings"
	"unicode"
)

const (
	// minTermLen drops very short tokens that carry little signal.
	minTermLen = 3

	// maxReasonTerms caps how many shared terms a reason string lists.
	maxReasonTerms = 5
)

// SemanticReason is the reason attached to results with no meaningful term
// overlap: the match rests on embedding similarity alone.
const SemanticReason = "Semantic similarity to tag description"

// Overlap is the result of comparing one query against one candidate text.
type Overlap struct {
	// Score is |shared terms| / |query terms|, in [0, 1]. Zero when the
	// query has no terms.
	Score float64

	// Shared lists the overlapping terms in order of first occurrence in
	// the query, capped at maxReasonTerms.
	Shared []string
}

// Reason renders the overlap as an explanation string.
func (o Overlap) Reason() string {
	if len(o.Shared) == 0 {
		return SemanticReason
	}
	return "Shared terms: " + strings.Join(o.Shared, ", ")
}

// Scorer tokenizes a query once and scores it against many candidate texts.
// It is built per request and must not be shared across queries.
type Scorer struct {
	queryTerms []string // first-occurrence order
	querySet   map[string]struct{}
}

// NewScorer tokenizes the query text and returns a scorer for it.
func NewScorer(query string) *Scorer {
	terms := Tokenize(query)
	set := make(map[string]struct{}, len(terms))
	ordered := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, seen := set[term]; seen {
			continue
		}
		set[term] = struct{}{}
		ordered = append(ordered, term)
	}
	return &Scorer{queryTerms: ordered, querySet: set}
}

// Score computes the normalized term overlap against a candidate text.
func (s *Scorer) Score(candidate string) Overlap {
	if len(s.queryTerms) == 0 {
		return Overlap{}
	}

	candidateSet := make(map[string]struct{})
	for _, term := range Tokenize(candidate) {
		candidateSet[term] = struct{}{}
	}

	var shared []string
	for _, term := range s.queryTerms {
		if _, ok := candidateSet[term]; ok {
			shared = append(shared, term)
		}
	}
	if len(shared) == 0 {
		return Overlap{}
	}

	score := float64(len(shared)) / float64(len(s.queryTerms))
	if len(shared) > maxReasonTerms {
		shared = shared[:maxReasonTerms]
	}
	return Overlap{Score: score, Shared: shared}
}

// Tokenize lowercases the text and splits it into letter/digit runs of at
// least minTermLen runes. Punctuation and shorter runs are discarded.
func Tokenize(text string) []string {
	var terms []string
	var current []rune
	flush := func() {
		if len(current) >= minTermLen {
			terms = append(terms, string(current))
		}
		current = current[:0]
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()
	return terms
}
