package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsdesk/tagsuggest/internal/llm"
	"github.com/newsdesk/tagsuggest/internal/textutil"
)

// maxCandidateChars truncates tag texts in the scoring prompt to stay well
// under model context limits.
const maxCandidateChars = 500

// LLMReranker uses an LLM to re-score query-candidate pairs for improved
// relevance. This implements a cross-encoder-like approach where the model
// sees both query and candidate together.
type LLMReranker struct {
	llmClient llm.LLM
	model     string
}

// LLMRerankerOption is a functional option for configuring LLMReranker.
type LLMRerankerOption func(*LLMReranker)

// WithModel sets the model to use for reranking.
func WithModel(model string) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.model = model
	}
}

// NewLLMReranker creates a new LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{
		llmClient: llmClient,
		model:     llm.DefaultModel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// relevanceScore represents the structured output from the LLM.
type relevanceScore struct {
	TagIndex int     `json:"tag_index"`
	Score    float32 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// ScorePairs asks the LLM to score each candidate's relevance to the query.
func (r *LLMReranker) ScorePairs(ctx context.Context, query string, candidates []string) ([]float32, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := r.buildPrompt(query, candidates)

	opts := llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   1024,
	}

	response, err := r.llmClient.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	scores, err := r.parseResponse(response, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return scores, nil
}

// ModelName identifies the scoring model.
func (r *LLMReranker) ModelName() string {
	return r.model
}

// buildPrompt constructs the scoring prompt.
func (r *LLMReranker) buildPrompt(query string, candidates []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system for newsroom tags. Score how well each tag matches the article text.\n\n")
	sb.WriteString("Article text: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Tags to score:\n")
	for i, candidate := range candidates {
		if truncated := textutil.Truncate(candidate, maxCandidateChars); truncated != candidate {
			candidate = truncated + "..."
		}
		sb.WriteString(fmt.Sprintf("[Tag %d]: %s\n", i, candidate))
	}

	sb.WriteString(`
Score each tag from 0.0 to 1.0 based on relevance to the article.
Output ONLY valid JSON in this exact format:
{"scores": [{"tag_index": 0, "score": 0.9}, {"tag_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant tags should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseResponse extracts scores from the LLM response.
func (r *LLMReranker) parseResponse(response string, numCandidates int) ([]float32, error) {
	response = strings.TrimSpace(response)

	// Extract JSON from markdown code blocks if present
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	response = strings.TrimSpace(response)

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	// Missing entries keep a neutral score.
	scores := make([]float32, numCandidates)
	for i := range scores {
		scores[i] = 0.5
	}

	for _, s := range parsed.Scores {
		if s.TagIndex >= 0 && s.TagIndex < numCandidates {
			score := s.Score
			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}
			scores[s.TagIndex] = score
		}
	}

	return scores, nil
}

// Ensure LLMReranker implements Reranker interface.
var _ Reranker = (*LLMReranker)(nil)
