package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/newsdesk/tagsuggest/internal/cache"
	"github.com/newsdesk/tagsuggest/internal/repository"
	"github.com/newsdesk/tagsuggest/internal/suggest"
)

// suggestRequest is the body of POST /tags/suggest. Exactly one of Text and
// ArticleID must be set.
type suggestRequest struct {
	Text        string   `json:"text"`
	ArticleID   string   `json:"article_id"`
	K           int      `json:"k"`
	MinScore    *float64 `json:"min_score"`
	UseReranker bool     `json:"use_reranker"`
}

func (s *HTTPServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if (req.Text == "") == (req.ArticleID == "") {
		writeError(w, http.StatusBadRequest, "exactly one of text and article_id is required")
		return
	}
	s.serveSuggestion(w, r, req)
}

func (s *HTTPServer) handleSuggestArticle(w http.ResponseWriter, r *http.Request) {
	req := suggestRequest{ArticleID: chi.URLParam(r, "articleID")}

	q := r.URL.Query()
	if v := q.Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid k: "+v)
			return
		}
		req.K = k
	}
	if v := q.Get("min_score"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_score: "+v)
			return
		}
		req.MinScore = &min
	}
	if v := q.Get("use_reranker"); v != "" {
		req.UseReranker = v == "true" || v == "1"
	}

	s.serveSuggestion(w, r, req)
}

func (s *HTTPServer) serveSuggestion(w http.ResponseWriter, r *http.Request, req suggestRequest) {
	ctx := r.Context()

	text := req.Text
	if req.ArticleID != "" {
		if s.articles == nil {
			writeError(w, http.StatusNotImplemented, "article lookup is not configured")
			return
		}
		fetched, err := s.articles.FetchText(ctx, req.ArticleID)
		if err != nil {
			s.logger.Error("article fetch failed", "article_id", req.ArticleID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to fetch article content")
			return
		}
		text = fetched
	}

	opts := suggest.Options{K: req.K, MinScore: req.MinScore, UseReranker: req.UseReranker}

	var key string
	if s.cache != nil {
		if snap, err := s.manager.Current(); err == nil {
			key = cache.Key(snap.Corpus.Generation, s.model, text, opts)
			cached, found, err := s.cache.Get(ctx, key)
			if err != nil {
				s.logger.Warn("cache lookup failed", "error", err)
			} else if found {
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	result, err := s.engine.Suggest(ctx, text, opts)
	if err != nil {
		switch {
		case errors.Is(err, suggest.ErrInvalidOptions):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, suggest.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, "tag index not ready")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "request timed out")
		default:
			s.logger.Error("suggestion failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if s.cache != nil && key != "" {
		if err := s.cache.Set(ctx, key, result); err != nil {
			s.logger.Warn("cache store failed", "error", err)
		}
	}
	s.logSuggestion(req.ArticleID, result)

	writeJSON(w, http.StatusOK, result)
}

// logSuggestion records a served response for auditing, best effort.
func (s *HTTPServer) logSuggestion(articleID string, result *suggest.Result) {
	if s.logs == nil {
		return
	}
	ba, err := json.Marshal(result.Suggestions)
	if err != nil {
		return
	}
	entry := &repository.SuggestionLog{
		ArticleID:   articleID,
		Generation:  int64(result.Meta.Generation),
		Model:       result.Meta.Model,
		Backend:     result.Meta.Engine,
		Suggestions: ba,
		ElapsedMs:   result.Meta.ElapsedMs,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.logs.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record suggestion log", "error", err)
		}
	}()
}

func (s *HTTPServer) handleTagsHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Health())
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if !s.reloadLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "reload requested too frequently")
		return
	}

	res, err := s.manager.Reload(r.Context())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      err.Error(),
			"generation": res.Generation,
			"size":       res.Size,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": res.Generation,
		"size":       res.Size,
	})
}

// feedbackItem is one entry of the feedback batch body.
type feedbackItem struct {
	TextHash string   `json:"text_hash"`
	Slug     string   `json:"slug"`
	Label    string   `json:"label"`
	Score    *float64 `json:"score,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

type feedbackBatch struct {
	Items []feedbackItem `json:"items"`
}

func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusNotImplemented, "feedback storage is not configured")
		return
	}
	articleID := chi.URLParam(r, "articleID")

	var batch feedbackBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(batch.Items) == 0 {
		writeError(w, http.StatusBadRequest, "feedback batch is empty")
		return
	}

	items := make([]*repository.Feedback, 0, len(batch.Items))
	for _, it := range batch.Items {
		if it.Slug == "" {
			writeError(w, http.StatusBadRequest, "feedback item missing slug")
			return
		}
		if it.Label != repository.LabelLike && it.Label != repository.LabelDislike {
			writeError(w, http.StatusBadRequest, "invalid label: "+it.Label)
			return
		}
		items = append(items, &repository.Feedback{
			ArticleID: articleID,
			TextHash:  it.TextHash,
			Slug:      it.Slug,
			Label:     it.Label,
			Score:     it.Score,
			Reason:    it.Reason,
			Model:     s.model,
		})
	}

	if err := s.feedback.CreateBatch(r.Context(), items); err != nil {
		s.logger.Error("failed to store feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "count": len(items)})
}

// pagination reads the limit and offset query parameters, falling back to
// a page of 50 from the start.
func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (s *HTTPServer) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusNotImplemented, "feedback storage is not configured")
		return
	}
	articleID := chi.URLParam(r, "articleID")
	limit, offset := pagination(r)

	items, total, err := s.feedback.ListByArticle(r.Context(), articleID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

// handleListFeedbackBySlug lists feedback across articles for one tag, for
// reviewing how a tag performs overall.
func (s *HTTPServer) handleListFeedbackBySlug(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusNotImplemented, "feedback storage is not configured")
		return
	}
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug query parameter is required")
		return
	}
	limit, offset := pagination(r)

	items, total, err := s.feedback.ListBySlug(r.Context(), slug, limit, offset)
	if err != nil {
		s.logger.Error("failed to list feedback", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *HTTPServer) handleListSuggestionLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotImplemented, "suggestion logging is not configured")
		return
	}
	articleID := r.URL.Query().Get("article_id")
	if articleID == "" {
		writeError(w, http.StatusBadRequest, "article_id query parameter is required")
		return
	}
	limit, offset := pagination(r)

	items, total, err := s.logs.ListByArticle(r.Context(), articleID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list suggestion logs", "article_id", articleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list suggestion logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *HTTPServer) handleGetSuggestionLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotImplemented, "suggestion logging is not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	entry, err := s.logs.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "suggestion log not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load suggestion log", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load suggestion log")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
