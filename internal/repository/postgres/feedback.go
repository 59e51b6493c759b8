package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/newsdesk/tagsuggest/internal/repository"
)

// FeedbackRepo implements repository.FeedbackRepository
type FeedbackRepo struct {
	db *DB
}

// NewFeedbackRepo creates a new feedback repository
func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// CreateBatch inserts a batch of feedback items in one transaction.
func (r *FeedbackRepo) CreateBatch(ctx context.Context, items []*repository.Feedback) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO feedback (id, article_id, text_hash, slug, label, score, reason, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err := tx.Exec(ctx, query,
			item.ID, item.ArticleID, item.TextHash, item.Slug,
			item.Label, item.Score, item.Reason, item.Model, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert feedback for %s: %w", item.Slug, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit feedback batch: %w", err)
	}
	return nil
}

// ListByArticle retrieves feedback for an article with pagination
func (r *FeedbackRepo) ListByArticle(ctx context.Context, articleID string, limit, offset int) ([]*repository.Feedback, int, error) {
	return r.list(ctx, "article_id", articleID, limit, offset)
}

// ListBySlug retrieves feedback for a tag slug with pagination
func (r *FeedbackRepo) ListBySlug(ctx context.Context, slug string, limit, offset int) ([]*repository.Feedback, int, error) {
	return r.list(ctx, "slug", slug, limit, offset)
}

func (r *FeedbackRepo) list(ctx context.Context, column, value string, limit, offset int) ([]*repository.Feedback, int, error) {
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM feedback WHERE %s = $1`, column)
	if err := r.db.Pool.QueryRow(ctx, countQuery, value).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, article_id, text_hash, slug, label, score, reason, model, created_at
		FROM feedback
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, column)
	rows, err := r.db.Pool.Query(ctx, query, value, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var items []*repository.Feedback
	for rows.Next() {
		var f repository.Feedback
		err := rows.Scan(&f.ID, &f.ArticleID, &f.TextHash, &f.Slug,
			&f.Label, &f.Score, &f.Reason, &f.Model, &f.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan feedback: %w", err)
		}
		items = append(items, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read feedback rows: %w", err)
	}

	return items, total, nil
}

// Ensure FeedbackRepo implements the interface.
var _ repository.FeedbackRepository = (*FeedbackRepo)(nil)

// SuggestionLogRepo implements repository.SuggestionLogRepository
type SuggestionLogRepo struct {
	db *DB
}

// NewSuggestionLogRepo creates a new suggestion log repository
func NewSuggestionLogRepo(db *DB) *SuggestionLogRepo {
	return &SuggestionLogRepo{db: db}
}

// Create records one served suggestion response
func (r *SuggestionLogRepo) Create(ctx context.Context, log *repository.SuggestionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO suggestion_logs (id, article_id, generation, model, backend, suggestions, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		log.ID, log.ArticleID, log.Generation, log.Model,
		log.Backend, log.Suggestions, log.ElapsedMs, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion log: %w", err)
	}
	return nil
}

// GetByID retrieves a suggestion log by ID
func (r *SuggestionLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.SuggestionLog, error) {
	query := `
		SELECT id, article_id, generation, model, backend, suggestions, elapsed_ms, created_at
		FROM suggestion_logs
		WHERE id = $1
	`
	var l repository.SuggestionLog
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.ArticleID, &l.Generation, &l.Model,
		&l.Backend, &l.Suggestions, &l.ElapsedMs, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get suggestion log: %w", err)
	}
	return &l, nil
}

// ListByArticle retrieves suggestion logs for an article with pagination
func (r *SuggestionLogRepo) ListByArticle(ctx context.Context, articleID string, limit, offset int) ([]*repository.SuggestionLog, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM suggestion_logs WHERE article_id = $1`, articleID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count suggestion logs: %w", err)
	}

	query := `
		SELECT id, article_id, generation, model, backend, suggestions, elapsed_ms, created_at
		FROM suggestion_logs
		WHERE article_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, articleID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list suggestion logs: %w", err)
	}
	defer rows.Close()

	var items []*repository.SuggestionLog
	for rows.Next() {
		var l repository.SuggestionLog
		err := rows.Scan(&l.ID, &l.ArticleID, &l.Generation, &l.Model,
			&l.Backend, &l.Suggestions, &l.ElapsedMs, &l.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan suggestion log: %w", err)
		}
		items = append(items, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read suggestion log rows: %w", err)
	}

	return items, total, nil
}

// Ensure SuggestionLogRepo implements the interface.
var _ repository.SuggestionLogRepository = (*SuggestionLogRepo)(nil)
