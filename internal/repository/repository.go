// Package repository defines domain models and data access interfaces for
// editor feedback and suggestion audit logs.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Feedback labels.
const (
	LabelLike    = "like"
	LabelDislike = "dislike"
)

// Feedback records an editor's verdict on a single suggested tag.
type Feedback struct {
	ID        uuid.UUID
	ArticleID string
	TextHash  string
	Slug      string
	Label     string
	Score     *float64
	Reason    string
	Model     string
	CreatedAt time.Time
}

// SuggestionLog records one served suggestion response for auditing and
// for building training sets later.
type SuggestionLog struct {
	ID          uuid.UUID
	ArticleID   string
	Generation  int64
	Model       string
	Backend     string
	Suggestions []byte // JSON copy of the served suggestions
	ElapsedMs   int64
	CreatedAt   time.Time
}

// FeedbackRepository defines operations for feedback persistence
type FeedbackRepository interface {
	CreateBatch(ctx context.Context, items []*Feedback) error
	ListByArticle(ctx context.Context, articleID string, limit, offset int) ([]*Feedback, int, error)
	ListBySlug(ctx context.Context, slug string, limit, offset int) ([]*Feedback, int, error)
}

// SuggestionLogRepository defines operations for suggestion log persistence
type SuggestionLogRepository interface {
	Create(ctx context.Context, log *SuggestionLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*SuggestionLog, error)
	ListByArticle(ctx context.Context, articleID string, limit, offset int) ([]*SuggestionLog, int, error)
}
