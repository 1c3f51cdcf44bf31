// Package posts serves the public, read-mostly content feed.
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"go.uber.org/zap"
)

// Summary is a post as listed in the feed.
type Summary struct {
	ID          int64     `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	Tags        []string  `json:"tags"        db:"tags"`
	Created     time.Time `json:"created"     db:"created"`
	Updated     time.Time `json:"updated"     db:"updated"`
}

// Post is a full post with its markdown content.
type Post struct {
	ID          int64     `json:"-"           db:"id"`
	Title       string    `json:"title"       db:"title"`
	Preview     string    `json:"preview"     db:"preview"`
	Description string    `json:"description" db:"description"`
	Content     string    `json:"content"     db:"content"`
	Created     time.Time `json:"created"     db:"created"`
	Updated     time.Time `json:"updated"     db:"updated"`
	Tags        []string  `json:"tags"        db:"tags"`
}

// NewPost is the input for publishing a post.
type NewPost struct {
	Title       string   `json:"title"`
	Preview     string   `json:"preview"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

// Validate checks post constraints.
func (n NewPost) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&n.Content, validation.Required),
		validation.Field(&n.Tags, validation.Each(validation.Length(0, 200))),
	)
}

// NormalizeTags lower-cases and trims tags, dropping blanks and duplicates.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// postRepo is the storage interface consumed by Service.
type postRepo interface {
	ListActive(ctx context.Context, terms []string) ([]*Summary, error)
	GetActive(ctx context.Context, id int64) (*Post, error)
	Create(ctx context.Context, p *Post) error
}

// Service reads and publishes posts.
type Service struct {
	repo   postRepo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo postRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns active posts, most recently updated first. Every
// whitespace-separated term of search must match the title, description or
// a tag, case-insensitively.
func (s *Service) List(ctx context.Context, search string) ([]*Summary, error) {
	out, err := s.repo.ListActive(ctx, strings.Fields(search))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Summary{}
	}
	return out, nil
}

// Get returns an active post.
func (s *Service) Get(ctx context.Context, id int64) (*Post, error) {
	p, err := s.repo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.PostNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create publishes an active post with normalized tags.
func (s *Service) Create(ctx context.Context, n NewPost) (*Post, error) {
	if err := apierr.FromValidation(n.Validate()); err != nil {
		return nil, err
	}
	p := &Post{
		Title:       n.Title,
		Preview:     n.Preview,
		Description: n.Description,
		Content:     n.Content,
		Tags:        NormalizeTags(n.Tags),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.logger.Info("post published", zap.Int64("post_id", p.ID), zap.Strings("tags", p.Tags))
	return p, nil
}
