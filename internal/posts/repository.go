package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/fellows/internal/database"
)

// ErrNotFound is returned when no active post matches.
var ErrNotFound = errors.New("post not found")

const tagsAgg = `
	COALESCE(
		(SELECT array_agg(t.tag ORDER BY t.tag)
		 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		 WHERE pt.post_id = p.id),
		'{}'::text[])`

// Repository stores posts and tags in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListActive returns active posts matching every term, newest update first.
func (r *Repository) ListActive(ctx context.Context, terms []string) ([]*Summary, error) {
	var (
		where strings.Builder
		args  []any
	)
	where.WriteString("p.active")
	for _, term := range terms {
		args = append(args, database.Contains(term))
		n := len(args)
		fmt.Fprintf(&where, `
			AND (p.title ILIKE $%[1]d OR p.description ILIKE $%[1]d OR EXISTS (
				SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
				WHERE pt.post_id = p.id AND t.tag ILIKE $%[1]d))`, n)
	}

	q := `
		SELECT p.id, p.title, p.description, ` + tagsAgg + `, p.created, p.updated
		FROM posts p
		WHERE ` + where.String() + `
		ORDER BY p.updated DESC, p.id DESC`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Summary])
	if err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	return out, nil
}

// GetActive returns one active post with its tags.
func (r *Repository) GetActive(ctx context.Context, id int64) (*Post, error) {
	q := `
		SELECT p.id, p.title, p.preview, p.description, p.content, p.created, p.updated, ` + tagsAgg + `
		FROM posts p
		WHERE p.active AND p.id = $1`
	rows, err := r.db.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Post])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return p, nil
}

// Create inserts p and links its tags, creating missing tags. Tags must
// already be lower-cased. Sets ID, Created and Updated.
func (r *Repository) Create(ctx context.Context, p *Post) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		INSERT INTO posts (title, preview, description, content, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id, created, updated`,
		p.Title, p.Preview, p.Description, p.Content,
	).Scan(&p.ID, &p.Created, &p.Updated)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	if len(p.Tags) > 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tags (tag) SELECT unnest($1::text[])
			ON CONFLICT (tag) DO NOTHING`, p.Tags,
		); err != nil {
			return fmt.Errorf("upsert tags: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO post_tags (post_id, tag_id)
			SELECT $1, id FROM tags WHERE tag = ANY($2::text[])`, p.ID, p.Tags,
		); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
