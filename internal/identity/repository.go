package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkRepository stores Apple subject links in PostgreSQL.
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

// UpsertLink records link.Subject as the Apple identity of link.Email.
func (r *LinkRepository) UpsertLink(ctx context.Context, link AppleLink) error {
	q := `
		INSERT INTO apple_links (email, subject, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (email) DO UPDATE SET subject = EXCLUDED.subject, updated_at = now()`
	if _, err := r.db.Exec(ctx, q, link.Email, link.Subject); err != nil {
		return fmt.Errorf("upsert apple link: %w", err)
	}
	return nil
}

// EmailsForSubject returns the linked emails that belong to an account with
// a profile.
func (r *LinkRepository) EmailsForSubject(ctx context.Context, subject string) ([]string, error) {
	q := `
		SELECT l.email
		FROM apple_links l
		JOIN accounts a ON a.email = l.email
		JOIN profiles p ON p.account_id = a.id
		WHERE l.subject = $1
		ORDER BY l.email`
	rows, err := r.db.Query(ctx, q, subject)
	if err != nil {
		return nil, fmt.Errorf("query apple links: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
