package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no token matches the lookup.
var ErrNotFound = errors.New("token not found")

// Repository persists tokens in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetOrCreate returns the account's token, inserting t when none exists yet.
// An existing token created before expiredBefore is replaced by t. Every
// column goes through CASE so RETURNING always yields the row that is kept.
func (r *Repository) GetOrCreate(ctx context.Context, t *Token, expiredBefore time.Time) (*Token, error) {
	q := `
		INSERT INTO auth_tokens (key, account_id, created, refreshed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			key       = CASE WHEN auth_tokens.created < $5 THEN EXCLUDED.key       ELSE auth_tokens.key       END,
			created   = CASE WHEN auth_tokens.created < $5 THEN EXCLUDED.created   ELSE auth_tokens.created   END,
			refreshed = CASE WHEN auth_tokens.created < $5 THEN EXCLUDED.refreshed ELSE auth_tokens.refreshed END
		RETURNING key, account_id, created, refreshed`
	var out Token
	err := r.db.QueryRow(ctx, q, t.Key, t.AccountID, t.Created, t.Refreshed, expiredBefore).
		Scan(&out.Key, &out.AccountID, &out.Created, &out.Refreshed)
	if err != nil {
		return nil, fmt.Errorf("get or create token: %w", err)
	}
	return &out, nil
}

// GetByKey returns the token and the state of its owning account.
func (r *Repository) GetByKey(ctx context.Context, key string) (*Token, *Owner, error) {
	q := `
		SELECT t.key, t.account_id, t.created, t.refreshed, a.email, a.is_active, a.is_staff
		FROM auth_tokens t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.key = $1`
	var t Token
	var o Owner
	err := r.db.QueryRow(ctx, q, key).Scan(
		&t.Key, &t.AccountID, &t.Created, &t.Refreshed,
		&o.Email, &o.IsActive, &o.IsStaff,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get token: %w", err)
	}
	return &t, &o, nil
}

// Touch sets refreshed on the token.
func (r *Repository) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE auth_tokens SET refreshed = $2 WHERE key = $1`, key, at)
	return err
}

// Delete removes a token.
func (r *Repository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE key = $1`, key)
	return err
}

// DeleteCreatedBefore removes every token created before cutoff and returns the count.
func (r *Repository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
