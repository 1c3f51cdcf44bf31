package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/fellows/internal/database"
)

var (
	// ErrNotFound is returned when an item or profile lookup finds no record.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyOwned is returned when a second BUY of the same item is inserted.
	ErrAlreadyOwned = errors.New("item already owned")
	// ErrDuplicateName is returned when adding an item whose name is taken.
	ErrDuplicateName = errors.New("item name already exists")
)

// uniqueBuyIndex guards against double purchases.
const uniqueBuyIndex = "transactions_one_buy_per_item"

const itemColumns = `i.id, i.name, i.preview_image, i.description, i.points, i.active`

// LedgerTx is the set of ledger operations that run inside one database
// transaction.
type LedgerTx interface {
	// LockBalance locks the account's profile row and returns its points.
	LockBalance(ctx context.Context, accountID int64) (int, error)
	HasPurchased(ctx context.Context, accountID, itemID int64) (bool, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	// DebitPoints subtracts n and returns the new balance.
	DebitPoints(ctx context.Context, accountID int64, n int) (int, error)
}

// Repository stores the catalog and the ledger in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithinTx runs fn in a transaction, committing only if fn returns nil.
func (r *Repository) WithinTx(ctx context.Context, fn func(LedgerTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetActiveItem resolves ref against active items. ID takes precedence.
func (r *Repository) GetActiveItem(ctx context.Context, ref ItemRef) (*Item, error) {
	var (
		q   string
		arg any
	)
	switch {
	case ref.ID != nil:
		q = `SELECT ` + itemColumns + ` FROM store_items i WHERE i.active AND i.id = $1`
		arg = *ref.ID
	case ref.Name != nil:
		q = `SELECT ` + itemColumns + ` FROM store_items i WHERE i.active AND lower(i.name) = lower($1)`
		arg = *ref.Name
	default:
		return nil, ErrNotFound
	}

	var it Item
	err := r.db.QueryRow(ctx, q, arg).Scan(&it.ID, &it.Name, &it.PreviewImage, &it.Description, &it.Points, &it.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// ListActiveItems returns active items ordered by id, each flagged with
// whether accountID has bought it. A non-empty nameFilter keeps only items
// whose name contains it, case-insensitively.
func (r *Repository) ListActiveItems(ctx context.Context, accountID int64, nameFilter string) ([]*Item, error) {
	q := `
		SELECT ` + itemColumns + `,
			EXISTS (
				SELECT 1 FROM transactions t
				WHERE t.account_id = $1 AND t.item_id = i.id AND t.transaction_type = 'BUY'
			) AS purchased
		FROM store_items i
		WHERE i.active AND ($2::text = '' OR i.name ILIKE $3)
		ORDER BY i.id`
	rows, err := r.db.Query(ctx, q, accountID, nameFilter, database.Contains(nameFilter))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Item])
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	return items, nil
}

// GetActiveItemFor returns one active item flagged for accountID.
func (r *Repository) GetActiveItemFor(ctx context.Context, accountID, itemID int64) (*Item, error) {
	q := `
		SELECT ` + itemColumns + `,
			EXISTS (
				SELECT 1 FROM transactions t
				WHERE t.account_id = $1 AND t.item_id = i.id AND t.transaction_type = 'BUY'
			) AS purchased
		FROM store_items i
		WHERE i.active AND i.id = $2`
	rows, err := r.db.Query(ctx, q, accountID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Item])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return it, nil
}

// ListTransactions returns an account's ledger, newest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID int64) ([]*Transaction, error) {
	q := `
		SELECT t.id, t.account_id, t.item_id, COALESCE(i.name, ''), t.points, t.transaction_type, t.transaction_date
		FROM transactions t
		LEFT JOIN store_items i ON i.id = t.item_id
		WHERE t.account_id = $1
		ORDER BY t.transaction_date DESC`
	rows, err := r.db.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Transaction])
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return txs, nil
}

// CreateItem inserts a new active item and sets its ID.
func (r *Repository) CreateItem(ctx context.Context, it *Item) error {
	q := `
		INSERT INTO store_items (name, preview_image, description, points, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRow(ctx, q, it.Name, it.PreviewImage, it.Description, it.Points, it.Active).Scan(&it.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// ListAllItems returns every item, active or not, ordered by id.
func (r *Repository) ListAllItems(ctx context.Context) ([]*Item, error) {
	q := `SELECT ` + itemColumns + `, false AS purchased FROM store_items i ORDER BY i.id`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list all items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Item])
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	return items, nil
}

// ledgerTx implements LedgerTx over a pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

func (l *ledgerTx) LockBalance(ctx context.Context, accountID int64) (int, error) {
	var points int
	err := l.tx.QueryRow(ctx,
		`SELECT COALESCE(points, 0) FROM profiles WHERE account_id = $1 FOR UPDATE`, accountID,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock balance: %w", err)
	}
	return points, nil
}

func (l *ledgerTx) HasPurchased(ctx context.Context, accountID, itemID int64) (bool, error) {
	var exists bool
	err := l.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE account_id = $1 AND item_id = $2 AND transaction_type = 'BUY'
		)`, accountID, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

func (l *ledgerTx) InsertTransaction(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Date.IsZero() {
		t.Date = time.Now().UTC()
	}
	_, err := l.tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, item_id, points, transaction_type, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.AccountID, t.ItemID, t.Points, string(t.Type), t.Date,
	)
	if err != nil {
		if database.IsUniqueViolation(err, uniqueBuyIndex) {
			return ErrAlreadyOwned
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (l *ledgerTx) DebitPoints(ctx context.Context, accountID int64, n int) (int, error) {
	var balance int
	err := l.tx.QueryRow(ctx, `
		UPDATE profiles SET points = COALESCE(points, 0) - $2
		WHERE account_id = $1
		RETURNING points`, accountID, n,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("debit points: %w", err)
	}
	return balance, nil
}
