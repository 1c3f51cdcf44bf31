package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/fellows/internal/database"
)

// ErrNotFound is returned when an account or profile lookup finds no record.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an already-registered email.
var ErrDuplicateEmail = errors.New("email already registered")

const profileColumns = `
	p.account_id, a.email, p.name, p.is_junior_fellow, p.campus, p.batch,
	p.city, p.country, p.bio, p.work, COALESCE(p.points, 0), p.picture`

// Repository stores accounts, profiles and the SDG catalog in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateWithProfile inserts an account, its profile and the profile's owned
// rows in one transaction. Sets a.ID, a.DateJoined and p.ID.
func (r *Repository) CreateWithProfile(ctx context.Context, a *Account, p *Profile) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := `
		INSERT INTO accounts (email, is_active, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4)
		RETURNING id, date_joined`
	err = tx.QueryRow(ctx, q, a.Email, a.IsActive, a.IsStaff, a.IsSuperuser).
		Scan(&a.ID, &a.DateJoined)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}

	p.ID = a.ID
	p.User.Email = a.Email
	q = `
		INSERT INTO profiles (account_id, name, is_junior_fellow, campus, batch, city, country, bio, work, points, picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.Exec(ctx, q,
		p.ID, p.Name, p.IsJuniorFellow, p.Campus, p.Batch,
		p.City, p.Country, p.Bio, p.Work, p.Points, p.Picture,
	); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	if err := replacePhoneNumbers(ctx, tx, p.ID, p.PhoneNumbers); err != nil {
		return err
	}
	if err := replaceSocialAccounts(ctx, tx, p.ID, p.SocialMediaAccounts); err != nil {
		return err
	}
	if err := replaceSDGs(ctx, tx, p.ID, p.SDGs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAccountByEmail retrieves an account by its (normalized) email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanAccount(ctx, `
		SELECT id, email, is_active, is_staff, is_superuser, date_joined
		FROM accounts WHERE email = $1`, email)
}

// GetAccountByID retrieves an account by ID.
func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	return r.scanAccount(ctx, `
		SELECT id, email, is_active, is_staff, is_superuser, date_joined
		FROM accounts WHERE id = $1`, id)
}

func (r *Repository) scanAccount(ctx context.Context, q string, arg any) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&a.ID, &a.Email, &a.IsActive, &a.IsStaff, &a.IsSuperuser, &a.DateJoined,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// ListPending returns inactive accounts, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]*Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email, is_active, is_staff, is_superuser, date_joined
		FROM accounts WHERE NOT is_active ORDER BY date_joined, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.IsActive, &a.IsStaff, &a.IsSuperuser, &a.DateJoined); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SetActive flips the approval flag on the account with the given email.
func (r *Repository) SetActive(ctx context.Context, email string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET is_active = $2 WHERE email = $1`, email, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile retrieves the profile of an account with its owned rows.
func (r *Repository) GetProfile(ctx context.Context, accountID int64) (*Profile, error) {
	q := `SELECT ` + profileColumns + `
		FROM profiles p JOIN accounts a ON a.id = p.account_id
		WHERE p.account_id = $1`
	profiles, err := r.queryProfiles(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNotFound
	}
	return profiles[0], nil
}

// ListActiveProfiles returns profiles of active accounts whose name or email
// contains search (case-insensitive), ordered by account ID.
func (r *Repository) ListActiveProfiles(ctx context.Context, search string) ([]*Profile, error) {
	q := `SELECT ` + profileColumns + `
		FROM profiles p JOIN accounts a ON a.id = p.account_id
		WHERE a.is_active AND ($1 = '' OR p.name ILIKE $2 OR a.email ILIKE $2)
		ORDER BY p.account_id`
	return r.queryProfiles(ctx, q, search, database.Contains(search))
}

func (r *Repository) queryProfiles(ctx context.Context, q string, args ...any) ([]*Profile, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(
			&p.ID, &p.User.Email, &p.Name, &p.IsJuniorFellow, &p.Campus, &p.Batch,
			&p.City, &p.Country, &p.Bio, &p.Work, &p.Points, &p.Picture,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.PhoneNumbers = []PhoneNumber{}
		p.SocialMediaAccounts = []SocialMediaAccount{}
		p.SDGs = []int{}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := r.loadOwned(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadOwned fills phone numbers, social accounts and SDG codes for profiles
// with one query per table.
func (r *Repository) loadOwned(ctx context.Context, profiles []*Profile) error {
	ids := make([]int64, len(profiles))
	byID := make(map[int64]*Profile, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.db.Query(ctx, `
		SELECT profile_id, country_code, number FROM phone_numbers
		WHERE profile_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query phone numbers: %w", err)
	}
	for rows.Next() {
		var id int64
		var pn PhoneNumber
		if err := rows.Scan(&id, &pn.CountryCode, &pn.Number); err != nil {
			rows.Close()
			return fmt.Errorf("scan phone number: %w", err)
		}
		byID[id].PhoneNumbers = append(byID[id].PhoneNumbers, pn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.Query(ctx, `
		SELECT profile_id, type, account FROM social_media_accounts
		WHERE profile_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query social accounts: %w", err)
	}
	for rows.Next() {
		var id int64
		var sa SocialMediaAccount
		if err := rows.Scan(&id, &sa.Type, &sa.Account); err != nil {
			rows.Close()
			return fmt.Errorf("scan social account: %w", err)
		}
		byID[id].SocialMediaAccounts = append(byID[id].SocialMediaAccounts, sa)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.Query(ctx, `
		SELECT profile_id, sdg_code FROM profile_sdgs
		WHERE profile_id = ANY($1) ORDER BY sdg_code`, ids)
	if err != nil {
		return fmt.Errorf("query sdgs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var code int
		if err := rows.Scan(&id, &code); err != nil {
			return fmt.Errorf("scan sdg: %w", err)
		}
		byID[id].SDGs = append(byID[id].SDGs, code)
	}
	return rows.Err()
}

// UpdateProfile applies a partial update in one transaction. Non-nil lists
// replace the stored rows.
func (r *Repository) UpdateProfile(ctx context.Context, accountID int64, u ProfileUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := `
		UPDATE profiles SET
			name    = COALESCE($2, name),
			campus  = COALESCE($3, campus),
			batch   = COALESCE($4, batch),
			city    = COALESCE($5, city),
			country = COALESCE($6, country),
			bio     = COALESCE($7, bio),
			work    = COALESCE($8, work)
		WHERE account_id = $1`
	tag, err := tx.Exec(ctx, q, accountID, u.Name, u.Campus, u.Batch, u.City, u.Country, u.Bio, u.Work)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if u.PhoneNumbers != nil {
		if err := replacePhoneNumbers(ctx, tx, accountID, u.PhoneNumbers); err != nil {
			return err
		}
	}
	if u.SocialMediaAccounts != nil {
		if err := replaceSocialAccounts(ctx, tx, accountID, u.SocialMediaAccounts); err != nil {
			return err
		}
	}
	if u.SDGs != nil {
		if err := replaceSDGs(ctx, tx, accountID, u.SDGs); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func replacePhoneNumbers(ctx context.Context, q database.Querier, profileID int64, list []PhoneNumber) error {
	if _, err := q.Exec(ctx, `DELETE FROM phone_numbers WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("clear phone numbers: %w", err)
	}
	for _, pn := range list {
		if _, err := q.Exec(ctx,
			`INSERT INTO phone_numbers (profile_id, country_code, number) VALUES ($1, $2, $3)`,
			profileID, pn.CountryCode, pn.Number,
		); err != nil {
			return fmt.Errorf("insert phone number: %w", err)
		}
	}
	return nil
}

func replaceSocialAccounts(ctx context.Context, q database.Querier, profileID int64, list []SocialMediaAccount) error {
	if _, err := q.Exec(ctx, `DELETE FROM social_media_accounts WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("clear social accounts: %w", err)
	}
	for _, sa := range list {
		if _, err := q.Exec(ctx,
			`INSERT INTO social_media_accounts (profile_id, type, account) VALUES ($1, $2, $3)`,
			profileID, sa.Type, sa.Account,
		); err != nil {
			return fmt.Errorf("insert social account: %w", err)
		}
	}
	return nil
}

func replaceSDGs(ctx context.Context, q database.Querier, profileID int64, codes []int) error {
	if _, err := q.Exec(ctx, `DELETE FROM profile_sdgs WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("clear sdgs: %w", err)
	}
	if len(codes) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO profile_sdgs (profile_id, sdg_code)
		SELECT $1, UNNEST($2::int[])
		ON CONFLICT DO NOTHING`, profileID, codes); err != nil {
		return fmt.Errorf("insert sdgs: %w", err)
	}
	return nil
}

// ExistingSDGCodes returns the subset of codes present in the catalog.
func (r *Repository) ExistingSDGCodes(ctx context.Context, codes []int) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT code FROM sdgs WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("query sdg codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// ListSDGs returns the SDG catalog ordered by code.
func (r *Repository) ListSDGs(ctx context.Context) ([]SDG, error) {
	rows, err := r.db.Query(ctx, `SELECT code, name FROM sdgs ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list sdgs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[SDG])
}

// SetPictureIfEmpty stores ref as the profile picture unless one is already
// set. Reports whether the picture was written.
func (r *Repository) SetPictureIfEmpty(ctx context.Context, accountID int64, ref string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET picture = $2 WHERE account_id = $1 AND picture = ''`,
		accountID, ref)
	if err != nil {
		return false, fmt.Errorf("set picture: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddPoints credits n points to a profile and returns the new balance.
func (r *Repository) AddPoints(ctx context.Context, accountID int64, n int) (int, error) {
	var balance int
	err := r.db.QueryRow(ctx, `
		UPDATE profiles SET points = COALESCE(points, 0) + $2
		WHERE account_id = $1
		RETURNING points`, accountID, n).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("add points: %w", err)
	}
	return balance, nil
}
