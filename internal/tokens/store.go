// Package tokens implements expiring bearer tokens: one opaque key per
// account with a hard lifespan counted from creation and a sliding idle
// window counted from the last authenticated use.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Default lifespans.
const (
	DefaultIdleLifespan     = time.Hour
	DefaultExpiringLifespan = 14 * 24 * time.Hour
)

var (
	// ErrInvalidToken is returned for unknown keys.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAccountInactive is returned when the owning account is not approved.
	ErrAccountInactive = errors.New("account not active")
	// ErrTokenExpired is returned once the absolute lifespan has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenIdle is returned when idle enforcement is on and the idle window elapsed.
	ErrTokenIdle = errors.New("token idle timeout")
)

// Config holds token lifespans.
type Config struct {
	IdleLifespan     time.Duration
	ExpiringLifespan time.Duration
	// EnforceIdle rejects tokens past the idle window. Off by default: the
	// idle state is then informational only.
	EnforceIdle bool
}

// tokenRepo is the storage interface consumed by Store.
type tokenRepo interface {
	GetOrCreate(ctx context.Context, t *Token, expiredBefore time.Time) (*Token, error)
	GetByKey(ctx context.Context, key string) (*Token, *Owner, error)
	Touch(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, key string) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store issues and authenticates tokens.
type Store struct {
	repo   tokenRepo
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a Store. Zero lifespans fall back to the defaults.
func NewStore(repo tokenRepo, cfg Config, logger *zap.Logger) *Store {
	if cfg.IdleLifespan == 0 {
		cfg.IdleLifespan = DefaultIdleLifespan
	}
	if cfg.ExpiringLifespan == 0 {
		cfg.ExpiringLifespan = DefaultExpiringLifespan
	}
	return &Store{repo: repo, cfg: cfg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// IssueOrGet returns the account's token, creating one with
// created = refreshed = now when it has none or its token is past the
// absolute lifespan. The returned token is always usable.
func (s *Store) IssueOrGet(ctx context.Context, accountID int64) (*Token, error) {
	key, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("generate token key: %w", err)
	}
	now := s.now()
	t, err := s.repo.GetOrCreate(ctx, &Token{
		Key:       key,
		AccountID: accountID,
		Created:   now,
		Refreshed: now,
	}, now.Add(-s.cfg.ExpiringLifespan))
	if err != nil {
		return nil, err
	}
	if t.Key == key {
		s.logger.Debug("token issued", zap.Int64("account_id", accountID))
	}
	return t, nil
}

// Authenticate resolves key to its principal and slides the idle window.
func (s *Store) Authenticate(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, ErrInvalidToken
	}
	t, owner, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	if !owner.IsActive {
		return nil, ErrAccountInactive
	}

	now := s.now()
	if t.Expired(now, s.cfg.ExpiringLifespan) {
		if err := s.repo.Delete(ctx, t.Key); err != nil {
			s.logger.Warn("delete expired token", zap.Int64("account_id", t.AccountID), zap.Error(err))
		}
		return nil, ErrTokenExpired
	}
	if s.cfg.EnforceIdle && t.TimedOut(now, s.cfg.IdleLifespan) {
		return nil, ErrTokenIdle
	}

	if err := s.repo.Touch(ctx, t.Key, now); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	t.Refreshed = now

	return &Principal{
		AccountID: t.AccountID,
		Email:     owner.Email,
		IsStaff:   owner.IsStaff,
		Token:     t,
	}, nil
}

// PurgeExpired deletes every token past the absolute lifespan.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteCreatedBefore(ctx, s.now().Add(-s.cfg.ExpiringLifespan))
}

// generateKey returns a 40-character hex key.
func generateKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
